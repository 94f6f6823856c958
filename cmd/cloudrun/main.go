package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/search"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// requestTimeout bounds one search request end to end
const requestTimeout = 30 * time.Second

// Searcher is satisfied by *search.Service
type Searcher interface {
	Search(ctx context.Context, criteria models.SearchCriteria) models.SearchResponse
}

// CloudRunHandler handles Google Cloud Run requests
type CloudRunHandler struct {
	search Searcher
	log    *logrus.Logger
}

func NewCloudRunHandler(s Searcher, logger *logrus.Logger) *CloudRunHandler {
	return &CloudRunHandler{search: s, log: logger}
}

// Router registers the search and health routes
func (h *CloudRunHandler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/api/search", h.Search).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		h.errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed", "")
	})
	return r
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type,X-Api-Key,x-api-key")
	w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Search runs one aggregated search. Source failures still produce a 200.
func (h *CloudRunHandler) Search(w http.ResponseWriter, r *http.Request) {
	criteria := models.ParseCriteria(r.URL.Query())
	h.log.WithFields(logrus.Fields{"make": criteria.MakeName, "model": criteria.ModelName}).Info("search request received")

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp := h.search.Search(ctx, criteria)

	body, err := json.Marshal(resp)
	if err != nil {
		h.log.WithError(err).Error("failed to serialize response")
		h.errorResponse(w, http.StatusInternalServerError, "Failed to search listings", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// errorResponse creates an error response
func (h *CloudRunHandler) errorResponse(w http.ResponseWriter, statusCode int, message, details string) {
	errorResp := models.ErrorResponse{
		Success:  false,
		Error:    message,
		Details:  details,
		Listings: []models.CarListing{},
		Sources:  []models.SourceStatus{},
	}

	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorResp)
}

// main function
func main() {
	logger := config.NewLogger(os.Stderr)

	cfg, err := config.Load(os.Getenv("CARSEARCH_CONFIG"))
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	svc := search.NewService(cfg, logger)
	defer svc.Close()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           NewCloudRunHandler(svc, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      requestTimeout + 5*time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.WithFields(logrus.Fields{"port": port, "sources": svc.SourceNames()}).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
	}
}
