package main

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"time"

	"carsearch-scraper/internal/config"
	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/search"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"
)

const (
	maxSearchTimeout = 30 * time.Second
	safetyMargin     = 3 * time.Second
)

// Searcher is satisfied by *search.Service
type Searcher interface {
	Search(ctx context.Context, criteria models.SearchCriteria) models.SearchResponse
}

// LambdaHandler handles AWS Lambda events
type LambdaHandler struct {
	search Searcher
	log    *logrus.Logger
	apiKey string
}

func NewLambdaHandler(s Searcher, logger *logrus.Logger, apiKey string) *LambdaHandler {
	return &LambdaHandler{search: s, log: logger, apiKey: apiKey}
}

// Handler is the main Lambda handler function
func (h *LambdaHandler) Handler(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	baseHeaders := map[string]string{
		"Content-Type":                 "application/json; charset=utf-8",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Api-Key,x-api-key",
		"Access-Control-Allow-Methods": "GET,OPTIONS",
	}

	if event.HTTPMethod == "OPTIONS" {
		return events.APIGatewayProxyResponse{StatusCode: 204, Headers: baseHeaders}, nil
	}
	if event.HTTPMethod != "" && event.HTTPMethod != "GET" {
		return h.errorResponse(405, "Method not allowed", baseHeaders), nil
	}

	if h.apiKey != "" {
		key := event.Headers["x-api-key"]
		if key == "" {
			key = event.Headers["X-Api-Key"]
		}
		if key != h.apiKey {
			return h.errorResponse(401, "Invalid or missing API key", baseHeaders), nil
		}
	}

	criteria := models.ParseCriteria(queryValues(event))
	h.log.WithFields(logrus.Fields{"make": criteria.MakeName, "model": criteria.ModelName}).Info("search request received")

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout(ctx))
	defer cancel()

	resp := h.search.Search(searchCtx, criteria)
	body, err := json.Marshal(resp)
	if err != nil {
		return h.errorResponse(500, "Failed to serialize response", baseHeaders), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: 200,
		Headers:    baseHeaders,
		Body:       string(body),
	}, nil
}

// searchTimeout leaves a safety margin before the invocation deadline
func searchTimeout(ctx context.Context) time.Duration {
	timeout := maxSearchTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline) - safetyMargin; remaining < timeout {
			timeout = remaining
		}
	}
	if timeout < time.Second {
		timeout = time.Second
	}
	return timeout
}

func queryValues(event events.APIGatewayProxyRequest) url.Values {
	q := url.Values{}
	for k, vs := range event.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range event.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}
	return q
}

// errorResponse creates an error response
func (h *LambdaHandler) errorResponse(statusCode int, message string, headers map[string]string) events.APIGatewayProxyResponse {
	errorResp := models.ErrorResponse{
		Error:    message,
		Listings: []models.CarListing{},
		Sources:  []models.SourceStatus{},
	}

	body, _ := json.Marshal(errorResp)
	return events.APIGatewayProxyResponse{
		StatusCode: statusCode,
		Headers:    headers,
		Body:       string(body),
	}
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

	handler := NewLambdaHandler(svc, logger, os.Getenv("CARSEARCH_API_KEY"))
	lambda.Start(handler.Handler)
}
