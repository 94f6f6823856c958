package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"carsearch-scraper/internal/models"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSearcher struct {
	got  models.SearchCriteria
	resp models.SearchResponse
}

func (f *fakeSearcher) Search(_ context.Context, criteria models.SearchCriteria) models.SearchResponse {
	f.got = criteria
	return f.resp
}

func newTestRouter(s Searcher) http.Handler {
	logger, _ := test.NewNullLogger()
	return NewCloudRunHandler(s, logger).Router()
}

func TestSearchHandler(t *testing.T) {
	searcher := &fakeSearcher{resp: models.SearchResponse{
		Success: true,
		Listings: []models.CarListing{
			{ID: "ebay-1", Title: "2019 Honda Civic", Price: models.IntPtr(15000), ListingURL: "https://www.ebay.com/itm/1", Source: "eBay Motors"},
		},
		Sources:    []models.SourceStatus{{Name: "eBay Motors", Count: 1}, {Name: "Craigslist", Error: "Craigslist timed out"}},
		TotalCount: 1,
	}}
	router := newTestRouter(searcher)

	req := httptest.NewRequest(http.MethodGet, "/api/search?makeName=Honda&yearMin=2015abc&priceMax=cheap", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	assert.Equal(t, "Honda", searcher.got.MakeName)
	assert.Equal(t, 2015, searcher.got.YearMin)
	assert.Zero(t, searcher.got.PriceMax)

	var body models.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.TotalCount)
	require.Len(t, body.Sources, 2)
	assert.Equal(t, "Craigslist timed out", body.Sources[1].Error)
}

func TestSearchHandlerListingShape(t *testing.T) {
	searcher := &fakeSearcher{resp: models.SearchResponse{
		Success:  true,
		Listings: []models.CarListing{{ID: "x", Title: "t", ListingURL: "https://example.com/x", Source: "S"}},
	}}
	rec := httptest.NewRecorder()
	newTestRouter(searcher).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search", nil))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	listing := raw["listings"].([]any)[0].(map[string]any)
	// absent optional fields are explicit nulls
	for _, key := range []string{"price", "year", "make", "model", "mileage", "location", "imageUrl", "postedDate"} {
		v, ok := listing[key]
		assert.True(t, ok, key)
		assert.Nil(t, v, key)
	}
}

func TestSearchHandlerPreflight(t *testing.T) {
	searcher := &fakeSearcher{}
	rec := httptest.NewRecorder()
	newTestRouter(searcher).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/search", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "GET,OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
	assert.Empty(t, searcher.got)
}

func TestSearchHandlerMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeSearcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/search", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "Method not allowed", body.Error)
	assert.NotNil(t, body.Listings)
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestRouter(&fakeSearcher{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
