package sample

import (
	"testing"

	"carsearch-scraper/internal/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingsDefaults(t *testing.T) {
	got := Listings(models.SearchCriteria{})
	require.Len(t, got, Size)
	assert.Equal(t, 6, Size)

	first := got[0]
	assert.Equal(t, "sample-1", first.ID)
	assert.Equal(t, "2021 Toyota Camry SE - Low Miles, Clean Title", first.Title)
	assert.Equal(t, 24500, *first.Price)
	assert.Equal(t, "Toyota", *first.Make)
	assert.Equal(t, "Camry", *first.Model)
	assert.Equal(t, ListingURL, first.ListingURL)
	assert.Equal(t, SourceName, first.Source)
	assert.Equal(t, SourceColor, first.SourceColor)
	assert.Contains(t, *first.ImageURL, "images.unsplash.com/photo-1621007947382-bb3c3994e3fb")

	ids := map[string]bool{}
	for _, l := range got {
		assert.False(t, ids[l.ID], "duplicate id %s", l.ID)
		ids[l.ID] = true
	}
}

func TestListingsUseRequestedMakeAndModel(t *testing.T) {
	got := Listings(models.SearchCriteria{MakeName: "chevy", ModelName: "Malibu"})
	require.NotEmpty(t, got)
	for _, l := range got {
		assert.Equal(t, "Chevrolet", *l.Make)
		assert.Equal(t, "Malibu", *l.Model)
		assert.Contains(t, l.Title, "Chevrolet Malibu")
	}
}

func TestListingsFilters(t *testing.T) {
	tests := []struct {
		name     string
		criteria models.SearchCriteria
		wantIDs  []string
	}{
		{"price ceiling", models.SearchCriteria{PriceMax: 22000}, []string{"sample-2", "sample-4"}},
		{"price floor", models.SearchCriteria{PriceMin: 27000}, []string{"sample-3", "sample-5"}},
		{"year window", models.SearchCriteria{YearMin: 2021, YearMax: 2022}, []string{"sample-1", "sample-3"}},
		{"mileage", models.SearchCriteria{MileageMax: 20000}, []string{"sample-3", "sample-5"}},
		{"contradictory price", models.SearchCriteria{PriceMin: 30000, PriceMax: 20000}, []string{}},
		{"contradictory year", models.SearchCriteria{YearMin: 2023, YearMax: 2019}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Listings(tt.criteria)
			require.NotNil(t, got)
			ids := make([]string, 0, len(got))
			for _, l := range got {
				ids = append(ids, l.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestListingsDeterministic(t *testing.T) {
	c := models.SearchCriteria{MakeName: "Honda", ModelName: "Accord", PriceMax: 26000}
	if diff := cmp.Diff(Listings(c), Listings(c)); diff != "" {
		t.Errorf("sample output changed between calls:\n%s", diff)
	}
}
