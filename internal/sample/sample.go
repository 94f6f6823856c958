// Package sample provides the deterministic demo listings shown when no
// source returned anything.
package sample

import (
	"fmt"

	"carsearch-scraper/internal/models"
	"carsearch-scraper/internal/scraper"
)

const (
	SourceName  = "Sample"
	SourceColor = "#6b7280"
	ListingURL  = "#sample"

	defaultMake  = "Toyota"
	defaultModel = "Camry"
)

type row struct {
	year     int
	trim     string
	tagline  string
	price    int
	mileage  int
	location string
	photo    string
	posted   string
}

var rows = []row{
	{2021, "SE", "Low Miles, Clean Title", 24500, 32000, "San Francisco, CA", "photo-1621007947382-bb3c3994e3fb", "2 days ago"},
	{2020, "XLE", "One Owner", 22000, 45000, "Oakland, CA", "photo-1549317661-bd32c8ce0db2", "3 days ago"},
	{2022, "LE", "Like New Condition", 27500, 18000, "San Jose, CA", "photo-1552519507-da3b142c6e3d", "1 day ago"},
	{2019, "SE", "Well Maintained", 19800, 58000, "Berkeley, CA", "photo-1494976388531-d1058494cdd8", "4 days ago"},
	{2023, "XSE", "Loaded", 32000, 8500, "Palo Alto, CA", "photo-1542362567-b07e54358753", "Today"},
	{2020, "TRD", "Sport Package", 25900, 38000, "Mountain View, CA", "photo-1533473359331-0135ef1b58bf", "5 days ago"},
}

// Size is the number of listings before filtering
var Size = len(rows)

// Listings returns the sample set titled with the requested make and model
// (Toyota Camry when absent) and filtered by the price, year and mileage bounds.
// Contradictory bounds yield an empty, non-nil slice.
func Listings(criteria models.SearchCriteria) []models.CarListing {
	makeName := defaultMake
	if criteria.MakeName != "" {
		makeName = scraper.CanonicalMake(criteria.MakeName)
	}
	model := defaultModel
	if criteria.ModelName != "" {
		model = criteria.ModelName
	}

	out := make([]models.CarListing, 0, len(rows))
	for i, r := range rows {
		if !matches(r, criteria) {
			continue
		}
		out = append(out, models.CarListing{
			ID:          fmt.Sprintf("sample-%d", i+1),
			Title:       fmt.Sprintf("%d %s %s %s - %s", r.year, makeName, model, r.trim, r.tagline),
			Price:       models.IntPtr(r.price),
			Year:        models.IntPtr(r.year),
			Make:        models.StringPtr(makeName),
			Model:       models.StringPtr(model),
			Mileage:     models.IntPtr(r.mileage),
			Location:    models.StringPtr(r.location),
			ImageURL:    models.StringPtr("https://images.unsplash.com/" + r.photo + "?w=600&h=450&fit=crop"),
			ListingURL:  ListingURL,
			Source:      SourceName,
			SourceColor: SourceColor,
			PostedDate:  models.StringPtr(r.posted),
		})
	}
	return out
}

func matches(r row, c models.SearchCriteria) bool {
	switch {
	case c.PriceMin > 0 && r.price < c.PriceMin:
		return false
	case c.PriceMax > 0 && r.price > c.PriceMax:
		return false
	case c.YearMin > 0 && r.year < c.YearMin:
		return false
	case c.YearMax > 0 && r.year > c.YearMax:
		return false
	case c.MileageMax > 0 && r.mileage > c.MileageMax:
		return false
	}
	return true
}
