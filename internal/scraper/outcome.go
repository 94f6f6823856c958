package scraper

import (
	"fmt"

	"carsearch-scraper/internal/models"
)

// SkipReason explains why a listing node produced no listing
type SkipReason string

const (
	SkipMissingTitle SkipReason = "missing title"
	SkipMissingLink  SkipReason = "missing link"
	SkipInvalidURL   SkipReason = "unresolvable url"
	SkipMissingID    SkipReason = "missing id"
	SkipNotAListing  SkipReason = "not a listing"
	SkipDuplicate    SkipReason = "duplicate"
	SkipPanic        SkipReason = "panic"
	SkipOverLimit    SkipReason = "over limit"
)

// Outcome is the result of extracting one listing node: a listing or a skip.
type Outcome struct {
	listing models.CarListing
	reason  SkipReason
	detail  string
	ok      bool
}

// Keep wraps an extracted listing.
func Keep(l models.CarListing) Outcome {
	return Outcome{listing: l, ok: true}
}

// Skip records an unusable node.
func Skip(reason SkipReason, detail string) Outcome {
	return Outcome{reason: reason, detail: detail}
}

// IsListing reports whether the outcome holds a listing.
func (o Outcome) IsListing() bool { return o.ok }

// Listing returns the listing and whether there is one.
func (o Outcome) Listing() (models.CarListing, bool) { return o.listing, o.ok }

// Reason returns the skip reason, empty for listings.
func (o Outcome) Reason() SkipReason { return o.reason }

// Detail returns free text attached to a skip.
func (o Outcome) Detail() string { return o.detail }

// Extract runs fn and turns a panic into a SkipPanic outcome.
func Extract(fn func() Outcome) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Skip(SkipPanic, fmt.Sprint(r))
		}
	}()
	return fn()
}

// CollectResult is the filtered, deduplicated listing set of one adapter run
type CollectResult struct {
	Listings []models.CarListing
	Skipped  map[SkipReason]int
}

// SkippedTotal returns the number of nodes that did not become listings.
func (c CollectResult) SkippedTotal() int {
	total := 0
	for _, n := range c.Skipped {
		total += n
	}
	return total
}

// Collect keeps listings in input order, drops repeated ids and stops at limit.
// A limit of zero or less means no limit.
func Collect(outcomes []Outcome, limit int) CollectResult {
	res := CollectResult{Skipped: make(map[SkipReason]int)}
	seen := make(map[string]bool, len(outcomes))
	for _, o := range outcomes {
		l, ok := o.Listing()
		if !ok {
			res.Skipped[o.Reason()]++
			continue
		}
		if l.ID == "" {
			res.Skipped[SkipMissingID]++
			continue
		}
		if seen[l.ID] {
			res.Skipped[SkipDuplicate]++
			continue
		}
		if limit > 0 && len(res.Listings) >= limit {
			res.Skipped[SkipOverLimit]++
			continue
		}
		seen[l.ID] = true
		res.Listings = append(res.Listings, l)
	}
	if res.Listings == nil {
		res.Listings = []models.CarListing{}
	}
	return res
}
