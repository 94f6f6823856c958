package models

// Condition filters listings by vehicle condition
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
	ConditionAll  Condition = "all"
)

// SearchCriteria is the caller's filter. Zero values mean "no filter on that field".
type SearchCriteria struct {
	Make       string    `json:"make,omitempty"`
	MakeName   string    `json:"makeName,omitempty"`
	Model      string    `json:"model,omitempty"`
	ModelName  string    `json:"modelName,omitempty"`
	YearMin    int       `json:"yearMin,omitempty"`
	YearMax    int       `json:"yearMax,omitempty"`
	PriceMin   int       `json:"priceMin,omitempty"`
	PriceMax   int       `json:"priceMax,omitempty"`
	MileageMax int       `json:"mileageMax,omitempty"`
	ZipCode    string    `json:"zipCode,omitempty"`
	Radius     int       `json:"radius,omitempty"`
	BodyType   string    `json:"bodyType,omitempty"`
	Condition  Condition `json:"condition,omitempty"`
}

// CarListing is the normalized listing record shared by every source
type CarListing struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Price       *int    `json:"price"`
	Year        *int    `json:"year"`
	Make        *string `json:"make"`
	Model       *string `json:"model"`
	Mileage     *int    `json:"mileage"`
	Location    *string `json:"location"`
	ImageURL    *string `json:"imageUrl"`
	ListingURL  string  `json:"listingUrl"`
	Source      string  `json:"source"`
	SourceColor string  `json:"sourceColor"`
	PostedDate  *string `json:"postedDate"`
}

// ScraperResult is what a single source adapter returns. Error is set only when
// the adapter could not obtain any usable page.
type ScraperResult struct {
	Source   string       `json:"source"`
	Listings []CarListing `json:"listings"`
	Error    string       `json:"error,omitempty"`

	// Err keeps the typed cause of Error for classification
	Err error `json:"-"`
}

// SourceStatus reports how one source fared during aggregation
type SourceStatus struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

// AggregatedResult is the merged output of every configured source
type AggregatedResult struct {
	Listings        []CarListing   `json:"listings"`
	Sources         []SourceStatus `json:"sources"`
	TotalCount      int            `json:"totalCount"`
	UsingSampleData bool           `json:"usingSampleData"`
}

// SearchResponse is returned to HTTP, Lambda and CLI callers
type SearchResponse struct {
	Success         bool           `json:"success"`
	Listings        []CarListing   `json:"listings"`
	Sources         []SourceStatus `json:"sources"`
	TotalCount      int            `json:"totalCount"`
	UsingSampleData bool           `json:"usingSampleData,omitempty"`
	Meta            Metadata       `json:"meta"`
}

// Metadata contains request metadata
type Metadata struct {
	Total      int            `json:"total"`
	Params     SearchCriteria `json:"params"`
	DurationMs int64          `json:"durationMs"`
}

// ErrorResponse represents error responses
type ErrorResponse struct {
	Success  bool           `json:"success"`
	Error    string         `json:"error"`
	Details  string         `json:"details,omitempty"`
	Listings []CarListing   `json:"listings"`
	Sources  []SourceStatus `json:"sources"`
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// StringPtr returns nil for an empty string so absent text serializes as null.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
