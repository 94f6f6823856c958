package models

import (
	"net/url"
	"strconv"
	"strings"
)

// ParseCriteria builds SearchCriteria from query parameters. Numeric fields
// that are absent, non-numeric or negative are left unset; a leading number
// followed by junk ("2015abc") is accepted.
func ParseCriteria(q url.Values) SearchCriteria {
	c := SearchCriteria{
		Make:       strings.TrimSpace(q.Get("make")),
		MakeName:   strings.TrimSpace(q.Get("makeName")),
		Model:      strings.TrimSpace(q.Get("model")),
		ModelName:  strings.TrimSpace(q.Get("modelName")),
		YearMin:    lenientInt(q.Get("yearMin")),
		YearMax:    lenientInt(q.Get("yearMax")),
		PriceMin:   lenientInt(q.Get("priceMin")),
		PriceMax:   lenientInt(q.Get("priceMax")),
		MileageMax: lenientInt(q.Get("mileageMax")),
		ZipCode:    strings.TrimSpace(q.Get("zipCode")),
		Radius:     lenientInt(q.Get("radius")),
		BodyType:   strings.TrimSpace(q.Get("bodyType")),
		Condition:  parseCondition(q.Get("condition")),
	}
	if c.MakeName == "" {
		c.MakeName = c.Make
	}
	if c.ModelName == "" {
		c.ModelName = c.Model
	}
	return c
}

// Keywords returns the free-text query sent to sources ("Toyota Camry").
func (c SearchCriteria) Keywords() string {
	return strings.TrimSpace(strings.Join(strings.Fields(c.MakeName+" "+c.ModelName), " "))
}

func lenientInt(raw string) int {
	raw = strings.TrimSpace(raw)
	end := 0
	for end < len(raw) && raw[end] >= '0' && raw[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(raw[:end])
	if err != nil {
		return 0
	}
	return n
}

func parseCondition(raw string) Condition {
	switch Condition(strings.ToLower(strings.TrimSpace(raw))) {
	case ConditionNew:
		return ConditionNew
	case ConditionUsed:
		return ConditionUsed
	case ConditionAll:
		return ConditionAll
	default:
		return ""
	}
}
