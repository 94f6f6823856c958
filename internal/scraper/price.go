package scraper

import (
	"strconv"
	"strings"
)

// ParsePrice extracts the first number from price text such as "$24,500".
// It returns nil for unparsable text and for amounts below floor, which on
// car categories are usually parts or accessories.
func ParsePrice(text string, floor int) *int {
	match := regexes["price"].FindString(text)
	if match == "" {
		return nil
	}
	match = strings.ReplaceAll(match, ",", "")
	if dot := strings.IndexByte(match, '.'); dot >= 0 {
		match = match[:dot]
	}
	n, err := strconv.Atoi(match)
	if err != nil || n <= 0 || n < floor {
		return nil
	}
	return &n
}
