package scraper

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// KnownMakes maps a lowercase make spelling to its display name.
var KnownMakes = map[string]string{
	"acura": "Acura", "alfa romeo": "Alfa Romeo", "aston martin": "Aston Martin", "audi": "Audi",
	"bentley": "Bentley", "bmw": "BMW", "buick": "Buick", "cadillac": "Cadillac",
	"chevrolet": "Chevrolet", "chevy": "Chevrolet", "chrysler": "Chrysler", "dodge": "Dodge",
	"ferrari": "Ferrari", "fiat": "Fiat", "ford": "Ford", "genesis": "Genesis", "gmc": "GMC",
	"honda": "Honda", "hummer": "Hummer", "hyundai": "Hyundai", "infiniti": "Infiniti",
	"isuzu": "Isuzu", "jaguar": "Jaguar", "jeep": "Jeep", "kia": "Kia", "lamborghini": "Lamborghini",
	"land rover": "Land Rover", "lexus": "Lexus", "lincoln": "Lincoln", "lucid": "Lucid",
	"maserati": "Maserati", "mazda": "Mazda", "mercedes-benz": "Mercedes-Benz", "mercedes": "Mercedes-Benz",
	"mercury": "Mercury", "mini": "MINI", "mitsubishi": "Mitsubishi", "nissan": "Nissan",
	"oldsmobile": "Oldsmobile", "polestar": "Polestar", "pontiac": "Pontiac", "porsche": "Porsche",
	"ram": "Ram", "rivian": "Rivian", "saab": "Saab", "saturn": "Saturn", "scion": "Scion",
	"subaru": "Subaru", "suzuki": "Suzuki", "tesla": "Tesla", "toyota": "Toyota",
	"volkswagen": "Volkswagen", "vw": "Volkswagen", "volvo": "Volvo",
}

// abbreviations lists the informal spellings that canonicalize both ways
var abbreviations = map[string]string{
	"chevy": "chevrolet",
	"vw":    "volkswagen",
}

var makePattern = compileMakePattern()

func compileMakePattern() *regexp.Regexp {
	names := make([]string, 0, len(KnownMakes))
	for name := range KnownMakes {
		names = append(names, regexp.QuoteMeta(name))
	}
	// longer spellings first so "mercedes-benz" wins over "mercedes"
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return regexp.MustCompile(`(?i)\b(` + strings.Join(names, "|") + `)\b`)
}

// TitleInfo is what ParseTitle could recover from free text; nil means no match.
type TitleInfo struct {
	Year    *int
	Make    *string
	Model   *string
	Mileage *int
}

// ParseTitle applies the year, make, model and mileage heuristics to a listing title.
func ParseTitle(title string, now time.Time) TitleInfo {
	info := TitleInfo{
		Year:    ParseYear(title, now),
		Mileage: ParseMileage(title),
	}
	if loc := makePattern.FindStringSubmatchIndex(title); loc != nil {
		canonical := KnownMakes[strings.ToLower(title[loc[2]:loc[3]])]
		info.Make = &canonical
		if model := modelAfter(title[loc[1]:]); model != "" {
			info.Model = &model
		}
	}
	return info
}

// ParseYear returns the first 4-digit token between MinModelYear and next year.
func ParseYear(title string, now time.Time) *int {
	maxYear := now.Year() + 1
	for _, m := range regexes["year"].FindAllString(title, -1) {
		year, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if year >= MinModelYear && year <= maxYear {
			return &year
		}
	}
	return nil
}

// ParseMake returns the canonical name of the first known make in title.
func ParseMake(title string) *string {
	m := makePattern.FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	canonical := KnownMakes[strings.ToLower(m[1])]
	return &canonical
}

// ParseMileage returns the first number followed by "mi" or "miles", with a
// "k" suffix meaning thousands ("10k mi" -> 10000).
func ParseMileage(title string) *int {
	m := regexes["mileage"].FindStringSubmatch(title)
	if m == nil {
		return nil
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	if m[2] != "" {
		value *= 1000
	}
	miles := int(value + 0.5)
	return &miles
}

// CanonicalMake maps any known spelling ("chevy", "VW", "mercedes") to its
// display name. Unknown makes are returned trimmed but otherwise unchanged.
func CanonicalMake(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if full, ok := abbreviations[key]; ok {
		key = full
	}
	if canonical, ok := KnownMakes[key]; ok {
		return canonical
	}
	return strings.TrimSpace(name)
}

// modelAfter returns the word following a make match when it looks like a model name.
func modelAfter(rest string) string {
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return ""
	}
	word := strings.Trim(fields[0], ",.;:!?()[]\"'")
	if word == "" || word == "-" {
		return ""
	}
	if regexes["year"].FindString(word) == word {
		return ""
	}
	return word
}
