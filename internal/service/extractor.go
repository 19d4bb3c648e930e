package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/stayscout/hotel-search/internal/model"
	"github.com/stayscout/hotel-search/internal/utils"
)

// FilterExtractor turns one free-text query into a FilterSet using layered
// regex heuristics. It is deterministic and never calls the network; the
// oracle only ever rewrites the query upstream of it.
type FilterExtractor struct {
	logger *slog.Logger
}

func NewFilterExtractor(logger *slog.Logger) *FilterExtractor {
	return &FilterExtractor{logger: logger}
}

// Hotel chains checked verbatim against the lowercased query. A brand hit
// becomes a name filter, which later bypasses already-shown exclusions.
var hotelBrands = []string{
	"marriott", "hyatt", "hilton", "quest", "ibishotel", "sofitel",
	"crown", "mantra", "wrest", "doubletree", "ibis", "langham",
	"rydges", "meriton", "intercontinental", "shangri-la", "four seasons",
	"pan pacific", "westin", "sheraton", "novotel", "mercure", "adin",
}

// Fallback city vocabulary used when the store has not been asked for its
// distinct cities yet (or the lookup failed).
var fallbackCities = []string{
	"new york", "miami", "los angeles", "chicago", "san francisco",
	"boston", "seattle", "denver", "portland", "las vegas",
	"san diego", "houston", "dallas", "phoenix", "nashville",
	"philadelphia", "minneapolis", "new orleans", "aspen", "napa valley",
	"miami beach",
}

var cityNegationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:not\s+in|excluding|except|without)\s+([a-z\s]+)`),
	regexp.MustCompile(`hotels?\s+(?:not|excluding)\s+([a-z\s]+)`),
	regexp.MustCompile(`(?:other\s+than|besides)\s+([a-z\s]+)`),
}

// Candidate phrases after a location preposition, used only when no known
// city matched exactly. The capture stops at filter keywords so "in Sydny
// with pool" yields just "sydny".
var cityCandidateRe = regexp.MustCompile(
	`(?i)\b(?:in|at|near|from)\s+([a-z][a-z\s]+?)(?:\s+(?:with|without|under|over|below|above|rated|rating|hotels?|for|and)|[?,.!]|$)`)

var cityIgnoreWords = map[string]bool{
	"the": true, "a": true, "an": true, "with": true,
	"and": true, "or": true, "all": true, "some": true, "many": true,
}

const cityFuzzyCutoff = 0.7

// Price patterns. Group 1 is the amount; the optional trailing group mirrors
// a negative lookahead: a non-empty capture means the number belonged to a
// rating phrase, so the match is discarded.
var priceRangePatterns = []*regexp.Regexp{
	regexp.MustCompile(`between\s+\$(\d+(?:\.\d+)?)\s+(?:and|to|-)\s+\$?(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*-\s*\$?(\d+(?:\.\d+)?)`),
}

var minPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:more\s+th[ae]n|above|over|greater\s+th[ae]n|at\s+least|starting\s+from|minimum|min)\s+(?:price|rate|budget|cost)?\s*(?:of\s+)?\$?(\d+(?:\.\d+)?)(\s*(?:stars?|ratings?|reviews?))?`),
	regexp.MustCompile(`\$(\d+(?:\.\d+)?)\s*\+`),
	regexp.MustCompile(`\$?(\d+(?:\.\d+)?)\s*(?:dollars?\s*)?(?:and|or)\s+(?:more|above|up|higher)(\s*(?:stars?|ratings?|reviews?))?`),
	regexp.MustCompile(`\$?(\d+(?:\.\d+)?)\s*(?:plus|onwards?)(\s*(?:stars?|ratings?|reviews?))?`),
}

var maxPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:under|less\s+th[ae]n|below|max|maximum|budget|cost|up\s+to)\s*(?:of\s+)?\$?(\d+(?:\.\d+)?)(\s*(?:stars?|ratings?|reviews?))?`),
	regexp.MustCompile(`\$?(\d+(?:\.\d+)?)\s*(?:or\s+less|and\s+under)`),
}

var generalPricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$(\d+(?:\.\d+)?)(\s*(?:stars?|ratings?|reviews?))?`),
	regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*dollars?\b`),
}

var budgetCueWords = []string{"budget", "cheap", "affordable", "economical"}
var luxuryCuePhrases = []string{"luxury", "expensive", "premium", "five star", "5-star"}

const (
	budgetCueMaxPrice = 100.0
	luxuryCueMinPrice = 200.0
	priceCeiling      = 10000.0
	minViablePriceMax = 10.0
)

// Rating patterns run strictly after price extraction so "under $200 rated
// 4+" never reads 200 as a rating. The trailing dollars group discards
// amounts like "200 dollars".
var ratingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:rated|rating|stars?|reviews?)\s*(?:of|at|above|more\s+th[ae]n|over|at\s+least)?\s*(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)[\s-]*(?:\+|stars?|ratings?|reviews?)(\s*dollars?)?`),
	regexp.MustCompile(`(\d+(?:\.\d+)?)\s*and\s+(?:above|up|higher)(\s*dollars?)?`),
}

// Room types, most specific first so "presidential suite" is not read as
// a plain suite.
var roomTypeKeywords = []struct {
	keyword  string
	roomType string
}{
	{"presidential", "presidential"},
	{"suite", "suite"},
	{"deluxe", "deluxe"},
	{"standard", "standard"},
}

type amenityRule struct {
	keyword   string
	canonical string
	negations []*regexp.Regexp
}

// Amenity vocabulary in a fixed order so extraction (and the relaxation
// notes built from it) stays deterministic.
var amenityRules = buildAmenityRules([]struct{ keyword, canonical string }{
	{"pool", "Pool"},
	{"gym", "Gym"},
	{"wifi", "Free Wi-Fi"},
	{"internet", "Free Wi-Fi"},
	{"spa", "Spa"},
	{"restaurant", "Restaurant"},
	{"breakfast", "breakfast included"},
	{"parking", "Parking"},
	{"beach", "Beach"},
	{"bar", "Bar"},
	{"balcony", "Balconies"},
	{"balconies", "Balconies"},
	{"fireplace", "Fireplace"},
	{"music", "Live Music"},
	{"rooftop bar", "rooftop bar"},
	{"pet", "pet"},
	{"kitchen", "fullyequipped kitchens"},
	{"laundry", "laundry facilities"},
})

func buildAmenityRules(entries []struct{ keyword, canonical string }) []amenityRule {
	rules := make([]amenityRule, 0, len(entries))
	for _, e := range entries {
		kw := regexp.QuoteMeta(e.keyword)
		rules = append(rules, amenityRule{
			keyword:   e.keyword,
			canonical: e.canonical,
			negations: []*regexp.Regexp{
				regexp.MustCompile(`(?:without|no|not|excluding|except)\s+(?:a\s+)?` + kw),
				regexp.MustCompile(`(?:don't|dont)\s+(?:have|want|need)\s+(?:a\s+)?` + kw),
			},
		})
	}
	return rules
}

// Extract parses the query into a FilterSet. knownCities and knownAmenities
// come from the record store's discovery metadata; empty slices fall back to
// the built-in vocabularies.
func (e *FilterExtractor) Extract(query string, knownCities, knownAmenities []string) model.FilterSet {
	filters := model.FilterSet{}
	queryLower := strings.ToLower(query)

	validCities := lowerAll(knownCities)
	if len(validCities) == 0 {
		validCities = fallbackCities
	}

	for _, brand := range hotelBrands {
		if strings.Contains(queryLower, brand) {
			name := titleCase(brand)
			filters.NameLike = &name
			break
		}
	}

	// Negation first: "not in miami" must never become city=miami.
	negatedCity := e.extractNegatedCity(queryLower, validCities)
	if negatedCity != "" {
		excl := titleCase(negatedCity)
		filters.ExcludeCity = &excl
	}

	cityFound := false
	if negatedCity == "" {
		for _, city := range validCities {
			if strings.Contains(queryLower, city) {
				c := titleCase(city)
				filters.City = &c
				cityFound = true
				break
			}
		}
	}

	if !cityFound && negatedCity == "" {
		if invalid := e.resolveCityCandidate(query, validCities, &filters); invalid {
			return filters
		}
	}

	e.extractPrice(queryLower, &filters)
	if filters.Invalid {
		return filters
	}

	e.extractRating(queryLower, &filters)

	for _, rt := range roomTypeKeywords {
		if strings.Contains(queryLower, rt.keyword) {
			r := rt.roomType
			filters.RoomType = &r
			break
		}
	}

	e.extractAmenities(queryLower, knownAmenities, &filters)

	e.logger.Debug("extracted filters",
		"query", query,
		"city", strPtr(filters.City),
		"exclude_city", strPtr(filters.ExcludeCity),
		"price_min", floatPtr(filters.PriceMin),
		"price_max", floatPtr(filters.PriceMax),
		"rating_min", floatPtr(filters.RatingMin),
		"amenities", filters.Amenities,
		"exclude_amenities", filters.ExcludeAmenities,
	)
	return filters
}

func (e *FilterExtractor) extractNegatedCity(queryLower string, validCities []string) string {
	for _, re := range cityNegationPatterns {
		m := re.FindStringSubmatch(queryLower)
		if m == nil {
			continue
		}
		phrase := strings.TrimSpace(m[1])
		// The city must directly follow the negation word; "without pool in
		// miami" negates the pool, not the city.
		for _, city := range validCities {
			if phrase == city || strings.HasPrefix(phrase, city+" ") {
				return city
			}
		}
	}
	return ""
}

// resolveCityCandidate handles phrases that look like a city but matched
// nothing exactly. A close fuzzy match is corrected silently; an unknown
// term only invalidates the query when the query is too short to carry any
// other signal. The returned bool reports invalidity.
func (e *FilterExtractor) resolveCityCandidate(query string, validCities []string, filters *model.FilterSet) bool {
	m := cityCandidateRe.FindStringSubmatch(query)
	if m == nil {
		return false
	}
	candidate := strings.ToLower(strings.TrimSpace(m[1]))
	if cityIgnoreWords[candidate] || len(candidate) <= 3 {
		return false
	}

	if corrected, ok := utils.ClosestMatch(candidate, validCities, cityFuzzyCutoff); ok {
		e.logger.Info("fuzzy-corrected city", "from", candidate, "to", corrected)
		c := titleCase(corrected)
		filters.City = &c
		return false
	}

	if len(strings.Fields(query)) < 4 {
		filters.Invalid = true
		filters.InvalidReason = fmt.Sprintf("City '%s' not found in database", candidate)
		return true
	}
	e.logger.Info("unknown location term, leaving city unset", "term", candidate)
	return false
}

func (e *FilterExtractor) extractPrice(queryLower string, filters *model.FilterSet) {
	if min, max, ok := matchPriceRange(queryLower); ok {
		filters.PriceMin = &min
		filters.PriceMax = &max
	} else {
		if v, ok := matchAmount(minPricePatterns, queryLower); ok && v > 0 && v < priceCeiling {
			filters.PriceMin = &v
		}
		if v, ok := matchAmount(maxPricePatterns, queryLower); ok && v >= 0 && v < priceCeiling {
			filters.PriceMax = &v
		}
		if filters.PriceMin == nil && filters.PriceMax == nil {
			if v, ok := matchAmount(generalPricePatterns, queryLower); ok && v >= 0 && v < priceCeiling {
				filters.PriceMax = &v
			}
		}
	}

	// Vague budget cues only apply when no explicit amount was given.
	// Whole-word matching keeps "cheaper" (a refinement cue) from
	// triggering the budget cap.
	if filters.PriceMax == nil && filters.PriceMin == nil {
		for _, w := range budgetCueWords {
			if utils.ContainsWord(queryLower, w) {
				v := budgetCueMaxPrice
				filters.PriceMax = &v
				break
			}
		}
	}
	if filters.PriceMin == nil {
		for _, p := range luxuryCuePhrases {
			if strings.Contains(queryLower, p) {
				v := luxuryCueMinPrice
				filters.PriceMin = &v
				break
			}
		}
	}

	// A ceiling this low can never match a real nightly rate; fail the
	// query instead of letting relaxation surface arbitrary hotels.
	if filters.PriceMax != nil && *filters.PriceMax < minViablePriceMax {
		filters.Invalid = true
		filters.InvalidReason = fmt.Sprintf("Price filter '$%.0f' is too low for matching.", *filters.PriceMax)
	}
}

func (e *FilterExtractor) extractRating(queryLower string, filters *model.FilterSet) {
	for _, re := range ratingPatterns {
		loc := re.FindStringSubmatchIndex(queryLower)
		if loc == nil {
			continue
		}
		if guardMatched(loc) {
			continue
		}
		v, err := strconv.ParseFloat(queryLower[loc[2]:loc[3]], 64)
		if err != nil || v < 0 || v > 10 {
			continue
		}
		filters.RatingMin = &v
		return
	}
}

func (e *FilterExtractor) extractAmenities(queryLower string, knownAmenities []string, filters *model.FilterSet) {
	seen := map[string]bool{}
	excluded := map[string]bool{}

	for _, rule := range amenityRules {
		negated := false
		for _, neg := range rule.negations {
			if neg.MatchString(queryLower) {
				if !excluded[rule.canonical] {
					filters.ExcludeAmenities = append(filters.ExcludeAmenities, rule.canonical)
					excluded[rule.canonical] = true
				}
				negated = true
				break
			}
		}
		if !negated && strings.Contains(queryLower, rule.keyword) && !seen[rule.canonical] {
			filters.Amenities = append(filters.Amenities, rule.canonical)
			seen[rule.canonical] = true
		}
	}

	// Store-discovered amenity tags outside the built-in vocabulary.
	for _, amenity := range knownAmenities {
		al := strings.ToLower(strings.TrimSpace(amenity))
		if al == "" || seen[amenity] || excluded[amenity] || coveredByRules(al) {
			continue
		}
		matched := false
		if strings.Contains(al, " ") {
			matched = strings.Contains(queryLower, al)
		} else {
			matched = utils.ContainsWord(queryLower, al)
		}
		if matched {
			filters.Amenities = append(filters.Amenities, amenity)
			seen[amenity] = true
		}
	}
}

func coveredByRules(keywordLower string) bool {
	for _, rule := range amenityRules {
		if rule.keyword == keywordLower || strings.ToLower(rule.canonical) == keywordLower {
			return true
		}
	}
	return false
}

func matchPriceRange(queryLower string) (float64, float64, bool) {
	for _, re := range priceRangePatterns {
		loc := re.FindStringSubmatchIndex(queryLower)
		if loc == nil || precededByRatingCue(queryLower[:loc[0]]) {
			continue
		}
		min, err1 := strconv.ParseFloat(queryLower[loc[2]:loc[3]], 64)
		max, err2 := strconv.ParseFloat(queryLower[loc[4]:loc[5]], 64)
		if err1 != nil || err2 != nil || min < 0 || max >= priceCeiling || min > max {
			continue
		}
		return min, max, true
	}
	return 0, 0, false
}

// matchAmount returns the first pattern hit whose context is not a rating
// phrase, checking both the trailing guard group and the words right before
// the match.
func matchAmount(patterns []*regexp.Regexp, queryLower string) (float64, bool) {
	for _, re := range patterns {
		loc := re.FindStringSubmatchIndex(queryLower)
		if loc == nil {
			continue
		}
		if guardMatched(loc) || precededByRatingCue(queryLower[:loc[0]]) {
			continue
		}
		v, err := strconv.ParseFloat(queryLower[loc[2]:loc[3]], 64)
		if err != nil {
			continue
		}
		return v, true
	}
	return 0, false
}

// guardMatched reports whether the pattern's trailing guard group (group 2,
// when present) captured text, meaning the number was part of a rating
// phrase.
func guardMatched(loc []int) bool {
	return len(loc) >= 6 && loc[4] >= 0 && loc[5] > loc[4]
}

var ratingCueSuffixes = []string{"rated", "rating", "ratings", "star", "stars", "review", "reviews"}

func precededByRatingCue(prefix string) bool {
	prefix = strings.TrimRight(prefix, " \t")
	for _, cue := range ratingCueSuffixes {
		if strings.HasSuffix(prefix, cue) {
			return true
		}
	}
	return false
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func floatPtr(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
