package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/stayscout/hotel-search/internal/model"
	"github.com/stayscout/hotel-search/internal/utils"
)

// Words and phrases that mark a query as refining the previous result set
// rather than starting a new search.
var refinementKeywords = []string{
	"cheaper", "cheapest", "better", "best", "more reviews",
	"first", "second", "third", "which one", "instead", "another",
	"else", "those", "them", "these", "they", "also", "still",
	"only", "about",
}

// ContextResolver turns a possibly context-dependent query into a
// standalone one: it detects refinements, carries the previous city over,
// and asks the rewrite oracle to resolve pronouns and typos. All of it is
// best-effort; the worst case is the verbatim query.
type ContextResolver struct {
	rewriter QueryRewriter
	logger   *slog.Logger
}

func NewContextResolver(rewriter QueryRewriter, logger *slog.Logger) *ContextResolver {
	return &ContextResolver{rewriter: rewriter, logger: logger}
}

// IsRefinement reports whether the query refines previous results. Both
// signals are required: a refinement cue in the text AND previous results
// to refine. "cheapest hotels" on a first turn is a fresh search.
func IsRefinement(query string, lastHotels []model.HotelRecord) bool {
	if len(lastHotels) == 0 {
		return false
	}
	queryLower := strings.ToLower(query)
	for _, kw := range refinementKeywords {
		if strings.Contains(kw, " ") {
			if strings.Contains(" "+queryLower+" ", " "+kw+" ") {
				return true
			}
		} else if utils.ContainsWord(queryLower, kw) {
			return true
		}
	}
	return false
}

// Resolve produces the standalone query the extractor will see, plus the
// refinement flag.
func (cr *ContextResolver) Resolve(ctx context.Context, query string, history []model.ConversationTurn, lastHotels []model.HotelRecord, knownCities []string) (string, bool) {
	resolved := query
	queryLower := strings.ToLower(query)
	isRefinement := IsRefinement(query, lastHotels)

	// Carry the previous city into a refinement that names no location, so
	// "cheaper ones" stays scoped to the city the user was browsing.
	if isRefinement {
		prevCity := ""
		if len(lastHotels) > 0 {
			prevCity = lastHotels[0].City
		}
		hasLocation := strings.Contains(" "+queryLower+" ", " in ") ||
			strings.Contains(" "+queryLower+" ", " at ")
		if prevCity != "" && !hasLocation {
			resolved = resolved + " in " + prevCity
			cr.logger.Info("carried previous city into refinement", "city", prevCity)
		}
	}

	if cr.rewriter == nil {
		return resolved, isRefinement
	}

	rewritten, err := cr.rewriter.RewriteQuery(ctx, resolved, history, knownCities)
	if err != nil {
		cr.logger.Debug("query rewrite unavailable, using query as-is", "error", err)
		return resolved, isRefinement
	}
	if rewritten != "" && !strings.EqualFold(rewritten, resolved) {
		cr.logger.Info("oracle resolved context", "from", resolved, "to", rewritten)
		resolved = rewritten
	}
	return resolved, isRefinement
}
