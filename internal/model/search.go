package model

// FilterSet holds the structured constraints derived from one free-text
// query. Fields left nil were not mentioned in the query, which is distinct
// from a constraint with an empty value. A FilterSet is immutable once the
// extractor returns it; relaxation works on copies.
type FilterSet struct {
	City             *string  `json:"city,omitempty"`
	ExcludeCity      *string  `json:"exclude_city,omitempty"`
	PriceMin         *float64 `json:"price_min,omitempty"`
	PriceMax         *float64 `json:"price_max,omitempty"`
	RatingMin        *float64 `json:"rating_min,omitempty"`
	RoomType         *string  `json:"room_type,omitempty"`
	NameLike         *string  `json:"hotel_name,omitempty"`
	Amenities        []string `json:"amenities,omitempty"`
	ExcludeAmenities []string `json:"exclude_amenities,omitempty"`

	// Invalid marks a query whose constraints can never match anything
	// (e.g. a price ceiling under $10). An invalid FilterSet must never
	// reach the record store.
	Invalid       bool   `json:"invalid,omitempty"`
	InvalidReason string `json:"invalid_reason,omitempty"`

	// RelaxationNote explains which constraints were loosened. Set only
	// after the relaxation planner fired.
	RelaxationNote string `json:"relaxation_note,omitempty"`
}

// RecordQuery is the read-only query the record store accepts. It mirrors
// FilterSet but adds exclusion IDs and paging, which are orchestration
// concerns rather than extracted constraints.
type RecordQuery struct {
	NameLike         *string
	City             *string
	ExcludeCity      *string
	PriceMin         *float64
	PriceMax         *float64
	RatingMin        *float64
	RatingMax        *float64
	RoomType         *string
	Amenities        []string
	ExcludeAmenities []string
	ExcludeIDs       []int64
	Limit            int
	Offset           int
}

// ConversationTurn is one message of the caller-supplied chat history.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// SessionMemory is the caller-held multi-turn state. The engine treats it as
// value-in/value-out: it reads LastHotels and ShownIDs, and returns updated
// copies, but never stores them itself.
type SessionMemory struct {
	LastHotels []HotelRecord `json:"last_hotels"`
	ShownIDs   []int64       `json:"shown_ids"`
}

// SearchOptions controls paging and result size.
type SearchOptions struct {
	TopK   int `json:"top_k"`
	Offset int `json:"offset"`
}

// SearchRequest is the orchestrator-facing contract consumed by the chat
// layer.
type SearchRequest struct {
	Query   string             `json:"query" binding:"required"`
	History []ConversationTurn `json:"history,omitempty"`
	Session SessionMemory      `json:"session,omitempty"`
	Options *SearchOptions     `json:"options,omitempty"`
}

// SearchResponse carries the ranked results plus everything the chat layer
// needs to explain and continue the session.
type SearchResponse struct {
	SearchID       string         `json:"search_id"`
	Results        []RankedResult `json:"results"`
	AppliedFilters FilterSet      `json:"applied_filters"`
	Explanation    string         `json:"explanation"`
	IsRefinement   bool           `json:"is_refinement"`
	ResolvedQuery  string         `json:"resolved_query"`
	Session        SessionMemory  `json:"session"`
	Took           int64          `json:"took_ms"`
}
