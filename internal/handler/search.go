package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stayscout/hotel-search/internal/model"
	"github.com/stayscout/hotel-search/internal/service"
)

// SearchHandler exposes the search engine over HTTP for the chat layer.
type SearchHandler struct {
	searchService *service.SearchService
	defaultTopK   int
	maxLimit      int
}

func NewSearchHandler(searchService *service.SearchService, defaultTopK, maxLimit int) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		defaultTopK:   defaultTopK,
		maxLimit:      maxLimit,
	}
}

// Search handles POST /api/v1/search
func (h *SearchHandler) Search(c *gin.Context) {
	var req model.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if req.Options == nil {
		req.Options = &model.SearchOptions{TopK: h.defaultTopK}
	} else {
		if req.Options.TopK <= 0 {
			req.Options.TopK = h.defaultTopK
		}
		if req.Options.TopK > h.maxLimit {
			req.Options.TopK = h.maxLimit
		}
		if req.Options.Offset < 0 {
			req.Options.Offset = 0
		}
	}

	// The engine reports every failure inside the response body; HTTP
	// errors are reserved for malformed requests.
	response := h.searchService.Search(c.Request.Context(), req)
	c.JSON(http.StatusOK, response)
}

// GetHotel handles GET /api/v1/hotels/:id
func (h *SearchHandler) GetHotel(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid hotel ID"})
		return
	}

	hotel, err := h.searchService.GetHotel(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get hotel"})
		return
	}
	if hotel == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Hotel not found"})
		return
	}
	c.JSON(http.StatusOK, hotel)
}

// ListCities handles GET /api/v1/cities
func (h *SearchHandler) ListCities(c *gin.Context) {
	cities, err := h.searchService.Cities(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list cities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cities": cities, "count": len(cities)})
}
