// README: Maps handlers: address search and trip estimates.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"urbanride/internal/maps"
)

// Geocoder is the maps capability the handlers need.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]maps.Place, error)
	EstimateTrip(ctx context.Context, origin, destination string) (*maps.Estimate, error)
}

type MapsHandler struct {
	geo Geocoder
}

func NewMapsHandler(geo Geocoder) *MapsHandler {
	return &MapsHandler{geo: geo}
}

type placeResponse struct {
	PlaceID          string `json:"place_id"`
	FormattedAddress string `json:"formatted_address"`
	Geometry         struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

func (h *MapsHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		writeFailure(c, http.StatusBadRequest, "missing_query", `query parameter "q" is required`)
		return
	}
	places, err := h.geo.Search(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		writeFailure(c, http.StatusBadGateway, "maps_unavailable", "location search failed")
		return
	}
	out := make([]placeResponse, 0, len(places))
	for _, p := range places {
		var r placeResponse
		r.PlaceID = p.PlaceID
		r.FormattedAddress = p.FormattedAddress
		r.Geometry.Location.Lat = p.Lat
		r.Geometry.Location.Lng = p.Lng
		out = append(out, r)
	}
	writeJSON(c, http.StatusOK, gin.H{"results": out})
}

func (h *MapsHandler) Estimate(c *gin.Context) {
	origin := strings.TrimSpace(c.Query("origin"))
	destination := strings.TrimSpace(c.Query("destination"))
	if origin == "" || destination == "" {
		writeFailure(c, http.StatusBadRequest, "missing_query", "origin and destination are required")
		return
	}
	est, err := h.geo.EstimateTrip(c.Request.Context(), origin, destination)
	if errors.Is(err, maps.ErrNoRoute) {
		writeFailure(c, http.StatusNotFound, "no_route", "no route found")
		return
	}
	if err != nil {
		_ = c.Error(err)
		writeFailure(c, http.StatusBadGateway, "maps_unavailable", "trip estimate failed")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"distance_km":      est.DistanceKm,
		"distance_text":    est.DistanceText,
		"duration_seconds": int64(est.Duration.Seconds()),
	})
}
