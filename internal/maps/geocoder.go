// README: Google Maps adapter: address search for ride origins/destinations and trip distance estimates.
package maps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"googlemaps.github.io/maps"
)

var ErrNoRoute = errors.New("no route found")

// Place is one geocoding match.
type Place struct {
	PlaceID          string
	FormattedAddress string
	Lat              float64
	Lng              float64
}

// Estimate is the driving distance and duration between two addresses.
type Estimate struct {
	DistanceKm   float64
	DistanceText string
	Duration     time.Duration
}

// api is the subset of *maps.Client used here.
type api interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	DistanceMatrix(ctx context.Context, r *maps.DistanceMatrixRequest) (*maps.DistanceMatrixResponse, error)
}

// Geocoder handles interactions with the Google Geocoding and Distance Matrix APIs.
type Geocoder struct {
	client   api
	region   string
	language string
	limit    int
}

// NewGeocoder creates a Geocoder with the given API key, biased to Brazil.
func NewGeocoder(apiKey string) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return newGeocoder(client), nil
}

func newGeocoder(client api) *Geocoder {
	return &Geocoder{client: client, region: "br", language: "pt-BR", limit: 5}
}

// Search geocodes free text. No match is an empty result, not an error.
func (g *Geocoder) Search(ctx context.Context, query string) ([]Place, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	resp, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		Address:  query,
		Region:   g.region,
		Language: g.language,
	})
	if err != nil {
		if strings.Contains(err.Error(), "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, fmt.Errorf("geocoding api error: %w", err)
	}

	places := make([]Place, 0, len(resp))
	for _, r := range resp {
		places = append(places, Place{
			PlaceID:          r.PlaceID,
			FormattedAddress: r.FormattedAddress,
			Lat:              r.Geometry.Location.Lat,
			Lng:              r.Geometry.Location.Lng,
		})
		if len(places) >= g.limit {
			break
		}
	}
	return places, nil
}

// EstimateTrip returns the driving distance and duration from origin to destination.
func (g *Geocoder) EstimateTrip(ctx context.Context, origin, destination string) (*Estimate, error) {
	resp, err := g.client.DistanceMatrix(ctx, &maps.DistanceMatrixRequest{
		Origins:      []string{origin},
		Destinations: []string{destination},
		Mode:         maps.TravelModeDriving,
		Language:     g.language,
	})
	if err != nil {
		return nil, fmt.Errorf("distance matrix api error: %w", err)
	}
	if len(resp.Rows) == 0 || len(resp.Rows[0].Elements) == 0 {
		return nil, ErrNoRoute
	}
	el := resp.Rows[0].Elements[0]
	if el == nil || el.Status != "OK" {
		return nil, ErrNoRoute
	}
	return &Estimate{
		DistanceKm:   float64(el.Distance.Meters) / 1000,
		DistanceText: el.Distance.HumanReadable,
		Duration:     el.Duration,
	}, nil
}
