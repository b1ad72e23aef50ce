package model

import (
	"context"
	"time"
)

// DateLayout is the calendar date format used for every forecast entry.
const DateLayout = "2006-01-02"

// MonthLayout is the year-month format accepted by the incident provider.
const MonthLayout = "2006-01"

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// DailyForecast is the normalized single-day weather entry shared by every provider.
type DailyForecast struct {
	Date           string  `json:"date"`
	Condition      string  `json:"weather"`
	TemperatureMin float64 `json:"temp_min"`
	TemperatureMax float64 `json:"temp_max"`
}

type IncidentRecord struct {
	Category      string                 `json:"category"`
	Coordinate    Coordinate             `json:"location"`
	Month         string                 `json:"month"`
	RawAttributes map[string]interface{} `json:"attributes,omitempty"`
}

type RouteSummary struct {
	StatusCode string     `json:"code"`
	Routes     []Route    `json:"routes"`
	Waypoints  []Waypoint `json:"waypoints"`
}

type Route struct {
	Distance   float64       `json:"distance"`
	Duration   float64       `json:"duration"`
	Weight     float64       `json:"weight"`
	WeightName string        `json:"weight_name"`
	Legs       []interface{} `json:"legs,omitempty"`
}

// Waypoint is a requested point snapped onto the routing network.
type Waypoint struct {
	Coordinate Coordinate `json:"location"`
	Distance   float64    `json:"distance"`
	Name       string     `json:"name"`
	Hint       string     `json:"hint,omitempty"`
}

// LocationRecord is a stored place whose postcode drives the combined lookup.
type LocationRecord struct {
	ID            string                 `json:"id"`
	Name          string                 `json:"name"`
	Postcode      string                 `json:"postcode"`
	Attributes    map[string]interface{} `json:"attributes,omitempty"`
	WeeklyWeather []DailyForecast        `json:"weekly_weather,omitempty"`
}

// DateOf formats t in the forecast calendar layout using t's own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

type contextKey string

// RequestIDKey carries the inbound request id through context for correlated logging.
const RequestIDKey contextKey = "request_id"

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}
