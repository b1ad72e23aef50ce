package handlers

import "github.com/vzahanych/area-insight/internal/server/utils"

type WeatherRequest struct {
	Postcode string `form:"postcode" validate:"required,postcode,max=64"`
}

type IncidentsRequest struct {
	Postcode string `form:"postcode" validate:"required,postcode,max=64"`
	Category string `form:"category" validate:"omitempty,max=64"`
	Month    string `form:"month" validate:"omitempty,yearmonth"`
}

type RouteRequest struct {
	Mode          string `form:"mode" validate:"required,travelmode"`
	StartPostcode string `form:"startPostcode" validate:"required,postcode,max=64"`
	EndPostcode   string `form:"endPostcode" validate:"required,postcode,max=64"`
}

// CombinedRequest carries the optional query of the combined endpoint;
// include=incidents adds nearby incidents to the response.
type CombinedRequest struct {
	Include  string `form:"include" validate:"omitempty,oneof=incidents"`
	Category string `form:"category" validate:"omitempty,max=64"`
	Month    string `form:"month" validate:"omitempty,yearmonth"`
}

// ErrorResponse represents an error response with validation
type ErrorResponse struct {
	Error   string                  `json:"error" validate:"required,min=1,max=500"`
	Code    string                  `json:"code,omitempty" validate:"omitempty,min=1,max=50"`
	Details string                  `json:"details,omitempty" validate:"omitempty,max=1000"`
	Fields  []utils.ValidationError `json:"fields,omitempty"`
}

// HealthResponse represents health check response with validation
type HealthResponse struct {
	Status    string            `json:"status" validate:"required,oneof=ok alive ready unavailable"`
	Uptime    string            `json:"uptime" validate:"required"`
	Timestamp string            `json:"timestamp,omitempty" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Checks    map[string]string `json:"checks,omitempty"`
}
