package model

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindLocationUnresolvable    Kind = "LOCATION_UNRESOLVABLE"
	KindLocationNotFound        Kind = "LOCATION_NOT_FOUND"
	KindWeatherUnavailable      Kind = "WEATHER_UNAVAILABLE"
	KindIncidentDataUnavailable Kind = "INCIDENT_DATA_UNAVAILABLE"
	KindRouteUnavailable        Kind = "ROUTE_UNAVAILABLE"
	KindNoForecastForToday      Kind = "NO_FORECAST_FOR_TODAY"
	KindUpstreamTransport       Kind = "UPSTREAM_TRANSPORT_ERROR"
)

var defaultMessages = map[Kind]string{
	KindLocationUnresolvable:    "Invalid postcode or unable to retrieve coordinates",
	KindLocationNotFound:        "Location not found",
	KindWeatherUnavailable:      "Error retrieving weather data",
	KindIncidentDataUnavailable: "Error retrieving crime data",
	KindRouteUnavailable:        "Error retrieving route data",
	KindNoForecastForToday:      "No forecast available for today",
	KindUpstreamTransport:       "Upstream provider unreachable",
}

// Failure is the tagged error returned by every operation in this module.
type Failure struct {
	Kind    Kind
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is matches any Failure of the same kind, so sentinels work with errors.Is.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return f.Kind == t.Kind
}

var (
	ErrLocationUnresolvable    = &Failure{Kind: KindLocationUnresolvable, Message: defaultMessages[KindLocationUnresolvable]}
	ErrLocationNotFound        = &Failure{Kind: KindLocationNotFound, Message: defaultMessages[KindLocationNotFound]}
	ErrWeatherUnavailable      = &Failure{Kind: KindWeatherUnavailable, Message: defaultMessages[KindWeatherUnavailable]}
	ErrIncidentDataUnavailable = &Failure{Kind: KindIncidentDataUnavailable, Message: defaultMessages[KindIncidentDataUnavailable]}
	ErrRouteUnavailable        = &Failure{Kind: KindRouteUnavailable, Message: defaultMessages[KindRouteUnavailable]}
	ErrNoForecastForToday      = &Failure{Kind: KindNoForecastForToday, Message: defaultMessages[KindNoForecastForToday]}
	ErrUpstreamTransport       = &Failure{Kind: KindUpstreamTransport, Message: defaultMessages[KindUpstreamTransport]}
)

// NewFailure wraps err under kind with the kind's default message.
func NewFailure(kind Kind, err error) *Failure {
	return &Failure{Kind: kind, Message: defaultMessages[kind], Err: err}
}

// WithMessage returns a copy of f carrying msg as its user-visible message.
func (f *Failure) WithMessage(msg string) *Failure {
	return &Failure{Kind: f.Kind, Message: msg, Err: f.Err}
}

// AsFailure extracts the outermost Failure from err. Untagged errors are
// reported as upstream transport failures.
func AsFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return NewFailure(KindUpstreamTransport, err)
}

// IsTransport reports whether err was caused by a connectivity fault or timeout.
func IsTransport(err error) bool {
	return errors.Is(err, ErrUpstreamTransport)
}

// ErrorPayload is the structured body returned to callers on failure.
type ErrorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func PayloadOf(err error) ErrorPayload {
	f := AsFailure(err)
	return ErrorPayload{Error: f.Message, Code: string(f.Kind)}
}
