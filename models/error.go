package models

// ErrorResponse is the envelope written for every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// MessageResponse is the envelope for successful requests that carry no data
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthCheckResponse returns the health check response duh
type HealthCheckResponse struct {
	Alive bool `json:"alive"`
}
