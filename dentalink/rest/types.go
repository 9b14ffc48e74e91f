package rest

import (
	"encoding/json"
	"time"
)

// NotificationInfo is one server-side notification record.
type NotificationInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  string    `json:"severity,omitempty"`
	PatientID string    `json:"patient_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationsResponse is a page of notifications.
type NotificationsResponse struct {
	Notifications []NotificationInfo `json:"notifications"`
	HasMore       bool               `json:"has_more"`
}

// TelemetryReport is the body POSTed to the telemetry sink.
type TelemetryReport struct {
	Metrics   json.RawMessage `json:"metrics"`
	ClientID  string          `json:"client_id"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error string `json:"error"`
}
