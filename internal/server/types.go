// Package server provides the HTTP server for the memory-images API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import "time"

// ImageDTO is one slideshow image in a render request.
type ImageDTO struct {
	// ID is an optional caller identity; a UUID is assigned when empty.
	ID string `json:"id"`
	// DataBase64 is the base64-encoded image.
	DataBase64 string `json:"data_base64" validate:"required,base64"`
}

// TransitionsDTO is the transition selection of a render request.
type TransitionsDTO struct {
	// Mode is "single" or "multiple".
	Mode string `json:"mode" validate:"required,oneof=single multiple"`
	// Single is the kind used in single mode.
	Single string `json:"single,omitempty"`
	// Multiple is the rotation used in multiple mode.
	Multiple []string `json:"multiple,omitempty"`
}

// CreateRenderRequest is the HTTP request body for creating a render job.
type CreateRenderRequest struct {
	// Images are rendered in array order.
	Images []ImageDTO `json:"images" validate:"required,min=1,dive"`
	// AudioBase64 is the base64-encoded MP3 soundtrack.
	AudioBase64 string `json:"audio_base64" validate:"required,base64"`
	// AudioName is the original audio file name, informational only.
	AudioName string `json:"audio_name,omitempty"`
	// Transitions defaults to a single fade when omitted.
	Transitions *TransitionsDTO `json:"transitions,omitempty"`
	// PhotoDuration is the seconds each image is shown.
	PhotoDuration *float64 `json:"photo_duration,omitempty" validate:"omitempty,min=0.5,max=30"`
	// TransitionDuration is the seconds of each transition.
	TransitionDuration *float64 `json:"transition_duration,omitempty" validate:"omitempty,min=0.1,max=5"`
	// PushToS3 indicates whether to publish the final video to S3.
	PushToS3 bool `json:"push_to_s3"`
}

// CreateRenderResponse is the HTTP response after creating a render job.
type CreateRenderResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
	// EstimatedSeconds is the expected slideshow length.
	EstimatedSeconds float64 `json:"estimated_seconds"`
	// EstimatedDuration is EstimatedSeconds formatted as ~m:ss.
	EstimatedDuration string `json:"estimated_duration"`
}

// RenderResponse is the HTTP response for getting job details.
type RenderResponse struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	Progress         int       `json:"progress"`
	Phase            string    `json:"phase,omitempty"`
	CurrentStep      string    `json:"current_step,omitempty"`
	EngineProgress   *int      `json:"engine_progress,omitempty"`
	Error            string    `json:"error,omitempty"`
	ImageCount       int       `json:"image_count"`
	EstimatedSeconds float64   `json:"estimated_seconds"`
	DurationSeconds  float64   `json:"duration_seconds,omitempty"`
	VideoURL         string    `json:"video_url,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ListRendersResponse is the HTTP response for listing jobs.
type ListRendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

// EstimateRequest is the HTTP request body for a duration estimate.
type EstimateRequest struct {
	ImageCount         int     `json:"image_count" validate:"min=0"`
	PhotoDuration      float64 `json:"photo_duration" validate:"min=0.5,max=30"`
	TransitionDuration float64 `json:"transition_duration" validate:"min=0.1,max=5"`
}

// EstimateResponse is the HTTP response for a duration estimate.
type EstimateResponse struct {
	Seconds float64 `json:"seconds"`
	Display string  `json:"display"`
}

// TransitionDTO describes one transition kind.
type TransitionDTO struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// TransitionsResponse lists the transition kinds and the default selection.
type TransitionsResponse struct {
	Transitions []TransitionDTO `json:"transitions"`
	Default     TransitionsDTO  `json:"default"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
	// EngineReady reports whether the media engine has been initialised.
	EngineReady bool `json:"engine_ready"`
}
