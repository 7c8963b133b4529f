// SPDX-License-Identifier: MIT

// Package genai abstracts the multimodal inference backend. The worker
// depends on the Client capability set; the Gemini REST adapter implements
// it against the v1beta API surface.
package genai

import (
	"context"
	"fmt"
)

// FileState is the processing state of uploaded media.
type FileState string

const (
	StateProcessing FileState = "PROCESSING"
	StateActive     FileState = "ACTIVE"
	StateFailed     FileState = "FAILED"
)

// MediaFile is a handle to media uploaded to the inference backend.
type MediaFile struct {
	Name     string
	URI      string
	MimeType string
	State    FileState
}

// VideoMetadata scopes a media part to a window of the source and caps the
// sampling rate. A zero FPS omits the hint.
type VideoMetadata struct {
	StartOffsetSec float64
	EndOffsetSec   float64
	FPS            float64
}

// Part is one element of a multimodal request: either a media reference or
// prompt text.
type Part struct {
	Text  string
	Media *MediaPart
}

// MediaPart references uploaded media with optional windowing metadata.
type MediaPart struct {
	URI      string
	MimeType string
	Metadata *VideoMetadata
}

// TextPart builds a prompt-text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// MediaRef builds a media-reference part.
func MediaRef(uri, mimeType string, meta *VideoMetadata) Part {
	return Part{Media: &MediaPart{URI: uri, MimeType: mimeType, Metadata: meta}}
}

// Schema is a response-schema declaration in the backend's type system
// (UPPERCASE type names).
type Schema struct {
	Type       string             `json:"type"`
	Format     string             `json:"format,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Required   []string           `json:"required,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Nullable   bool               `json:"nullable,omitempty"`
}

// GenerationConfig carries the sampling and output-shape constraints for a
// single request.
type GenerationConfig struct {
	Temperature      float64
	ResponseMIMEType string
	ResponseSchema   *Schema
}

// GenerateRequest is one multimodal inference request.
type GenerateRequest struct {
	Model  string
	Parts  []Part
	Config GenerationConfig
}

// Client is the inference capability set the analyzer depends on.
type Client interface {
	// UploadMedia pushes a local file to the backend's file store.
	UploadMedia(ctx context.Context, path, mimeType string) (*MediaFile, error)

	// GetMedia re-fetches the handle for previously uploaded media.
	GetMedia(ctx context.Context, name string) (*MediaFile, error)

	// Generate runs one inference request and returns the response text.
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// APIError is a structured backend failure. The policy layer classifies
// calls through the Code/Status pair.
type APIError struct {
	Code    int    // HTTP status code
	Status  string // API status string, e.g. RESOURCE_EXHAUSTED
	Message string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("genai: %d %s: %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("genai: %d: %s", e.Code, e.Message)
}

// HTTPStatus returns the HTTP status code of the failure.
func (e *APIError) HTTPStatus() int { return e.Code }

// APIStatus returns the backend's status string.
func (e *APIError) APIStatus() string { return e.Status }
