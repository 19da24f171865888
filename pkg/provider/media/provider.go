// Package media defines the Generator interface for one-shot generative model
// calls: structured text, image synthesis and editing, and long-running video
// generation.
//
// A Generator wraps a remote model API and exposes a uniform request/response
// surface so the workflows in internal/studio do not couple to a specific SDK.
//
// Implementations must be safe for concurrent use. Every method propagates
// context cancellation.
package media

import (
	"context"
	"errors"
)

// ErrOperationFailed is returned by [Generator.PollVideo] when the remote
// operation completed with an error.
var ErrOperationFailed = errors.New("media: operation failed")

// Image is raw image bytes with their MIME type.
type Image struct {
	Data     []byte
	MIMEType string
}

// TextRequest asks the model for a text response.
type TextRequest struct {
	// Model is the model identifier, e.g. "gemini-3-pro-preview".
	Model string

	// Prompt is the user prompt.
	Prompt string

	// Images are attached before the prompt, in order.
	Images []Image

	// JSONFields, when non-empty, requests a JSON object response whose
	// properties are exactly these required string fields.
	JSONFields []string
}

// TextResponse is the model's text output. Thought parts are excluded.
type TextResponse struct {
	Text string
}

// ImageRequest asks the model to synthesise or edit an image.
type ImageRequest struct {
	Model  string
	Prompt string

	// Images are source images for editing. Empty for text-to-image.
	Images []Image

	// AspectRatio and Size are passed to the model's image config when set.
	AspectRatio string
	Size        string
}

// ImageResponse carries what the model returned. Image is nil when the model
// answered with text only, typically a refusal; Text holds that answer.
type ImageResponse struct {
	Image *Image
	Text  string
}

// VideoRequest starts an image-to-video generation.
type VideoRequest struct {
	Model       string
	Prompt      string
	Image       *Image
	AspectRatio string
	Resolution  string
}

// Video references a generated video. Either URI or Data is set.
type Video struct {
	URI      string
	Data     []byte
	MIMEType string
}

// Operation is the state of a long-running video generation.
type Operation struct {
	// Name identifies the operation on the remote side.
	Name string

	// Done reports whether the operation has finished.
	Done bool

	// Videos holds the results once Done. Empty if the model produced none.
	Videos []Video
}

// Generator is the abstraction over a generative media backend.
type Generator interface {
	// GenerateText sends req and returns the model's text.
	GenerateText(ctx context.Context, req TextRequest) (*TextResponse, error)

	// GenerateImage sends req and returns the first image part, or the text
	// the model answered with instead.
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)

	// StartVideo begins a video generation and returns its initial state.
	StartVideo(ctx context.Context, req VideoRequest) (*Operation, error)

	// PollVideo refreshes op. A completed operation that carries a remote
	// error returns [ErrOperationFailed].
	PollVideo(ctx context.Context, op *Operation) (*Operation, error)

	// FetchVideo returns the bytes of v, downloading them if only a URI is
	// known.
	FetchVideo(ctx context.Context, v Video) ([]byte, error)
}
