// Package mock provides a test double for [media.Generator].
//
// Responses are configured through exported fields; every call is recorded
// for later inspection. All methods are safe for concurrent use.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

// Compile-time interface assertion.
var _ media.Generator = (*Generator)(nil)

// Generator is a mock implementation of [media.Generator].
type Generator struct {
	mu sync.Mutex

	// TextResponses are returned by GenerateText in order. The last entry is
	// repeated once the list is exhausted.
	TextResponses []*media.TextResponse

	// TextErr, if non-nil, is returned by GenerateText.
	TextErr error

	// ImageResponse is returned by GenerateImage.
	ImageResponse *media.ImageResponse

	// ImageErr, if non-nil, is returned by GenerateImage.
	ImageErr error

	// StartResult is returned by StartVideo.
	StartResult *media.Operation

	// StartErr, if non-nil, is returned by StartVideo.
	StartErr error

	// PollResults are returned by PollVideo in order. The last entry is
	// repeated once the list is exhausted.
	PollResults []*media.Operation

	// PollErr, if non-nil, is returned by PollVideo.
	PollErr error

	// VideoData is returned by FetchVideo.
	VideoData []byte

	// FetchErr, if non-nil, is returned by FetchVideo.
	FetchErr error

	TextCalls  []media.TextRequest
	ImageCalls []media.ImageRequest
	VideoCalls []media.VideoRequest
	PollCalls  []media.Operation
	FetchCalls []media.Video
}

// GenerateText implements [media.Generator].
func (g *Generator) GenerateText(ctx context.Context, req media.TextRequest) (*media.TextResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.TextCalls = append(g.TextCalls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.TextErr != nil {
		return nil, g.TextErr
	}
	if len(g.TextResponses) == 0 {
		return &media.TextResponse{}, nil
	}
	i := min(len(g.TextCalls), len(g.TextResponses)) - 1
	return g.TextResponses[i], nil
}

// GenerateImage implements [media.Generator].
func (g *Generator) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.ImageResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ImageCalls = append(g.ImageCalls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.ImageErr != nil {
		return nil, g.ImageErr
	}
	if g.ImageResponse == nil {
		return &media.ImageResponse{}, nil
	}
	return g.ImageResponse, nil
}

// StartVideo implements [media.Generator].
func (g *Generator) StartVideo(ctx context.Context, req media.VideoRequest) (*media.Operation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.VideoCalls = append(g.VideoCalls, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.StartErr != nil {
		return nil, g.StartErr
	}
	if g.StartResult == nil {
		return &media.Operation{Name: "operations/mock"}, nil
	}
	return g.StartResult, nil
}

// PollVideo implements [media.Generator].
func (g *Generator) PollVideo(ctx context.Context, op *media.Operation) (*media.Operation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.PollCalls = append(g.PollCalls, *op)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.PollErr != nil {
		return nil, g.PollErr
	}
	if len(g.PollResults) == 0 {
		return &media.Operation{Name: op.Name, Done: true}, nil
	}
	i := min(len(g.PollCalls), len(g.PollResults)) - 1
	return g.PollResults[i], nil
}

// FetchVideo implements [media.Generator].
func (g *Generator) FetchVideo(ctx context.Context, v media.Video) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.FetchCalls = append(g.FetchCalls, v)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.FetchErr != nil {
		return nil, g.FetchErr
	}
	if len(v.Data) > 0 {
		return v.Data, nil
	}
	return g.VideoData, nil
}

// CallCountText returns how many times GenerateText was called.
func (g *Generator) CallCountText() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.TextCalls)
}

// CallCountImage returns how many times GenerateImage was called.
func (g *Generator) CallCountImage() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ImageCalls)
}

// CallCountPoll returns how many times PollVideo was called.
func (g *Generator) CallCountPoll() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.PollCalls)
}
