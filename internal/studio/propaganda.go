package studio

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/warroom/internal/artifact"
	"github.com/MrWong99/warroom/internal/observe"
	"github.com/MrWong99/warroom/pkg/provider/media"
)

// DefaultVideoPrompt is used when a video request carries no prompt.
const DefaultVideoPrompt = "Cinematic, dramatic movement, high production value."

var (
	videoAspectRatios = []string{"16:9", "9:16"}
	videoResolutions  = []string{"720p", "1080p"}
)

// VideoRequest is the input to [Studio.Propaganda]. Empty options default to
// 16:9 and 1080p.
type VideoRequest struct {
	Image       media.Image
	Prompt      string
	AspectRatio string
	Resolution  string
}

// Validate fills defaults and checks the options against the supported sets.
func (r *VideoRequest) Validate() error {
	if err := requireImage(r.Image); err != nil {
		return err
	}
	if strings.TrimSpace(r.Prompt) == "" {
		r.Prompt = DefaultVideoPrompt
	}
	if r.AspectRatio == "" {
		r.AspectRatio = "16:9"
	}
	if r.Resolution == "" {
		r.Resolution = "1080p"
	}
	if !slices.Contains(videoAspectRatios, r.AspectRatio) {
		return fmt.Errorf("%w: aspect ratio %q not in %v", ErrInvalidConfig, r.AspectRatio, videoAspectRatios)
	}
	if !slices.Contains(videoResolutions, r.Resolution) {
		return fmt.Errorf("%w: resolution %q not in %v", ErrInvalidConfig, r.Resolution, videoResolutions)
	}
	return nil
}

// Propaganda animates the source image into a video. It blocks until the
// remote operation finishes, polling at the configured interval, then stores
// the video bytes as an artifact.
func (s *Studio) Propaganda(ctx context.Context, req VideoRequest) (*artifact.Artifact, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out *artifact.Artifact
	err := s.run(ctx, "propaganda", func(ctx context.Context, models Models) error {
		log := observe.Logger(ctx)
		img := req.Image
		op, err := s.gen.StartVideo(ctx, media.VideoRequest{
			Model:       models.Video,
			Prompt:      req.Prompt,
			Image:       &img,
			AspectRatio: req.AspectRatio,
			Resolution:  req.Resolution,
		})
		s.providerCall(ctx, "video", err)
		if err != nil {
			return fmt.Errorf("studio: propaganda: %w", err)
		}
		log.Info("studio: video operation started", "operation", op.Name)

		op, err = s.await(ctx, op)
		if err != nil {
			return err
		}
		if len(op.Videos) == 0 || (op.Videos[0].URI == "" && len(op.Videos[0].Data) == 0) {
			return fmt.Errorf("%w: Video generation failed.", ErrGenerationFailed)
		}

		v := op.Videos[0]
		data, err := s.gen.FetchVideo(ctx, v)
		s.providerCall(ctx, "download", err)
		if err != nil {
			return fmt.Errorf("studio: propaganda: download: %w", err)
		}
		mime := v.MIMEType
		if mime == "" {
			mime = "video/mp4"
		}
		out = s.artifacts.Put("propaganda.mp4", mime, data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// await polls op until it is done or ctx is cancelled.
func (s *Studio) await(ctx context.Context, op *media.Operation) (*media.Operation, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for !op.Done {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("studio: propaganda: %w", ctx.Err())
		case <-ticker.C:
		}
		next, err := s.gen.PollVideo(ctx, op)
		s.providerCall(ctx, "poll", err)
		if errors.Is(err, media.ErrOperationFailed) {
			return nil, fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		if err != nil {
			return nil, fmt.Errorf("studio: propaganda: poll: %w", err)
		}
		op = next
	}
	return op, nil
}
