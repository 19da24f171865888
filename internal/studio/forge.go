package studio

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

var (
	imageAspectRatios = []string{"1:1", "3:4", "4:3", "16:9", "9:16"}
	imageSizes        = []string{"1K", "2K", "4K"}
)

// ForgeRequest is the input to [Studio.Forge]. Empty options default to
// 1:1 and 1K.
type ForgeRequest struct {
	Prompt      string
	AspectRatio string
	Size        string
}

// Validate fills defaults and checks the options against the supported sets.
func (r *ForgeRequest) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidConfig)
	}
	if r.AspectRatio == "" {
		r.AspectRatio = "1:1"
	}
	if r.Size == "" {
		r.Size = "1K"
	}
	if !slices.Contains(imageAspectRatios, r.AspectRatio) {
		return fmt.Errorf("%w: aspect ratio %q not in %v", ErrInvalidConfig, r.AspectRatio, imageAspectRatios)
	}
	if !slices.Contains(imageSizes, r.Size) {
		return fmt.Errorf("%w: size %q not in %v", ErrInvalidConfig, r.Size, imageSizes)
	}
	return nil
}

// Forge generates an image from a text prompt and returns it as a data URI.
func (s *Studio) Forge(ctx context.Context, req ForgeRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var out string
	err := s.run(ctx, "forge", func(ctx context.Context, models Models) error {
		resp, err := s.gen.GenerateImage(ctx, media.ImageRequest{
			Model:       models.Forge,
			Prompt:      req.Prompt,
			AspectRatio: req.AspectRatio,
			Size:        req.Size,
		})
		s.providerCall(ctx, "image", err)
		if err != nil {
			return fmt.Errorf("studio: forge: %w", err)
		}
		if resp.Image == nil {
			return fmt.Errorf("%w: No image generated.", ErrGenerationFailed)
		}
		out = DataURI(resp.Image)
		return nil
	})
	return out, err
}
