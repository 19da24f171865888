package studio

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

// EditRequest is the input to [Studio.Edit].
type EditRequest struct {
	Image  media.Image
	Prompt string
}

// Edit applies the instruction in req.Prompt to req.Image and returns the
// result as a data URI. A text-only answer is returned as a [*RefusalError].
func (s *Studio) Edit(ctx context.Context, req EditRequest) (string, error) {
	if err := requireImage(req.Image); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", ErrInvalidConfig)
	}

	var out string
	err := s.run(ctx, "editor", func(ctx context.Context, models Models) error {
		resp, err := s.gen.GenerateImage(ctx, media.ImageRequest{
			Model:  models.Editor,
			Prompt: req.Prompt,
			Images: []media.Image{req.Image},
		})
		s.providerCall(ctx, "image", err)
		if err != nil {
			return fmt.Errorf("studio: editor: %w", err)
		}
		switch {
		case resp.Image != nil:
			out = DataURI(resp.Image)
			return nil
		case strings.TrimSpace(resp.Text) != "":
			return &RefusalError{Text: resp.Text}
		default:
			return fmt.Errorf("%w: No image generated. The model may have refused the request.", ErrGenerationFailed)
		}
	})
	return out, err
}
