package studio

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

// FallbackHeadline is used when the model returns no headline.
const FallbackHeadline = "O PODER É TUDO"

// StrategistRequest is the input to [Studio.Strategist].
type StrategistRequest struct {
	Image media.Image
	Copy  string
}

// Creative is the result of [Studio.Strategist].
type Creative struct {
	Headline string `json:"headline"`
	Strategy string `json:"strategy"`
	Image    string `json:"image"` // data URI
}

type strategyPayload struct {
	Strategy string `json:"strategy"`
	Headline string `json:"headline"`
}

// Strategist rewrites the draft copy into a strategy and a short headline,
// then renders the headline onto the source image as an advertisement.
func (s *Studio) Strategist(ctx context.Context, req StrategistRequest) (*Creative, error) {
	if err := requireImage(req.Image); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Copy) == "" {
		return nil, fmt.Errorf("%w: copy is required", ErrInvalidConfig)
	}

	var out *Creative
	err := s.run(ctx, "strategist", func(ctx context.Context, models Models) error {
		text, err := s.gen.GenerateText(ctx, media.TextRequest{
			Model:      models.Strategy,
			Prompt:     strategyPrompt(req.Copy),
			JSONFields: []string{"strategy", "headline"},
		})
		s.providerCall(ctx, "text", err)
		if err != nil {
			return fmt.Errorf("studio: strategist: %w", err)
		}

		var p strategyPayload
		raw := strings.TrimSpace(text.Text)
		if raw == "" {
			raw = "{}"
		}
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return fmt.Errorf("%w: strategist: malformed strategy response: %v", ErrGenerationFailed, err)
		}
		if p.Headline == "" {
			p.Headline = FallbackHeadline
		}

		img, err := s.gen.GenerateImage(ctx, media.ImageRequest{
			Model:  models.Creative,
			Prompt: creativePrompt(p.Headline),
			Images: []media.Image{req.Image},
		})
		s.providerCall(ctx, "image", err)
		if err != nil {
			return fmt.Errorf("studio: strategist: %w", err)
		}
		if img.Image == nil {
			return fmt.Errorf("%w: failed to generate creative visual", ErrGenerationFailed)
		}

		out = &Creative{Headline: p.Headline, Strategy: p.Strategy, Image: DataURI(img.Image)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func strategyPrompt(draft string) string {
	return fmt.Sprintf(`You are Niccolò Machiavelli. The user has a draft copy: %q.

1. Create a "Strategy": A short explanation in Portuguese of why the user's copy was weak and how to make it powerful.
2. Create a "Headline": A VERY SHORT (max 6 words), punchy, uppercase headline in Portuguese based on the copy that asserts dominance.

Return JSON.`, draft)
}

func creativePrompt(headline string) string {
	return fmt.Sprintf(`Transform this image into a high-end, cinematic advertisement.
Overlay the following text directly onto the image in a bold, prestigious, gold or metallic font: %q.
Ensure the text is legible, centered or artistically placed, and the lighting is dramatic.
The style should be Machiavellian, luxurious, and powerful.`, headline)
}
