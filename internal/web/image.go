package web

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/MrWong99/warroom/internal/studio"
	"github.com/MrWong99/warroom/pkg/provider/media"
)

const defaultImageMIME = "image/png"

// parseImage accepts either a data URI or raw base64 with a separate MIME
// type. An empty MIME type on raw base64 defaults to image/png.
func parseImage(raw, mimeType string) (media.Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return media.Image{}, fmt.Errorf("%w: image is required", studio.ErrInvalidConfig)
	}

	payload := raw
	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return media.Image{}, fmt.Errorf("%w: malformed data URI", studio.ErrInvalidConfig)
		}
		mt, isBase64 := strings.CutSuffix(meta, ";base64")
		if !isBase64 {
			return media.Image{}, fmt.Errorf("%w: data URI must be base64-encoded", studio.ErrInvalidConfig)
		}
		if mt != "" {
			mimeType = mt
		}
		payload = data
	}
	if mimeType == "" {
		mimeType = defaultImageMIME
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return media.Image{}, fmt.Errorf("%w: unsupported image type %q", studio.ErrInvalidConfig, mimeType)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return media.Image{}, fmt.Errorf("%w: image is not valid base64: %v", studio.ErrInvalidConfig, err)
	}
	return media.Image{Data: data, MIMEType: mimeType}, nil
}
