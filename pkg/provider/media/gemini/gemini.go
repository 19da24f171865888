// Package gemini implements [media.Generator] on the Gemini API using the
// google.golang.org/genai SDK. Generated videos are downloaded with fasthttp.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"google.golang.org/genai"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

const (
	defaultDownloadTimeout = 2 * time.Minute

	// Video URIs redirect to signed storage URLs.
	maxRedirects = 5
)

// Compile-time interface assertion.
var _ media.Generator = (*Generator)(nil)

// Option is a functional option for configuring a Generator.
type Option func(*Generator)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(u string) Option {
	return func(g *Generator) { g.baseURL = u }
}

// WithDownloadTimeout bounds a single video download when ctx carries no
// deadline.
func WithDownloadTimeout(d time.Duration) Option {
	return func(g *Generator) { g.downloadTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// Generator is a Gemini-backed [media.Generator].
type Generator struct {
	client          *genai.Client
	apiKey          string
	baseURL         string
	downloadTimeout time.Duration
	http            *fasthttp.Client
	log             *slog.Logger
}

// New creates a Generator authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Generator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: api key must not be empty")
	}
	g := &Generator{
		apiKey:          apiKey,
		downloadTimeout: defaultDownloadTimeout,
		http:            &fasthttp.Client{Name: "warroom"},
		log:             slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: g.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	g.client = client
	return g, nil
}

// GenerateText implements [media.Generator].
func (g *Generator) GenerateText(ctx context.Context, req media.TextRequest) (*media.TextResponse, error) {
	var cfg *genai.GenerateContentConfig
	if len(req.JSONFields) > 0 {
		props := make(map[string]*genai.Schema, len(req.JSONFields))
		for _, f := range req.JSONFields {
			props[f] = &genai.Schema{Type: genai.TypeString}
		}
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   req.JSONFields,
			},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents(req.Images, req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate text: %w", err)
	}
	text, _ := split(resp)
	return &media.TextResponse{Text: text}, nil
}

// GenerateImage implements [media.Generator].
func (g *Generator) GenerateImage(ctx context.Context, req media.ImageRequest) (*media.ImageResponse, error) {
	var cfg *genai.GenerateContentConfig
	if req.AspectRatio != "" || req.Size != "" {
		cfg = &genai.GenerateContentConfig{
			ImageConfig: &genai.ImageConfig{AspectRatio: req.AspectRatio, ImageSize: req.Size},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents(req.Images, req.Prompt), cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate image: %w", err)
	}
	text, img := split(resp)
	return &media.ImageResponse{Image: img, Text: text}, nil
}

// StartVideo implements [media.Generator].
func (g *Generator) StartVideo(ctx context.Context, req media.VideoRequest) (*media.Operation, error) {
	var img *genai.Image
	if req.Image != nil {
		img = &genai.Image{ImageBytes: req.Image.Data, MIMEType: req.Image.MIMEType}
	}
	op, err := g.client.Models.GenerateVideos(ctx, req.Model, req.Prompt, img, &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: start video: %w", err)
	}
	return convertOperation(op)
}

// PollVideo implements [media.Generator].
func (g *Generator) PollVideo(ctx context.Context, op *media.Operation) (*media.Operation, error) {
	res, err := g.client.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: poll video %s: %w", op.Name, err)
	}
	return convertOperation(res)
}

// FetchVideo implements [media.Generator]. The API key is appended to the
// URI as a query parameter.
func (g *Generator) FetchVideo(ctx context.Context, v media.Video) ([]byte, error) {
	if len(v.Data) > 0 {
		return v.Data, nil
	}
	if v.URI == "" {
		return nil, fmt.Errorf("gemini: fetch video: no uri")
	}

	sep := "&"
	if !strings.Contains(v.URI, "?") {
		sep = "?"
	}
	uri := v.URI + sep + "key=" + g.apiKey

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(g.downloadTimeout)
	}

	type result struct {
		body []byte
		err  error
	}
	resC := make(chan result, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(uri)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.SetTimeout(time.Until(deadline))
		if err := g.http.DoRedirects(req, resp, maxRedirects); err != nil {
			resC <- result{err: fmt.Errorf("performing HTTP request: %w", err)}
			return
		}
		if resp.StatusCode() != fasthttp.StatusOK {
			resC <- result{err: fmt.Errorf("unexpected status code: %d", resp.StatusCode())}
			return
		}
		resC <- result{body: append([]byte(nil), resp.Body()...)}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resC:
		if r.err != nil {
			return nil, fmt.Errorf("gemini: fetch video: %w", r.err)
		}
		g.log.Debug("gemini: video downloaded", "bytes", len(r.body))
		return r.body, nil
	}
}

// contents builds a single user turn: images first, then the prompt.
func contents(images []media.Image, prompt string) []*genai.Content {
	parts := make([]*genai.Part, 0, len(images)+1)
	for _, img := range images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	if prompt != "" {
		parts = append(parts, genai.NewPartFromText(prompt))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

// split returns the concatenated non-thought text and the first inline image
// of the first candidate.
func split(resp *genai.GenerateContentResponse) (string, *media.Image) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}
	var (
		sb  strings.Builder
		img *media.Image
	)
	for _, p := range resp.Candidates[0].Content.Parts {
		switch {
		case p == nil || p.Thought:
		case p.InlineData != nil:
			if img == nil {
				img = &media.Image{Data: p.InlineData.Data, MIMEType: p.InlineData.MIMEType}
			}
		case p.Text != "":
			sb.WriteString(p.Text)
		}
	}
	return sb.String(), img
}

func convertOperation(op *genai.GenerateVideosOperation) (*media.Operation, error) {
	out := &media.Operation{Name: op.Name, Done: op.Done}
	if op.Done && len(op.Error) > 0 {
		return out, fmt.Errorf("%w: %v", media.ErrOperationFailed, op.Error["message"])
	}
	if op.Response != nil {
		for _, gv := range op.Response.GeneratedVideos {
			if gv == nil || gv.Video == nil {
				continue
			}
			out.Videos = append(out.Videos, media.Video{
				URI:      gv.Video.URI,
				Data:     gv.Video.VideoBytes,
				MIMEType: gv.Video.MIMEType,
			})
		}
	}
	return out, nil
}
