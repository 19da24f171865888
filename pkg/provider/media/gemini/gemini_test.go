package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/MrWong99/warroom/pkg/provider/media"
)

// startAPI serves generateContent requests with body and records the last
// decoded request.
func startAPI(t *testing.T, body string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &last)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, &last
}

func newGenerator(t *testing.T, baseURL string) *Generator {
	t.Helper()
	g, err := New(context.Background(), "test-key", WithBaseURL(baseURL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestNew_RequiresKey(t *testing.T) {
	t.Parallel()
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestGenerateText_JSONSchema(t *testing.T) {
	t.Parallel()
	srv, last := startAPI(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"strategy\":\"s\","},{"text":"\"headline\":\"H\"}"}]}}]}`)
	g := newGenerator(t, srv.URL)

	resp, err := g.GenerateText(context.Background(), media.TextRequest{
		Model:      "text-model",
		Prompt:     "advise",
		JSONFields: []string{"strategy", "headline"},
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if resp.Text != `{"strategy":"s","headline":"H"}` {
		t.Errorf("Text = %q", resp.Text)
	}

	gc, _ := (*last)["generationConfig"].(map[string]any)
	if gc["responseMimeType"] != "application/json" {
		t.Errorf("responseMimeType = %v, want application/json", gc["responseMimeType"])
	}
}

func TestGenerateImage_ReturnsFirstImage(t *testing.T) {
	t.Parallel()
	png := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	srv, last := startAPI(t, `{"candidates":[{"content":{"role":"model","parts":[
		{"text":"here you go"},
		{"inlineData":{"mimeType":"image/png","data":"`+png+`"}}
	]}}]}`)
	g := newGenerator(t, srv.URL)

	resp, err := g.GenerateImage(context.Background(), media.ImageRequest{
		Model:       "image-model",
		Prompt:      "a throne",
		AspectRatio: "16:9",
		Size:        "2K",
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if resp.Image == nil || string(resp.Image.Data) != "png-bytes" || resp.Image.MIMEType != "image/png" {
		t.Fatalf("Image = %+v", resp.Image)
	}
	if resp.Text != "here you go" {
		t.Errorf("Text = %q", resp.Text)
	}

	gc, _ := (*last)["generationConfig"].(map[string]any)
	ic, _ := gc["imageConfig"].(map[string]any)
	if ic["aspectRatio"] != "16:9" || ic["imageSize"] != "2K" {
		t.Errorf("imageConfig = %v", ic)
	}
}

func TestGenerateImage_TextOnly(t *testing.T) {
	t.Parallel()
	srv, _ := startAPI(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"I cannot do that."}]}}]}`)
	g := newGenerator(t, srv.URL)

	resp, err := g.GenerateImage(context.Background(), media.ImageRequest{
		Model:  "image-model",
		Prompt: "edit",
		Images: []media.Image{{Data: []byte{1, 2}, MIMEType: "image/jpeg"}},
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if resp.Image != nil {
		t.Errorf("Image = %+v, want nil", resp.Image)
	}
	if resp.Text != "I cannot do that." {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestGenerateText_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"code":400,"message":"boom"}}`, http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)
	g := newGenerator(t, srv.URL)

	if _, err := g.GenerateText(context.Background(), media.TextRequest{Model: "m", Prompt: "p"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFetchVideo_AppendsKey(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("key") != "test-key" || r.URL.Query().Get("alt") != "media" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		_, _ = io.WriteString(w, "mp4-bytes")
	}))
	t.Cleanup(srv.Close)
	g := newGenerator(t, srv.URL)

	data, err := g.FetchVideo(context.Background(), media.Video{URI: srv.URL + "/files/abc:download?alt=media"})
	if err != nil {
		t.Fatalf("FetchVideo: %v", err)
	}
	if string(data) != "mp4-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestFetchVideo_StatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	g := newGenerator(t, srv.URL)

	if _, err := g.FetchVideo(context.Background(), media.Video{URI: srv.URL + "/v"}); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestFetchVideo_InlineBytes(t *testing.T) {
	t.Parallel()
	g := &Generator{}
	data, err := g.FetchVideo(context.Background(), media.Video{Data: []byte("inline")})
	if err != nil || string(data) != "inline" {
		t.Fatalf("FetchVideo = %q, %v", data, err)
	}
}

func TestConvertOperation(t *testing.T) {
	t.Parallel()

	t.Run("pending", func(t *testing.T) {
		t.Parallel()
		op, err := convertOperation(&genai.GenerateVideosOperation{Name: "operations/1"})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if op.Name != "operations/1" || op.Done || len(op.Videos) != 0 {
			t.Errorf("op = %+v", op)
		}
	})

	t.Run("done", func(t *testing.T) {
		t.Parallel()
		op, err := convertOperation(&genai.GenerateVideosOperation{
			Name: "operations/2",
			Done: true,
			Response: &genai.GenerateVideosResponse{GeneratedVideos: []*genai.GeneratedVideo{
				nil,
				{Video: &genai.Video{URI: "https://example/v.mp4", MIMEType: "video/mp4"}},
			}},
		})
		if err != nil {
			t.Fatalf("err = %v", err)
		}
		if !op.Done || len(op.Videos) != 1 || op.Videos[0].URI != "https://example/v.mp4" {
			t.Errorf("op = %+v", op)
		}
	})

	t.Run("failed", func(t *testing.T) {
		t.Parallel()
		_, err := convertOperation(&genai.GenerateVideosOperation{
			Done:  true,
			Error: map[string]any{"message": "quota exceeded"},
		})
		if !errors.Is(err, media.ErrOperationFailed) {
			t.Fatalf("err = %v, want ErrOperationFailed", err)
		}
	})
}

func TestContents_ImagesBeforePrompt(t *testing.T) {
	t.Parallel()
	c := contents([]media.Image{{Data: []byte{1}, MIMEType: "image/png"}}, "prompt")
	if len(c) != 1 || len(c[0].Parts) != 2 {
		t.Fatalf("contents = %+v", c)
	}
	if c[0].Parts[0].InlineData == nil || c[0].Parts[1].Text != "prompt" {
		t.Errorf("parts out of order: %+v", c[0].Parts)
	}
	if c[0].Role != string(genai.RoleUser) {
		t.Errorf("role = %q", c[0].Role)
	}
}
