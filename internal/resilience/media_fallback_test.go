package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/warroom/pkg/provider/media"
	"github.com/MrWong99/warroom/pkg/provider/media/mock"
)

func newMediaPair(t *testing.T, maxFailures int) (*MediaFallback, *mock.Generator, *mock.Generator) {
	t.Helper()
	primary, secondary := &mock.Generator{}, &mock.Generator{}
	mf, err := NewMediaFallback(
		MediaEntry{Name: "primary", Generator: primary},
		[]MediaEntry{{Name: "secondary", Generator: secondary}},
		FallbackConfig{CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour}},
	)
	if err != nil {
		t.Fatalf("NewMediaFallback: %v", err)
	}
	return mf, primary, secondary
}

func TestNewMediaFallback_Errors(t *testing.T) {
	t.Parallel()
	g := &mock.Generator{}
	tests := []struct {
		name      string
		primary   MediaEntry
		fallbacks []MediaEntry
	}{
		{name: "nil primary", primary: MediaEntry{Name: "a"}},
		{name: "nil fallback", primary: MediaEntry{Name: "a", Generator: g}, fallbacks: []MediaEntry{{Name: "b"}}},
		{name: "duplicate name", primary: MediaEntry{Name: "a", Generator: g}, fallbacks: []MediaEntry{{Name: "a", Generator: g}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewMediaFallback(tt.primary, tt.fallbacks, FallbackConfig{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMediaFallback_GenerateTextFailsOver(t *testing.T) {
	t.Parallel()
	mf, primary, secondary := newMediaPair(t, 3)
	primary.TextErr = errTest
	secondary.TextResponses = []*media.TextResponse{{Text: "from secondary"}}

	resp, err := mf.GenerateText(context.Background(), media.TextRequest{Prompt: "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "from secondary" {
		t.Fatalf("Text = %q, want from secondary", resp.Text)
	}
	if primary.CallCountText() != 1 || secondary.CallCountText() != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.CallCountText(), secondary.CallCountText())
	}
}

func TestMediaFallback_GenerateImageCancelledDoesNotFailOver(t *testing.T) {
	t.Parallel()
	mf, primary, secondary := newMediaPair(t, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := mf.GenerateImage(ctx, media.ImageRequest{Prompt: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if primary.CallCountImage() != 1 || secondary.CallCountImage() != 0 {
		t.Fatalf("calls = %d/%d, want 1/0", primary.CallCountImage(), secondary.CallCountImage())
	}
	if got := mf.States()["primary"]; got != StateClosed {
		t.Fatalf("primary state = %v, want closed", got)
	}
}

func TestMediaFallback_VideoPinnedToOwner(t *testing.T) {
	t.Parallel()
	mf, primary, secondary := newMediaPair(t, 3)
	primary.StartErr = errTest
	secondary.StartResult = &media.Operation{Name: "operations/42"}
	secondary.PollResults = []*media.Operation{
		{Name: "operations/42"},
		{Name: "operations/42", Done: true, Videos: []media.Video{{URI: "https://files/v.mp4", MIMEType: "video/mp4"}}},
	}
	secondary.VideoData = []byte("mp4")

	ctx := context.Background()
	op, err := mf.StartVideo(ctx, media.VideoRequest{Prompt: "march"})
	if err != nil {
		t.Fatalf("StartVideo: %v", err)
	}
	for !op.Done {
		if op, err = mf.PollVideo(ctx, op); err != nil {
			t.Fatalf("PollVideo: %v", err)
		}
	}
	data, err := mf.FetchVideo(ctx, op.Videos[0])
	if err != nil {
		t.Fatalf("FetchVideo: %v", err)
	}
	if string(data) != "mp4" {
		t.Fatalf("data = %q, want mp4", data)
	}
	if primary.CallCountPoll() != 0 {
		t.Fatalf("primary polled %d times, want 0", primary.CallCountPoll())
	}
	if secondary.CallCountPoll() != 2 {
		t.Fatalf("secondary polled %d times, want 2", secondary.CallCountPoll())
	}

	// The URI is released after a successful fetch.
	if _, err := mf.FetchVideo(ctx, op.Videos[0]); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("second fetch err = %v, want ErrUnknownOperation", err)
	}
}

func TestMediaFallback_UnknownOperation(t *testing.T) {
	t.Parallel()
	mf, _, _ := newMediaPair(t, 3)

	if _, err := mf.PollVideo(context.Background(), &media.Operation{Name: "operations/other"}); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
	if _, err := mf.FetchVideo(context.Background(), media.Video{URI: "https://elsewhere"}); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation", err)
	}
	data, err := mf.FetchVideo(context.Background(), media.Video{Data: []byte("inline")})
	if err != nil || string(data) != "inline" {
		t.Fatalf("inline fetch = %q, %v", data, err)
	}
}

func TestMediaFallback_OperationFailedKeepsBreakerClosed(t *testing.T) {
	t.Parallel()
	mf, primary, _ := newMediaPair(t, 1)
	primary.PollErr = media.ErrOperationFailed

	ctx := context.Background()
	op, err := mf.StartVideo(ctx, media.VideoRequest{})
	if err != nil {
		t.Fatalf("StartVideo: %v", err)
	}
	if _, err := mf.PollVideo(ctx, op); !errors.Is(err, media.ErrOperationFailed) {
		t.Fatalf("err = %v, want ErrOperationFailed", err)
	}
	if _, err := mf.PollVideo(ctx, op); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("failed operation should be forgotten, got %v", err)
	}
	if err := mf.Check(ctx); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestMediaFallback_Check(t *testing.T) {
	t.Parallel()
	mf, primary, secondary := newMediaPair(t, 1)
	primary.TextErr = errTest
	secondary.TextErr = errTest

	if _, err := mf.GenerateText(context.Background(), media.TextRequest{}); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
	if err := mf.Check(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("Check err = %v, want ErrAllFailed", err)
	}
}

func TestMediaFallback_AbandonedOperationsExpire(t *testing.T) {
	t.Parallel()
	mf, _, _ := newMediaPair(t, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mf.now = func() time.Time { return now }

	ctx := context.Background()
	abandoned, err := mf.StartVideo(ctx, media.VideoRequest{})
	if err != nil {
		t.Fatalf("StartVideo: %v", err)
	}

	now = now.Add(routeTTL + time.Minute)
	primary := mf.byName["primary"].(*mock.Generator)
	primary.StartResult = &media.Operation{Name: "operations/fresh"}
	if _, err := mf.StartVideo(ctx, media.VideoRequest{}); err != nil {
		t.Fatalf("StartVideo: %v", err)
	}

	if _, err := mf.PollVideo(ctx, abandoned); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("err = %v, want ErrUnknownOperation for an expired operation", err)
	}
}
