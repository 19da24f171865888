// Package audio defines the audio types, codecs and device abstractions used
// by the War Room.
//
// The primary device abstractions are:
//
//   - [InputDevice] opens an exclusive [InputStream] of raw capture chunks
//     (a microphone).
//   - [OutputDevice] opens an [OutputContext] with its own timeline on
//     which decoded [Buffer] values are scheduled for playback (a speaker).
//
// Implementations live in device-specific packages (audio/capture/microphone,
// audio/speaker). The interfaces are intentionally narrow so the session and
// scheduler logic can be exercised against in-memory mocks.
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceUnavailable is returned (wrapped) when a capture or output device
// cannot be opened: permission denied, no device present, or the device is
// held by another process.
var ErrDeviceUnavailable = errors.New("audio: device unavailable")

// InputDevice opens capture streams.
//
// Implementations must be safe for concurrent use.
type InputDevice interface {
	// Open requests exclusive access to the device and returns a stream that
	// delivers audio close to the requested format. Devices that cannot honour
	// the format exactly report their actual format via [InputStream.Format];
	// callers convert as needed.
	//
	// Open may block (e.g. while a permission prompt is shown); it must return
	// promptly once ctx is cancelled. Failures wrap [ErrDeviceUnavailable].
	Open(ctx context.Context, want Format) (InputStream, error)
}

// InputStream is an open capture stream.
type InputStream interface {
	// Format reports the actual sample rate and channel count of the samples
	// returned by Read.
	Format() Format

	// Read blocks until the next chunk of interleaved float32 samples is
	// available. It returns [io.EOF] once the stream has been closed.
	Read() ([]float32, error)

	// Close releases the device. Safe to call more than once.
	Close() error
}

// OutputDevice opens playback contexts.
type OutputDevice interface {
	// Open creates an output context rendering at the given format.
	// Failures wrap [ErrDeviceUnavailable].
	Open(ctx context.Context, format Format) (OutputContext, error)
}

// OutputContext is an open playback timeline. Time starts at zero when the
// context is opened and advances as the device consumes audio.
//
// Implementations must be safe for concurrent use.
type OutputContext interface {
	// Now returns the current position of the output clock.
	Now() time.Duration

	// Play schedules buf to begin exactly at the timeline position at. A
	// position in the past starts immediately. onEnded, if non-nil, is invoked
	// exactly once when playback of buf naturally completes; it is not invoked
	// for voices stopped via [Voice.Stop]. onEnded may be called from any
	// goroutine and must not block.
	Play(buf *Buffer, at time.Duration, onEnded func()) (Voice, error)

	// Close stops all audio and releases the device. Safe to call more than
	// once.
	Close() error
}

// Voice is a single scheduled buffer on an [OutputContext].
type Voice interface {
	// Stop silences the voice immediately if it is playing or cancels it if it
	// has not started. Safe to call more than once.
	Stop()
}
