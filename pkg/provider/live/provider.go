// Package live defines the Transport interface for realtime, bidirectional
// model sessions.
//
// A live session accepts a continuous stream of encoded microphone audio and
// pushes model output (inline audio parts) back as it is produced. Sessions are
// long-lived (seconds to minutes) and are driven by callbacks rather than
// channels so that a single owner can serialise lifecycle events.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/MrWong99/warroom/pkg/audio"
)

// ErrTransportOpen is returned (wrapped) when a session cannot be established:
// network failure, authentication rejected, or the handshake failed.
var ErrTransportOpen = errors.New("live: transport open failed")

// ErrTransportRuntime is delivered (wrapped) through [Callbacks.OnError] when a
// session fails after it has been established.
var ErrTransportRuntime = errors.New("live: transport error")

// ErrSessionClosed is returned by [Session.SendRealtimeInput] after the
// session has been closed.
var ErrSessionClosed = errors.New("live: session closed")

// Modality names an output modality requested from the model.
type Modality string

const (
	// ModalityAudio requests synthesised speech.
	ModalityAudio Modality = "AUDIO"

	// ModalityText requests text parts.
	ModalityText Modality = "TEXT"
)

// Config is the initial configuration for a new live session.
type Config struct {
	// Model is the provider-specific model identifier. Implementations apply
	// their own default when empty.
	Model string

	// Voice is the prebuilt voice name used for synthesised speech.
	Voice string

	// Instructions is the system-level directive that defines the persona.
	Instructions string

	// ResponseModalities lists the output modalities requested from the model.
	// Defaults to audio only.
	ResponseModalities []Modality
}

// Part is one element of a model turn. Exactly one field is set.
type Part struct {
	// InlineData carries base64-encoded media, e.g. 24 kHz PCM audio.
	InlineData *audio.Blob

	// Text carries a text fragment.
	Text string
}

// Message is one server content message.
type Message struct {
	// Parts holds the model turn parts in the order they were received.
	Parts []Part

	// TurnComplete reports that the model has finished its turn.
	TurnComplete bool

	// Interrupted reports that the model stopped generating because the user
	// started speaking.
	Interrupted bool
}

// Callbacks receive session lifecycle events. All callbacks are invoked from
// a single goroutine per session, in the order events occur. Callbacks must
// not block for long and must not call [Session.Close] synchronously.
type Callbacks struct {
	// OnOpen is called once the remote side has acknowledged the session
	// configuration.
	OnOpen func()

	// OnMessage is called for every server content message.
	OnMessage func(Message)

	// OnClose is called when the remote side closes the session. It is not
	// called for sessions closed locally via [Session.Close].
	OnClose func(reason string)

	// OnError is called when the session fails. The error wraps
	// [ErrTransportRuntime]. No further callbacks follow.
	OnError func(error)
}

// Session is an open live session.
type Session interface {
	// SendRealtimeInput streams one encoded media chunk to the model.
	// Chunks are delivered in call order.
	SendRealtimeInput(blob audio.Blob) error

	// Close terminates the session and releases all resources. A callback
	// already in progress may still complete while Close runs. Idempotent.
	Close() error
}

// Transport opens live sessions.
type Transport interface {
	// Connect dials the remote service and sends the session configuration.
	// It returns once the configuration has been written; [Callbacks.OnOpen]
	// fires when the remote side acknowledges it. Failures wrap
	// [ErrTransportOpen].
	Connect(ctx context.Context, cfg Config, cb Callbacks) (Session, error)
}
