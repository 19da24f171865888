// Package gemini implements the live.Transport interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Microphone audio is sent as base64 PCM media chunks; model audio
// arrives as inline data parts which are passed through undecoded.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/warroom/pkg/audio"
	"github.com/MrWong99/warroom/pkg/provider/live"
)

// Compile-time assertions that Transport and session satisfy the live interfaces.
var _ live.Transport = (*Transport)(nil)
var _ live.Session = (*session)(nil)

const (
	// DefaultModel is the native-audio model used when none is configured.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	// DefaultVoice is the prebuilt voice used when none is configured.
	DefaultVoice = "Fenrir"

	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// Model audio chunks can be large; the library default of 32 KiB is too
	// small for a single serverContent frame.
	readLimit = 16 << 20
)

// Voices lists the prebuilt voices accepted by the Live API.
var Voices = []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"}

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Transport.
type Option func(*Transport)

// WithModel sets the default Gemini model used when [live.Config.Model] is
// empty.
func WithModel(model string) Option {
	return func(t *Transport) { t.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Transport) { t.baseURL = url }
}

// WithLogger sets the logger used for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.log = l }
}

// ── Transport ──────────────────────────────────────────────────────────────────

// Transport implements live.Transport for Google's Gemini Live API.
type Transport struct {
	apiKey  string
	model   string
	baseURL string
	log     *slog.Logger
}

// New creates a new Gemini Live Transport with the given API key and options.
func New(apiKey string, opts ...Option) *Transport {
	t := &Transport{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Connect establishes a new Gemini Live session with the given configuration.
// The returned Session accepts audio immediately; cb.OnOpen fires once the
// server acknowledges the setup message.
func (t *Transport) Connect(ctx context.Context, cfg live.Config, cb live.Callbacks) (live.Session, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		t.baseURL, t.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w: %v", live.ErrTransportOpen, err)
	}
	conn.SetReadLimit(readLimit)

	model := cfg.Model
	if model == "" {
		model = t.model
	}

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		cb:     cb,
		log:    t.log.With("model", model),
		done:   make(chan struct{}),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := sess.sendSetup(model, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("gemini: setup: %w: %v", live.ErrTransportOpen, err)
	}

	go sess.receiveLoop()
	go sess.keepaliveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model             string             `json:"model"`
	GenerationConfig  generationConfig   `json:"generationConfig"`
	SystemInstruction *systemInstruction `json:"systemInstruction,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type systemInstruction struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	GoAway        *goAway          `json:"goAway,omitempty"`
	Error         *geminiError     `json:"error,omitempty"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type serverContent struct {
	ModelTurn    *modelTurn `json:"modelTurn,omitempty"`
	TurnComplete bool       `json:"turnComplete,omitempty"`
	Interrupted  bool       `json:"interrupted,omitempty"`
}

type modelTurn struct {
	Parts []part `json:"parts"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn *websocket.Conn
	cb   live.Callbacks
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// sendSetup sends the initial BidiGenerateContent setup message.
func (s *session) sendSetup(model string, cfg live.Config) error {
	modalities := make([]string, 0, len(cfg.ResponseModalities))
	for _, m := range cfg.ResponseModalities {
		modalities = append(modalities, string(m))
	}
	if len(modalities) == 0 {
		modalities = []string{string(live.ModalityAudio)}
	}

	msg := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", model),
			GenerationConfig: generationConfig{
				ResponseModalities: modalities,
			},
		},
	}

	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &systemInstruction{
			Parts: []part{{Text: cfg.Instructions}},
		}
	}

	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}

	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads messages from the WebSocket and dispatches them to the
// callbacks. It is the only goroutine that invokes callbacks.
func (s *session) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			// If the session context was cancelled, exit cleanly.
			if s.ctx.Err() != nil {
				return
			}
			s.fail(err)
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Debug("gemini: skipping malformed frame", "err", err)
			continue
		}

		if !s.handleServerMessage(&msg) {
			return
		}
	}
}

// handleServerMessage dispatches one message. It returns false when the
// session has ended.
func (s *session) handleServerMessage(msg *serverMessage) bool {
	if msg.Error != nil {
		text := "unknown error"
		if msg.Error.Message != "" {
			text = msg.Error.Message
		}
		s.terminate(fmt.Errorf("gemini: %w: %s (code %d)", live.ErrTransportRuntime, text, msg.Error.Code),
			websocket.StatusNormalClosure, "server error")
		return false
	}
	if msg.SetupComplete != nil && s.cb.OnOpen != nil {
		s.cb.OnOpen()
	}
	if msg.GoAway != nil {
		s.log.Info("gemini: server requested disconnect", "time_left", msg.GoAway.TimeLeft)
	}
	if msg.ServerContent != nil && s.cb.OnMessage != nil {
		s.cb.OnMessage(convertContent(msg.ServerContent))
	}
	return true
}

func convertContent(sc *serverContent) live.Message {
	m := live.Message{
		TurnComplete: sc.TurnComplete,
		Interrupted:  sc.Interrupted,
	}
	if sc.ModelTurn == nil {
		return m
	}
	for _, p := range sc.ModelTurn.Parts {
		switch {
		case p.InlineData != nil:
			m.Parts = append(m.Parts, live.Part{InlineData: &audio.Blob{
				Data:     p.InlineData.Data,
				MIMEType: p.InlineData.MIMEType,
			}})
		case p.Text != "":
			m.Parts = append(m.Parts, live.Part{Text: p.Text})
		}
	}
	return m
}

// fail reports a read failure: a close frame from the server becomes
// OnClose, anything else OnError.
func (s *session) fail(err error) {
	if status := websocket.CloseStatus(err); status != -1 {
		var ce websocket.CloseError
		reason := status.String()
		if errors.As(err, &ce) && ce.Reason != "" {
			reason = ce.Reason
		}
		if s.markClosed() {
			s.cancel()
		}
		if s.cb.OnClose != nil {
			s.cb.OnClose(reason)
		}
		return
	}
	s.terminate(fmt.Errorf("gemini: %w: %v", live.ErrTransportRuntime, err),
		websocket.StatusInternalError, "read failed")
}

// terminate ends the session because of err. The session is marked closed
// before OnError runs so that sends from the callback fail fast.
func (s *session) terminate(err error, code websocket.StatusCode, reason string) {
	first := s.markClosed()
	if first {
		s.cancel()
	}
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	if first {
		s.conn.Close(code, reason)
	}
}

// keepaliveLoop sends WebSocket pings to keep the Gemini Live connection alive.
func (s *session) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(s.ctx, keepaliveTimeout)
			_ = s.conn.Ping(pingCtx)
			cancel()
		}
	}
}

// markClosed flips the closed flag and reports whether this call did so.
func (s *session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.done)
	return true
}

func (s *session) shutdown(code websocket.StatusCode, reason string) {
	if !s.markClosed() {
		return
	}
	s.cancel() // unblocks receiveLoop and keepaliveLoop
	s.conn.Close(code, reason)
}

// ── Session methods ────────────────────────────────────────────────────────────

// SendRealtimeInput delivers one encoded media chunk to the model.
func (s *session) SendRealtimeInput(blob audio.Blob) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return live.ErrSessionClosed
	}
	s.mu.Unlock()

	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []inlineData{
				{MIMEType: blob.MIMEType, Data: blob.Data},
			},
		},
	}
	if err := s.writeJSON(msg); err != nil {
		return fmt.Errorf("gemini: send: %w", err)
	}
	return nil
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.shutdown(websocket.StatusNormalClosure, "session closed")
	return nil
}
