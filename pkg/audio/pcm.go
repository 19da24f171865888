package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// CaptureRate is the sample rate of microphone audio sent upstream.
const CaptureRate = 16000

// PlaybackRate is the sample rate of model audio received downstream.
const PlaybackRate = 24000

// ErrMalformedPayload is returned when an inbound PCM payload cannot be
// decoded: bad base64, or a byte length that does not divide into whole
// 16-bit samples across all channels.
var ErrMalformedPayload = errors.New("audio: malformed payload")

// PCMMIMEType returns the MIME type used for raw 16-bit PCM at rate.
func PCMMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

// Encode converts a mono float frame captured at [CaptureRate] into a
// base64 16-bit little-endian PCM blob.
func Encode(samples []float32) Blob {
	return EncodeRate(samples, CaptureRate)
}

// EncodeRate is [Encode] for an arbitrary sample rate.
//
// Each sample is scaled by 32768 and truncated toward zero into an int16.
// Values outside [-1, 1) wrap around rather than clamp, so +1.0 encodes as
// -32768.
func EncodeRate(samples []float32, rate int) Blob {
	raw := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(toInt16(s)))
	}
	return Blob{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: PCMMIMEType(rate),
	}
}

// toInt16 mirrors a typed-array int16 store: truncate, then reduce modulo
// 2^16. NaN and infinities become 0.
func toInt16(s float32) int16 {
	v := math.Trunc(float64(s) * 32768)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	v = math.Mod(v, 65536)
	return int16(int32(v))
}

// Decode turns a base64 16-bit little-endian interleaved PCM payload into a
// planar [Buffer]. Each sample is divided by 32768.
func Decode(payload string, sampleRate, channels int) (*Buffer, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: base64: %v", ErrMalformedPayload, err)
	}
	return DecodePCM16(raw, sampleRate, channels)
}

// DecodePCM16 is [Decode] for payloads that are already raw bytes.
func DecodePCM16(raw []byte, sampleRate, channels int) (*Buffer, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrMalformedPayload, channels)
	}
	if len(raw)%(2*channels) != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of %d", ErrMalformedPayload, len(raw), 2*channels)
	}

	frames := len(raw) / (2 * channels)
	buf := NewBuffer(sampleRate, channels, frames)
	for i := range frames {
		for ch := range channels {
			off := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(raw[off:]))
			buf.Samples[ch][i] = float32(sample) / 32768
		}
	}
	return buf, nil
}
