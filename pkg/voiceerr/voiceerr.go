// Package voiceerr defines the error categories surfaced by the media
// transport engine, per the propagation policy in the design: resumable
// control-plane failures are retried internally, everything else is
// terminal for the session.
package voiceerr

import "errors"

// Category classifies an error for the controller's propagation policy.
type Category string

const (
	CategoryConfig        Category = "config"
	CategoryProtocolState Category = "protocol_state"
	CategoryHandshake     Category = "handshake"
	CategoryControlClose  Category = "control_close"
	CategoryAEAD          Category = "aead"
	CategoryCodec         Category = "codec"
	CategoryEncoder       Category = "encoder"
)

// Error wraps an underlying cause with the category the controller uses to
// decide whether the session can keep running.
type Error struct {
	Category Category
	Resumable bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Category)
	}
	return string(e.Category) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func new_(cat Category, resumable bool, err error) *Error {
	return &Error{Category: cat, Resumable: resumable, Err: err}
}

// Config wraps a configuration error (unknown codec, no voice connection, no
// video track in the input).
func Config(err error) *Error { return new_(CategoryConfig, false, err) }

// ProtocolState wraps an error from an operation invoked before SSRC, keys or
// the peer endpoint are known.
func ProtocolState(err error) *Error { return new_(CategoryProtocolState, false, err) }

// Handshake wraps a malformed IP-discovery reply or socket error during
// discovery.
func Handshake(err error) *Error { return new_(CategoryHandshake, false, err) }

// ControlCloseResumable wraps a WebSocket close that the session can recover
// from via resume (close code 4015 or any code below 4000, reached while
// Identified or later).
func ControlCloseResumable(err error) *Error { return new_(CategoryControlClose, true, err) }

// ControlCloseTerminal wraps a WebSocket close that ends the session.
func ControlCloseTerminal(err error) *Error { return new_(CategoryControlClose, false, err) }

// AEAD wraps a key-import or authentication failure; always terminal.
func AEAD(err error) *Error { return new_(CategoryAEAD, false, err) }

// Codec wraps an unsupported codec or malformed extradata error.
func Codec(err error) *Error { return new_(CategoryCodec, false, err) }

// Encoder wraps an abnormal exit of the external transcoder. SIGKILL during
// teardown is expected and must be filtered by the caller before wrapping.
func Encoder(err error) *Error { return new_(CategoryEncoder, false, err) }

// IsResumable reports whether err (or any error it wraps) is a resumable
// control-close error.
func IsResumable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == CategoryControlClose && e.Resumable
	}
	return false
}

// As reports the Category of err if it is (or wraps) a *Error.
func As(err error) (Category, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Category, true
	}
	return "", false
}
