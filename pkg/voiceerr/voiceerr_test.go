package voiceerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCategoryConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name         string
		err          error
		wantCategory Category
		wantResumable bool
	}{
		{"Config", Config(cause), CategoryConfig, false},
		{"ProtocolState", ProtocolState(cause), CategoryProtocolState, false},
		{"Handshake", Handshake(cause), CategoryHandshake, false},
		{"ControlCloseResumable", ControlCloseResumable(cause), CategoryControlClose, true},
		{"ControlCloseTerminal", ControlCloseTerminal(cause), CategoryControlClose, false},
		{"AEAD", AEAD(cause), CategoryAEAD, false},
		{"Codec", Codec(cause), CategoryCodec, false},
		{"Encoder", Encoder(cause), CategoryEncoder, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, ok := As(tt.err)
			if !ok {
				t.Fatalf("As() returned ok=false for %v", tt.err)
			}
			if cat != tt.wantCategory {
				t.Errorf("category = %q, want %q", cat, tt.wantCategory)
			}
			if IsResumable(tt.err) != tt.wantResumable {
				t.Errorf("IsResumable() = %v, want %v", IsResumable(tt.err), tt.wantResumable)
			}
			if !errors.Is(errors.Unwrap(tt.err), cause) {
				t.Error("Unwrap() did not return the original cause")
			}
		})
	}
}

func TestErrorMessageIncludesCategoryAndCause(t *testing.T) {
	err := Handshake(errors.New("dial failed"))
	want := "handshake: dial failed"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrappedThroughFmtErrorf(t *testing.T) {
	err := fmt.Errorf("context: %w", AEAD(errors.New("bad tag")))
	cat, ok := As(err)
	if !ok || cat != CategoryAEAD {
		t.Errorf("As() through fmt.Errorf wrapping = (%q, %v), want (%q, true)", cat, ok, CategoryAEAD)
	}
}

func TestAs_NonVoiceerrError(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Error("As() should return false for a plain error")
	}
	if IsResumable(errors.New("plain")) {
		t.Error("IsResumable() should be false for a plain error")
	}
}
