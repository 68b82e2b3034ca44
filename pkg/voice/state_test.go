package voice

import "testing"

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateDisconnected, "disconnected"},
		{StateIdentified, "identified"},
		{StateOperational, "operational"},
		{StateResuming, "resuming"},
		{StateClosed, "closed"},
		{State(999), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestState_ReachedIdentified(t *testing.T) {
	tests := []struct {
		s    State
		want bool
	}{
		{StateDisconnected, false},
		{StateConnecting, false},
		{StateIdentifying, false},
		{StateHelloReceived, false},
		{StateIdentified, true},
		{StateReadyReceived, true},
		{StateUdpHandshaking, true},
		{StateOperational, true},
		{StateResuming, true},
		{StateClosed, false},
	}
	for _, tt := range tests {
		if got := tt.s.reachedIdentified(); got != tt.want {
			t.Errorf("State(%v).reachedIdentified() = %v, want %v", tt.s, got, tt.want)
		}
	}
}
