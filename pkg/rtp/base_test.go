package rtp

import (
	"testing"

	pionrtp "github.com/pion/rtp"
)

func decodePacket(t *testing.T, packet []byte) (pionrtp.Header, []byte) {
	t.Helper()
	var h pionrtp.Header
	n, err := h.Unmarshal(packet)
	if err != nil {
		t.Fatalf("unmarshal RTP header: %v", err)
	}
	// Strip the passthroughEncryptor's 4-byte tag and 4-byte truncated nonce.
	body := packet[n:]
	if len(body) < 8 {
		t.Fatalf("packet body too short: %d bytes", len(body))
	}
	return h, body[:len(body)-8]
}

func TestBase_SendChunk_SequenceAndTimestampAdvance(t *testing.T) {
	sender := &fakeSender{}
	base := NewBase(0x1234, PayloadTypeOpus, ClockRateOpus, defaultAudioSRInterval, DefaultMTU, false, passthroughEncryptor{}, sender, nil)

	if err := base.SendChunk([]byte("frame-one"), true, false); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	base.AdvanceTimestamp(20) // 20ms Opus frame
	if err := base.SendChunk([]byte("frame-two"), true, false); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}

	if len(sender.packets) != 2 {
		t.Fatalf("got %d packets, want 2", len(sender.packets))
	}

	h0, body0 := decodePacket(t, sender.packets[0])
	h1, body1 := decodePacket(t, sender.packets[1])

	if h0.SequenceNumber != 0 || h1.SequenceNumber != 1 {
		t.Errorf("sequence numbers = %d, %d; want 0, 1", h0.SequenceNumber, h1.SequenceNumber)
	}
	if h0.Timestamp != 0 {
		t.Errorf("first timestamp = %d, want 0", h0.Timestamp)
	}
	wantDelta := uint32(20 * ClockRateOpus / 1000)
	if h1.Timestamp != wantDelta {
		t.Errorf("second timestamp = %d, want %d", h1.Timestamp, wantDelta)
	}
	if string(body0) != "frame-one" || string(body1) != "frame-two" {
		t.Errorf("payloads = %q, %q", body0, body1)
	}
	if h0.SSRC != 0x1234 || h0.PayloadType != PayloadTypeOpus {
		t.Errorf("unexpected header fields: %+v", h0)
	}
}

func TestBase_SendChunk_ExtensionOnVideoOnly(t *testing.T) {
	sender := &fakeSender{}
	base := NewBase(1, PayloadTypeH264, ClockRateVideo, DefaultVideoSRInterval(30), DefaultMTU, false, passthroughEncryptor{}, sender, nil)

	if err := base.SendChunk([]byte("nalu"), true, true); err != nil {
		t.Fatalf("SendChunk: %v", err)
	}
	h, _ := decodePacket(t, sender.packets[0])
	if !h.Extension {
		t.Fatal("expected extension bit set for video packet")
	}
	payload := h.GetExtension(playoutDelayExtensionID)
	if len(payload) != playoutDelayExtensionLen {
		t.Errorf("playout-delay extension length = %d, want %d", len(payload), playoutDelayExtensionLen)
	}
}

func TestBase_SendChunk_SenderReportCadence(t *testing.T) {
	sender := &fakeSender{}
	// SR every packet so the assertion doesn't depend on timing.
	base := NewBase(1, PayloadTypeOpus, ClockRateOpus, 1, DefaultMTU, true, passthroughEncryptor{}, sender, nil)

	for i := 0; i < 3; i++ {
		if err := base.SendChunk([]byte("x"), true, false); err != nil {
			t.Fatalf("SendChunk #%d: %v", i, err)
		}
	}

	// Each media packet should be followed by one RTCP SR packet.
	if len(sender.packets) != 6 {
		t.Fatalf("got %d packets, want 6 (3 media + 3 SR)", len(sender.packets))
	}
	const rtcpTypeSenderReport = 0xC8 // rtcp.TypeSenderReport
	sr := sender.packets[1]
	if sr[1] != rtcpTypeSenderReport {
		t.Errorf("expected RTCP SR packet type 0x%02x, got 0x%02x", rtcpTypeSenderReport, sr[1])
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		mtu     int
		want    int
	}{
		{"empty", nil, 10, 0},
		{"exact fit", make([]byte, 10), 10, 1},
		{"one remainder", make([]byte, 11), 10, 2},
		{"default mtu on non-positive", make([]byte, DefaultMTU+1), 0, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunk(tt.payload, tt.mtu)
			if len(got) != tt.want {
				t.Errorf("Chunk() produced %d chunks, want %d", len(got), tt.want)
			}
		})
	}
}
