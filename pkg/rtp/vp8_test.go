package rtp

import "testing"

func TestVP8Packetizer_DescriptorPerPacket(t *testing.T) {
	sender := &fakeSender{}
	p := NewVP8Packetizer(1, 30, false, 16, passthroughEncryptor{}, sender, nil) // small MTU to force >1 chunk

	frame := make([]byte, 40) // forces 4 chunks of a 16-4=12 byte budget
	for i := range frame {
		frame[i] = byte(i)
	}

	if err := p.SendFrame(frame, 33); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if len(sender.packets) < 2 {
		t.Fatalf("expected fragmentation, got %d packets", len(sender.packets))
	}

	for i, raw := range sender.packets {
		h, body := decodePacket(t, raw)
		if len(body) < vp8DescriptorLen {
			t.Fatalf("packet %d too short for VP8 descriptor", i)
		}
		desc := body[:vp8DescriptorLen]
		wantS := i == 0
		gotS := desc[0]&0x10 != 0
		if gotS != wantS {
			t.Errorf("packet %d S bit = %v, want %v", i, gotS, wantS)
		}
		if desc[0]&0x80 == 0 {
			t.Errorf("packet %d: X bit not set in byte0", i)
		}
		if desc[1]&0x80 == 0 {
			t.Errorf("packet %d: I bit not set in byte1", i)
		}
		last := i == len(sender.packets)-1
		if h.Marker != last {
			t.Errorf("packet %d marker = %v, want %v", i, h.Marker, last)
		}
	}
}

func TestVP8Packetizer_PictureIDWraparound(t *testing.T) {
	sender := &fakeSender{}
	p := NewVP8Packetizer(1, 30, false, DefaultMTU, passthroughEncryptor{}, sender, nil)
	p.pictureID = 65535 // one below the uint16 wrap point

	if err := p.SendFrame([]byte{1, 2, 3}, 33); err != nil {
		t.Fatalf("SendFrame #1: %v", err)
	}
	_, body1 := decodePacket(t, sender.packets[0])
	// The wire field carries the low 15 bits of the counter (the high bit is M).
	pid1 := (uint16(body1[2]&0x7F) << 8) | uint16(body1[3])
	if pid1 != 65535&0x7FFF {
		t.Errorf("first frame PictureID = %d, want %d (low 15 bits of 65535)", pid1, 65535&0x7FFF)
	}

	if err := p.SendFrame([]byte{4, 5, 6}, 33); err != nil {
		t.Fatalf("SendFrame #2: %v", err)
	}
	_, body2 := decodePacket(t, sender.packets[1])
	pid2 := (uint16(body2[2]&0x7F) << 8) | uint16(body2[3])
	if pid2 != 0 {
		t.Errorf("second frame PictureID = %d, want 0 (wrapped)", pid2)
	}
}

func TestBuildVP8Descriptor(t *testing.T) {
	tests := []struct {
		name      string
		first     bool
		pictureID uint16
	}{
		{"first packet low id", true, 1},
		{"continuation packet", false, 1},
		{"high bit picture id", true, 0x1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := buildVP8Descriptor(tt.first, tt.pictureID)
			if len(d) != vp8DescriptorLen {
				t.Fatalf("descriptor length = %d, want %d", len(d), vp8DescriptorLen)
			}
			if d[0]&0x80 == 0 {
				t.Error("X bit not set")
			}
			if (d[0]&0x10 != 0) != tt.first {
				t.Errorf("S bit = %v, want %v", d[0]&0x10 != 0, tt.first)
			}
			if d[1] != 0x80 {
				t.Errorf("byte1 = 0x%02x, want 0x80", d[1])
			}
			got := (uint16(d[2]&0x7F) << 8) | uint16(d[3])
			if got != tt.pictureID {
				t.Errorf("decoded PictureID = %d, want %d", got, tt.pictureID)
			}
			if d[2]&0x80 == 0 {
				t.Error("M bit not set in high PictureID byte")
			}
		})
	}
}
