package stream

import (
	"testing"

	"github.com/ethan/discord-go-live/pkg/pacing"
	"github.com/ethan/discord-go-live/pkg/rtp"
)

func TestNew_RejectsInvalidOptions(t *testing.T) {
	opts := DefaultStreamOptions()
	opts.Width = 0
	if _, err := New(opts, nil); err == nil {
		t.Fatal("New() with invalid options should fail")
	}
}

func TestNew_AcceptsValidOptions(t *testing.T) {
	c, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	if c == nil {
		t.Fatal("New() returned a nil controller with no error")
	}
}

func TestNew_AssignsDistinctCorrelationIDs(t *testing.T) {
	a, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	b, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	if a.correlationID == b.correlationID {
		t.Error("two controllers should not share a correlation id")
	}
	var zero [16]byte
	if a.correlationID == zero {
		t.Error("correlationID should not be the zero UUID")
	}
}

func TestController_PushBeforeStart_Fails(t *testing.T) {
	c, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}

	if err := c.PushVideo(pacing.EncodedPacket{}); err == nil {
		t.Error("PushVideo before streaming started should fail")
	}
	if err := c.PushAudio(pacing.EncodedPacket{}); err == nil {
		t.Error("PushAudio before streaming started should fail")
	}
}

func TestController_PauseResume_NoopWithoutStreams(t *testing.T) {
	c, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	// Neither call should panic on a controller that never wired media.
	c.Pause()
	c.Resume()
}

func TestController_Stop_IdempotentWithoutConnections(t *testing.T) {
	c, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
	if err := c.Stop(); err != nil {
		t.Errorf("second Stop() = %v, want nil", err)
	}
}

func TestController_SetParameterSetsAndEncoder(t *testing.T) {
	c, err := New(DefaultStreamOptions(), nil)
	if err != nil {
		t.Fatalf("New(): %v", err)
	}
	c.SetParameterSets(rtp.ParameterSets{SPS: [][]byte{{0x67, 0x01}}, PPS: [][]byte{{0x68, 0x02}}})
	c.SetEncoder(noopEncoder{})
	if err := c.Stop(); err != nil {
		t.Errorf("Stop() = %v, want nil", err)
	}
}

type noopEncoder struct{}

func (noopEncoder) Close() error { return nil }
