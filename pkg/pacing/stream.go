package pacing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is a pacing stream's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StatePaused
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Packetizer is the sink a pacing stream releases frames to. The
// codec-specific packetizers in pkg/rtp all satisfy this.
type Packetizer interface {
	SendFrame(payload []byte, frametimeMs float64) error
}

// pauseCheckInterval and syncWaitInterval are how often Forward re-checks
// the pause and sync-wait conditions.
const (
	pauseCheckInterval = 50 * time.Millisecond
	syncWaitInterval   = 1 * time.Millisecond
)

// Stream paces one codec's EncodedPackets onto its Packetizer in real time,
// optionally holding off emission to stay within syncTolerance of a paired
// stream's last-observed PTS.
type Stream struct {
	name       string
	packetizer Packetizer
	noSleep    bool
	logger     *slog.Logger

	mu    sync.Mutex
	state State
	clock PacingClock

	havePts bool
	ptsMs   float64

	syncPeerMu sync.RWMutex
	syncPeer   *Stream // weak, non-owning: a relation, not ownership

	cancel chan struct{}
	closed bool
}

// NewStream constructs an idle pacing stream. noSleep configures the stream
// to skip its own frame-pacing sleep, for callers where a paired stream's
// sleep already governs wall-clock timing.
func NewStream(name string, packetizer Packetizer, syncToleranceMs float64, noSleep bool, logger *slog.Logger) *Stream {
	if syncToleranceMs <= 0 {
		syncToleranceMs = DefaultSyncToleranceMs
	}
	s := &Stream{
		name:       name,
		packetizer: packetizer,
		noSleep:    noSleep,
		logger:     logger,
		state:      StateIdle,
		cancel:     make(chan struct{}),
	}
	s.clock.Reset(syncToleranceMs)
	return s
}

// Start transitions Idle/Paused -> Running and resets the pacing clock.
func (s *Stream) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateTerminated {
		return
	}
	s.clock.Reset(s.clock.SyncToleranceMs)
	s.havePts = false
	s.state = StateRunning
}

// Pause transitions Running -> Paused, latching the pause start time so the
// eventual Resume can account for paused duration.
func (s *Stream) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.state = StatePaused
	s.clock.IsPaused = true
	s.clock.PauseStart = time.Now()
}

// Resume transitions Paused -> Running, folding the elapsed pause into
// totalPausedDuration.
func (s *Stream) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.clock.TotalPausedDuration += time.Since(s.clock.PauseStart)
	s.clock.IsPaused = false
	s.state = StateRunning
}

// Stop transitions to Terminated, unblocks any pending sleep in Forward,
// and detaches the sync peer.
func (s *Stream) Stop() {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	if !s.closed {
		close(s.cancel)
		s.closed = true
	}
	s.mu.Unlock()

	s.SetSyncPeer(nil)
}

// Ended reports whether the stream has terminated.
func (s *Stream) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateTerminated
}

// State returns the stream's current lifecycle state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSyncPeer attaches (or, with nil, detaches) this stream's sync-wait
// peer. The reference is weak: neither stream owns the other's lifecycle.
func (s *Stream) SetSyncPeer(peer *Stream) {
	s.syncPeerMu.Lock()
	s.syncPeer = peer
	s.syncPeerMu.Unlock()
}

// PTS returns the stream's last-recorded presentation timestamp in
// milliseconds and whether one has been recorded yet.
func (s *Stream) PTS() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptsMs, s.havePts
}

// Forward runs the per-packet pacing algorithm for pkt and blocks the
// caller's goroutine until the frame has been released (or the stream is
// stopped). Callers must serialize calls to Forward for a single stream —
// it owns no internal queue of its own.
func (s *Stream) Forward(pkt EncodedPacket) error {
	framePtsMs := pkt.FramePtsMs()

	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return fmt.Errorf("pacing stream %s: forward after stop", s.name)
	}
	if !s.clock.StartWallSet {
		s.clock.StartWall = time.Now()
		s.clock.StartWallSet = true
		s.clock.StartPtsMs = framePtsMs
	}
	startWall := s.clock.StartWall
	startPtsMs := s.clock.StartPtsMs
	tolerance := s.clock.SyncToleranceMs
	s.mu.Unlock()

	if err := s.waitWhilePaused(); err != nil {
		return err
	}

	if err := s.syncWait(framePtsMs, tolerance); err != nil {
		return err
	}

	sendStart := time.Now()
	err := s.packetizer.SendFrame(pkt.Payload, pkt.DurationMs)
	sendCost := time.Since(sendStart)
	if err != nil && s.logger != nil {
		s.logger.Warn("pacing stream frame send failed", "stream", s.name, "pts_ms", framePtsMs, "error", err)
	}
	if s.logger != nil {
		s.logger.Debug("pacing stream frame sent", "stream", s.name, "pts_ms", framePtsMs, "send_cost_ms", sendCost.Milliseconds())
	}

	s.mu.Lock()
	s.ptsMs = framePtsMs
	s.havePts = true
	totalPaused := s.clock.TotalPausedDuration
	s.mu.Unlock()

	if s.noSleep {
		return err
	}

	elapsedPts := time.Duration((framePtsMs - startPtsMs) * float64(time.Millisecond))
	elapsedWall := time.Since(startWall) - totalPaused
	sleep := elapsedPts - elapsedWall
	if sleep > 0 {
		select {
		case <-time.After(sleep):
		case <-s.cancel:
			return fmt.Errorf("pacing stream %s: stopped during frame sleep", s.name)
		}
	}

	return err
}

// waitWhilePaused blocks while the stream is paused, polling at
// pauseCheckInterval, and returns early if the stream is stopped.
func (s *Stream) waitWhilePaused() error {
	for {
		s.mu.Lock()
		state := s.state
		s.mu.Unlock()

		switch state {
		case StateTerminated:
			return fmt.Errorf("pacing stream %s: stopped while paused", s.name)
		case StatePaused:
			select {
			case <-time.After(pauseCheckInterval):
			case <-s.cancel:
				return fmt.Errorf("pacing stream %s: stopped while paused", s.name)
			}
		default:
			return nil
		}
	}
}

// syncWait blocks while a live sync peer's PTS trails this frame's PTS by
// more than tolerance, yielding syncWaitInterval between checks.
func (s *Stream) syncWait(framePtsMs, toleranceMs float64) error {
	for {
		s.syncPeerMu.RLock()
		peer := s.syncPeer
		s.syncPeerMu.RUnlock()

		if peer == nil || peer.Ended() {
			return nil
		}
		peerPts, havePeerPts := peer.PTS()
		if !havePeerPts || framePtsMs-peerPts <= toleranceMs {
			return nil
		}

		select {
		case <-time.After(syncWaitInterval):
		case <-s.cancel:
			return fmt.Errorf("pacing stream %s: stopped during sync wait", s.name)
		}
	}
}
