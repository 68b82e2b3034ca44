package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethan/discord-go-live/pkg/voiceerr"
	"github.com/gorilla/websocket"
)

// resumeTimeout bounds how long a reconnect+RESUME attempt may take before
// it is treated as a terminal failure.
const resumeTimeout = 15 * time.Second

// handleClose classifies a closed read loop per the §4.5/§7 resume policy:
// code 4015 or any code below 4000, after the connection had reached
// Identified or later, is resumable and handled locally with an immediate
// reconnect; everything else is terminal.
func (c *Connection) handleClose(err error) {
	select {
	case <-c.stopped:
		return // Stop() initiated this closure; not an error.
	default:
	}

	code := closeCode(err)
	reachedIdentified := c.State().reachedIdentified()
	resumable := reachedIdentified && (code == 4015 || code < 4000)

	if !resumable {
		c.fail(voiceerr.ControlCloseTerminal(fmt.Errorf("voice gateway closed (code %d): %w", code, err)))
		return
	}

	if !c.resumeLimiter.Allow() {
		c.fail(voiceerr.ControlCloseTerminal(fmt.Errorf("voice gateway closed (code %d) but resume rate exceeded: %w", code, err)))
		return
	}

	c.logger.Warn("voice connection closed resumably, reconnecting", "code", code)
	c.setState(StateResuming)
	c.session.Resuming = true
	c.stopHeartbeat()
	go c.reconnectAndResume()
}

func closeCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}

// reconnectAndResume dials the gateway again and sends RESUME, restoring
// Operational on RESUMED. Failure is reported as a terminal error — the
// policy calls for an immediate retry, not a backoff loop, since the
// control plane is expected to hand back a usable endpoint/token pair.
func (c *Connection) reconnectAndResume() {
	ctx, cancel := context.WithTimeout(context.Background(), resumeTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL(c.session.ServerURL), nil)
	if err != nil {
		c.fail(voiceerr.ControlCloseTerminal(fmt.Errorf("resume dial: %w", err)))
		return
	}

	c.mu.Lock()
	c.conn = conn
	c.resumedCh = make(chan struct{})
	resumedCh := c.resumedCh
	c.mu.Unlock()

	go c.readLoop()

	if err := c.send(OpResume, resumePayload{
		ServerID:  c.session.GuildID,
		SessionID: c.session.SessionID,
		Token:     c.session.Token,
	}); err != nil {
		c.fail(voiceerr.ControlCloseTerminal(fmt.Errorf("resume send: %w", err)))
		return
	}

	select {
	case <-resumedCh:
		c.session.Resuming = false
		c.logger.Info("voice connection resumed")
	case <-ctx.Done():
		c.fail(voiceerr.ControlCloseTerminal(fmt.Errorf("resume timed out: %w", ctx.Err())))
	case <-c.stopped:
	}
}
