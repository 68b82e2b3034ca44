package voice

import "time"

// startHeartbeat schedules HEARTBEAT(42069) every interval until stopped,
// as directed by HELLO (§4.5). Any previously running heartbeat loop is
// stopped first, since a resumed connection receives a fresh HELLO.
func (c *Connection) startHeartbeat(interval time.Duration) {
	c.stopHeartbeat()

	if interval <= 0 {
		c.logger.Warn("voice connection: non-positive heartbeat interval, skipping", "interval", interval)
		return
	}

	c.mu.Lock()
	stop := make(chan struct{})
	c.heartbeatStop = stop
	c.mu.Unlock()

	c.heartbeatWg.Add(1)
	go func() {
		defer c.heartbeatWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.send(OpHeartbeat, heartbeatNonce); err != nil {
					c.logger.Warn("voice connection: heartbeat send failed", "error", err)
				}
			case <-stop:
				return
			case <-c.stopped:
				return
			}
		}
	}()
}

func (c *Connection) stopHeartbeat() {
	c.mu.Lock()
	stop := c.heartbeatStop
	c.heartbeatStop = nil
	c.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	c.heartbeatWg.Wait()
}
