package redisidp

import (
	"context"
	"fmt"
	"time"
)

// startWatch subscribes to the revocation channel and polls for expiry. It
// runs when the first session listener registers.
func (p *Provider) startWatch() error {
	ctx, cancel := context.WithCancel(context.Background())

	pubsub := p.sessions.Subscribe(ctx)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		_ = pubsub.Close()
		return fmt.Errorf("%w: subscribe revocations: %v", ErrRedisUnavailable, err)
	}

	done := make(chan struct{})
	p.watchMu.Lock()
	p.watchCancel = cancel
	p.watchDone = done
	p.watchMu.Unlock()

	go func() {
		defer close(done)
		defer pubsub.Close()

		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()
		messages := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				if token, sid := p.ambientSID(); sid != "" && sid == msg.Payload {
					p.endLocal(token)
				}
			case <-ticker.C:
				if _, _, err := p.CurrentPrincipal(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("redisidp: session poll failed", "error", err)
				}
			}
		}
	}()
	return nil
}

// stopWatch runs when the last session listener leaves.
func (p *Provider) stopWatch() {
	p.watchMu.Lock()
	cancel, done := p.watchCancel, p.watchDone
	p.watchCancel, p.watchDone = nil, nil
	p.watchMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Close stops the revocation watcher. The ambient session is left as is.
func (p *Provider) Close() {
	p.stopWatch()
}
