package kratosidp

import (
	"context"
	"time"
)

func (p *Provider) startWatch() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.watchMu.Lock()
	p.watchCancel = cancel
	p.watchDone = done
	p.watchMu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(p.poll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, _, err := p.CurrentPrincipal(ctx); err != nil && ctx.Err() == nil {
					p.logger.Warn("kratosidp: session poll failed", "error", err)
				}
			}
		}
	}()
	return nil
}

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
