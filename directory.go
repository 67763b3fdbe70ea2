package goAdmin

import (
	"context"
	"errors"
	"strconv"
)

// Load fetches the whole account collection in one ProfileStore.ListAll call
// and replaces the cache, keeping store order. On failure the cache keeps its
// previous value and the error matches ErrFetchFailed; calling Load again is
// the retry.
//
// Records removed by a deletion that completed while this Load was in flight
// are filtered from its result, so a slow listing cannot resurrect them.
func (p *Panel) Load(ctx context.Context) ([]AccountRecord, error) {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.loadsInFlight++
	startGen := p.deleteGen
	p.mu.Unlock()

	start := p.now()
	listCtx := ctx
	if p.config.Directory.LoadTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, p.config.Directory.LoadTimeout)
		defer cancel()
	}
	records, err := p.profiles.ListAll(listCtx)
	p.observeSince(MetricLoadLatency, start)

	p.mu.Lock()
	p.loadsInFlight--
	if err != nil {
		p.lastLoad = DisplayLoadFailed
		p.pruneTombstonesLocked()
		p.mu.Unlock()

		p.metricInc(MetricDirectoryLoadFailure)
		p.emitAudit(ctx, auditEventDirectoryLoad, false, "", "", ErrFetchFailed, nil)
		p.logger.Warn("goAdmin: directory load failed", "error", err)
		return nil, errors.Join(ErrFetchFailed, err)
	}

	fresh := make([]AccountRecord, 0, len(records))
	for _, rec := range records {
		if gen, ok := p.tombstones[rec.ID]; ok && gen > startGen {
			continue
		}
		fresh = append(fresh, rec)
	}
	p.accounts = fresh
	p.lastLoad = DisplayReady
	p.pruneTombstonesLocked()
	out := cloneAccounts(p.accounts)
	p.mu.Unlock()

	p.metricInc(MetricDirectoryLoadSuccess)
	p.emitAudit(ctx, auditEventDirectoryLoad, true, "", "", nil, func() map[string]string {
		return map[string]string{
			"count": strconv.Itoa(len(out)),
		}
	})
	return out, nil
}

// Accounts returns a copy of the cached directory.
func (p *Panel) Accounts() []AccountRecord {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneAccounts(p.accounts)
}

// Account returns the cached record for id.
func (p *Panel) Account(id string) (AccountRecord, bool) {
	if p == nil {
		return AccountRecord{}, false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.indexLocked(id)
	if idx < 0 {
		return AccountRecord{}, false
	}
	return p.accounts[idx], true
}

// DisplayState reports what the directory view should render.
func (p *Panel) DisplayState() DisplayState {
	if p == nil {
		return DisplayLoading
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.sessionObserved && !p.sessionPresent:
		return DisplaySignedOut
	case p.loadsInFlight > 0:
		return DisplayLoading
	default:
		return p.lastLoad
	}
}

// Edit hands the edit destination for a cached account to the Navigator.
func (p *Panel) Edit(ctx context.Context, id string) error {
	ctx = contextOrBackground(ctx)
	if err := p.ready(); err != nil {
		return err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPanelNotReady
	}
	found := p.indexLocked(id) >= 0
	p.mu.Unlock()

	if !found {
		return ErrAccountNotFound
	}
	p.navigator.Navigate(ctx, Destination{Kind: DestinationEdit, AccountID: id})
	return nil
}

// removeAccountLocked filters by id, never by position: a Load may have
// reordered the cache since the deletion was requested.
func (p *Panel) removeAccountLocked(id string) {
	p.deleteGen++
	if p.loadsInFlight > 0 {
		p.tombstones[id] = p.deleteGen
	}

	kept := make([]AccountRecord, 0, len(p.accounts))
	for _, rec := range p.accounts {
		if rec.ID != id {
			kept = append(kept, rec)
		}
	}
	p.accounts = kept
}

func (p *Panel) pruneTombstonesLocked() {
	if p.loadsInFlight == 0 && len(p.tombstones) > 0 {
		clear(p.tombstones)
	}
}

func (p *Panel) indexLocked(id string) int {
	for i, rec := range p.accounts {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

func cloneAccounts(in []AccountRecord) []AccountRecord {
	out := make([]AccountRecord, len(in))
	copy(out, in)
	return out
}
