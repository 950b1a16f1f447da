// Package facade is the surface the presentation layer talks to. A Provider
// owns the state machine's lifetime; its Facade is only usable while the
// provider is open.
package facade

import (
	"context"
	"sync"

	"ballotkey.org/internal/biometric"
	"ballotkey.org/internal/voting"
)

// Provider binds a voting.Service to an open/close lifetime.
type Provider struct {
	svc    voting.Service
	facade *Facade

	mu     sync.RWMutex
	opened bool
	closed bool
	boot   Result[voting.Snapshot]
}

// NewProvider wraps svc. Nothing runs until Open.
func NewProvider(svc voting.Service) *Provider {
	p := &Provider{svc: svc}
	p.facade = &Facade{p: p}
	return p
}

// Open bootstraps the service on first call and activates the facade. Later
// calls return the first bootstrap outcome. A bootstrap failure still leaves
// the provider open in a logged-out state, and the result carries the
// post-bootstrap snapshot either way.
func (p *Provider) Open(ctx context.Context) (Result[voting.Snapshot], error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Result[voting.Snapshot]{}, ErrProviderClosed
	}
	if p.opened {
		return p.boot, nil
	}
	err := p.svc.Bootstrap(ctx)
	snap := p.svc.Snapshot()
	p.boot = resultOf(snap, err)
	p.boot.Data = snap
	p.opened = true
	return p.boot, nil
}

// Close deactivates the facade. It does not log the user out.
func (p *Provider) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Facade returns the facade bound to p. It may be obtained before Open but
// must not be used until then.
func (p *Provider) Facade() *Facade { return p.facade }

func (p *Provider) service() voting.Service {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.opened || p.closed {
		panic(ErrOutsideProvider)
	}
	return p.svc
}

// Facade forwards to the state machine and turns errors into Results.
type Facade struct {
	p *Provider
}

// State returns the current snapshot.
func (f *Facade) State() voting.Snapshot {
	return f.p.service().Snapshot()
}

func (f *Facade) Login(ctx context.Context, creds voting.Credentials) Result[None] {
	return resultOf(None{}, f.p.service().Login(ctx, creds))
}

func (f *Facade) Register(ctx context.Context, reg voting.Registration) Result[None] {
	return resultOf(None{}, f.p.service().Register(ctx, reg))
}

func (f *Facade) Logout(ctx context.Context) Result[None] {
	return resultOf(None{}, f.p.service().Logout(ctx))
}

func (f *Facade) RegisterAsVoter(ctx context.Context) Result[None] {
	return resultOf(None{}, f.p.service().RegisterAsVoter(ctx))
}

func (f *Facade) CastVote(ctx context.Context, candidateID int64) Result[None] {
	return resultOf(None{}, f.p.service().CastVote(ctx, candidateID))
}

// CheckBiometricSupport never fails; an unsupported device is a valid answer.
func (f *Facade) CheckBiometricSupport(ctx context.Context) Result[biometric.Support] {
	return Ok(f.p.service().CheckBiometricSupport(ctx))
}

func (f *Facade) RefreshVoterStatus(ctx context.Context) Result[voting.VoterStatus] {
	return resultOf[voting.VoterStatus](f.p.service().RefreshVoterStatus(ctx))
}

func (f *Facade) Candidates(ctx context.Context) Result[[]voting.Candidate] {
	return resultOf[[]voting.Candidate](f.p.service().Candidates(ctx))
}
