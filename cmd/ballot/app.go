package main

import (
	"context"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ballotkey.org/internal/backend"
	"ballotkey.org/internal/biometric"
	"ballotkey.org/internal/config"
	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/facade"
	"ballotkey.org/internal/voting"
)

// app is one process worth of wiring: store, backend, gate and the
// bootstrapped facade.
type app struct {
	store    credstore.Store
	closers  []func() error
	provider *facade.Provider
	facade   *facade.Facade
	boot     facade.Result[voting.Snapshot]
}

func openStore(ctx context.Context, c config.Config) (credstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch c.StoreDriver {
	case config.DriverMemory:
		return credstore.NewMemory(), noop, nil
	case config.DriverFile:
		f, err := credstore.OpenFile(c.Store, c.StorePassphrase)
		if err != nil {
			return nil, nil, err
		}
		return f, noop, nil
	case config.DriverSQLite, config.DriverPgx:
		s, err := credstore.OpenSQL(ctx, c.StoreDriver, c.Store, c.StorePassphrase)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
}

func newGate(c config.Config) biometric.Gate {
	if c.Biometric == config.GateNone {
		return biometric.Unavailable("biometric authentication is disabled on this device")
	}
	return biometric.NewPasscode(c.PasscodeHash)
}

// newApp validates the config and bootstraps the state machine.
func newApp(ctx context.Context) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open credential store: %w", err)
	}
	a := &app{store: store, closers: []func() error{closeStore}}

	client, err := backend.New(cfg.APIURL, store,
		backend.WithTimeout(cfg.HTTPTimeout),
		backend.WithRateLimit(cfg.RatePerSec, cfg.RateBurst),
		backend.WithUserAgent("ballot/"+version),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	machine, err := voting.New(store, client, newGate(cfg), voting.WithVoterStatusPath(cfg.VoterStatusPath))
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.provider = facade.NewProvider(machine)
	a.facade = a.provider.Facade()
	boot, err := a.provider.Open(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.boot = boot
	return a, nil
}

func (a *app) Close() error {
	if a.provider != nil {
		a.provider.Close()
	}
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp runs fn against a bootstrapped app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

// resultError turns a failed Result into an error carrying its kind.
type resultError struct {
	kind    voting.Kind
	message string
}

func (e *resultError) Error() string { return e.message }

func check[T any](r facade.Result[T]) error {
	if r.OK {
		return nil
	}
	return &resultError{kind: r.Kind, message: r.Error}
}

func exitCode(err error) int {
	var re *resultError
	if !errors.As(err, &re) {
		return 1
	}
	switch re.kind {
	case voting.KindValidation:
		return 2
	case voting.KindAuth:
		return 3
	case voting.KindBiometricUnavailable, voting.KindBiometricRejected:
		return 4
	case voting.KindNetwork:
		return 5
	case voting.KindPreconditionFailed:
		return 6
	default:
		return 1
	}
}
