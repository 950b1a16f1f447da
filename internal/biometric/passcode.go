package biometric

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	defaultMaxAttempts = 3
	minPasscodeLength  = 4
)

// ErrPasscodeTooShort is returned by HashPasscode.
var ErrPasscodeTooShort = fmt.Errorf("biometric: passcode must be at least %d characters", minPasscodeLength)

// Passcode is a terminal fallback gate: the device passcode is typed with
// echo disabled and checked against an enrolled bcrypt hash.
type Passcode struct {
	hash        []byte
	out         io.Writer
	readSecret  func() (string, error)
	isTerminal  func() bool
	maxAttempts int
}

var _ Gate = (*Passcode)(nil)

// PasscodeOption configures Passcode.
type PasscodeOption func(*Passcode)

// WithPrompter replaces terminal I/O, mainly for tests.
func WithPrompter(out io.Writer, readSecret func() (string, error), isTerminal func() bool) PasscodeOption {
	return func(p *Passcode) {
		if out != nil {
			p.out = out
		}
		if readSecret != nil {
			p.readSecret = readSecret
		}
		if isTerminal != nil {
			p.isTerminal = isTerminal
		}
	}
}

// WithMaxAttempts sets how many wrong entries lock the prompt.
func WithMaxAttempts(n int) PasscodeOption {
	return func(p *Passcode) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// NewPasscode builds the gate from the enrolled hash. An empty hash yields a
// gate that reports unavailable.
func NewPasscode(hash string, opts ...PasscodeOption) *Passcode {
	fd := int(os.Stdin.Fd())
	p := &Passcode{
		hash: []byte(strings.TrimSpace(hash)),
		out:  os.Stderr,
		readSecret: func() (string, error) {
			b, err := term.ReadPassword(fd)
			return string(b), err
		},
		isTerminal:  func() bool { return term.IsTerminal(fd) },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Passcode) CheckSupport(ctx context.Context) Support {
	if len(p.hash) == 0 {
		return Support{Reason: "no device passcode is enrolled"}
	}
	if _, err := bcrypt.Cost(p.hash); err != nil {
		return Support{Reason: "device passcode enrollment is invalid"}
	}
	if !p.isTerminal() {
		return Support{Reason: "device passcode prompt needs an interactive terminal"}
	}
	return Support{Available: true, Modality: ModalityPasscode}
}

func (p *Passcode) Challenge(ctx context.Context, prompt string) bool {
	if !p.CheckSupport(ctx).Available {
		return false
	}
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false
		}
		fmt.Fprintf(p.out, "%s: ", prompt)
		secret, err := p.readSecret()
		fmt.Fprintln(p.out)
		if err != nil {
			return false
		}
		err = bcrypt.CompareHashAndPassword(p.hash, []byte(secret))
		if err == nil {
			return true
		}
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false
		}
		if attempt < p.maxAttempts {
			fmt.Fprintln(p.out, "Passcode not recognized, try again.")
		}
	}
	return false
}

// HashPasscode produces the enrollment value for BALLOT_PASSCODE_HASH.
func HashPasscode(passcode string) (string, error) {
	if len(passcode) < minPasscodeLength {
		return "", ErrPasscodeTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("biometric: hash passcode: %w", err)
	}
	return string(hash), nil
}
