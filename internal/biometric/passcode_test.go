package biometric

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func enrolled(t *testing.T, passcode string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(passcode), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword: %v", err)
	}
	return string(hash)
}

func scripted(entries ...string) func() (string, error) {
	return func() (string, error) {
		if len(entries) == 0 {
			return "", errors.New("EOF")
		}
		next := entries[0]
		entries = entries[1:]
		return next, nil
	}
}

func tty() bool   { return true }
func noTTY() bool { return false }

func TestPasscodeCheckSupport(t *testing.T) {
	hash := enrolled(t, "2468")
	cases := []struct {
		name      string
		hash      string
		terminal  func() bool
		available bool
		reason    string
	}{
		{name: "not enrolled", hash: "", terminal: tty, reason: "no device passcode is enrolled"},
		{name: "garbage hash", hash: "plaintext", terminal: tty, reason: "device passcode enrollment is invalid"},
		{name: "no terminal", hash: hash, terminal: noTTY, reason: "device passcode prompt needs an interactive terminal"},
		{name: "ready", hash: hash, terminal: tty, available: true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			gate := NewPasscode(tc.hash, WithPrompter(&bytes.Buffer{}, scripted(), tc.terminal))
			got := gate.CheckSupport(context.Background())
			if got.Available != tc.available || got.Reason != tc.reason {
				t.Fatalf("CheckSupport() = %+v, want available=%v reason=%q", got, tc.available, tc.reason)
			}
			if tc.available && got.Modality != ModalityPasscode {
				t.Fatalf("Modality = %q, want %q", got.Modality, ModalityPasscode)
			}
		})
	}
}

func TestPasscodeChallenge(t *testing.T) {
	hash := enrolled(t, "2468")
	cases := []struct {
		name    string
		entries []string
		want    bool
	}{
		{name: "first try", entries: []string{"2468"}, want: true},
		{name: "second try", entries: []string{"1111", "2468"}, want: true},
		{name: "lockout", entries: []string{"1", "2", "3", "2468"}, want: false},
		{name: "cancelled", entries: nil, want: false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			gate := NewPasscode(hash, WithPrompter(&out, scripted(tc.entries...), tty))
			if got := gate.Challenge(context.Background(), "Confirm your vote"); got != tc.want {
				t.Fatalf("Challenge() = %v, want %v", got, tc.want)
			}
			if !strings.Contains(out.String(), "Confirm your vote: ") {
				t.Fatalf("prompt not written: %q", out.String())
			}
		})
	}
}

func TestPasscodeChallengeWithoutSupportNeverPrompts(t *testing.T) {
	prompted := false
	gate := NewPasscode("", WithPrompter(&bytes.Buffer{}, func() (string, error) {
		prompted = true
		return "", nil
	}, tty))
	if gate.Challenge(context.Background(), "x") {
		t.Fatal("Challenge() = true without enrollment")
	}
	if prompted {
		t.Fatal("prompted without support")
	}
}

func TestHashPasscode(t *testing.T) {
	if _, err := HashPasscode("12"); !errors.Is(err, ErrPasscodeTooShort) {
		t.Fatalf("HashPasscode(short) err = %v, want ErrPasscodeTooShort", err)
	}
	hash, err := HashPasscode("9753")
	if err != nil {
		t.Fatalf("HashPasscode: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte("9753")) != nil {
		t.Fatal("hash does not verify")
	}
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	off := Unavailable("no sensor")
	if s := off.CheckSupport(ctx); s.Available || s.Reason != "no sensor" {
		t.Fatalf("CheckSupport() = %+v", s)
	}
	if off.Challenge(ctx, "x") {
		t.Fatal("unavailable gate approved")
	}
	on := Static{Support: Support{Available: true, Modality: ModalityFace}, Approve: true}
	if !on.Challenge(ctx, "x") {
		t.Fatal("approving gate rejected")
	}
}
