// Package biometric defines the device authentication gate consulted before
// voter registration and vote casting.
package biometric

import "context"

// Modality names the kind of check the device performs.
type Modality string

const (
	ModalityFingerprint Modality = "fingerprint"
	ModalityFace        Modality = "face"
	ModalityIris        Modality = "iris"
	ModalityPasscode    Modality = "passcode"
)

// Support is the result of a capability query. Reason is human readable and
// only set when Available is false.
type Support struct {
	Available bool
	Modality  Modality
	Reason    string
}

// Gate is the contract the voting state machine relies on. Challenge blocks
// until the prompt resolves; cancel, lockout and no-match all report false.
type Gate interface {
	CheckSupport(ctx context.Context) Support
	Challenge(ctx context.Context, prompt string) bool
}

// Static is a Gate with fixed answers.
type Static struct {
	Support Support
	Approve bool
}

var _ Gate = Static{}

// Unavailable returns a gate that reports no support with reason.
func Unavailable(reason string) Static {
	return Static{Support: Support{Reason: reason}}
}

func (s Static) CheckSupport(ctx context.Context) Support { return s.Support }

func (s Static) Challenge(ctx context.Context, prompt string) bool {
	return s.Support.Available && s.Approve
}
