package voting

// User mirrors the backend user record. Timestamps are kept as sent.
type User struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	EmailVerifiedAt string `json:"email_verified_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// VoterStatus is the server's view of the current user's voter record.
type VoterStatus struct {
	IsRegistered     bool   `json:"is_registered"`
	HasVoted         bool   `json:"has_voted"`
	VotedCandidateID *int64 `json:"voted_candidate_id,omitempty"`
}

func (s VoterStatus) clone() *VoterStatus {
	c := s
	if s.VotedCandidateID != nil {
		id := *s.VotedCandidateID
		c.VotedCandidateID = &id
	}
	return &c
}

// Candidate is the subset of the candidate record needed to pick a vote target.
type Candidate struct {
	ID             int64  `json:"id"`
	FullName       string `json:"full_name"`
	PoliticalParty string `json:"political_party"`
	Region         string `json:"region"`
}

// Credentials are the login form values.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration are the sign-up form values.
type Registration struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// SessionPhase is the session axis of the state machine.
type SessionPhase int

const (
	Unauthenticated SessionPhase = iota
	Authenticating
	Authenticated
)

func (p SessionPhase) String() string {
	switch p {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// VoterPhase is the voter registration axis.
type VoterPhase int

const (
	NotRegistered VoterPhase = iota
	Registering
	Registered
)

func (p VoterPhase) String() string {
	switch p {
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	default:
		return "not_registered"
	}
}

// VotePhase is the vote axis.
type VotePhase int

const (
	NotVoted VotePhase = iota
	Voting
	Voted
)

func (p VotePhase) String() string {
	switch p {
	case Voting:
		return "voting"
	case Voted:
		return "voted"
	default:
		return "not_voted"
	}
}

// Snapshot is a read-only copy of the machine state. Secrets are not exposed.
type Snapshot struct {
	Loading           bool
	Session           SessionPhase
	Voter             VoterPhase
	Vote              VotePhase
	User              *User
	VoterStatus       *VoterStatus
	HasBiometricToken bool
}
