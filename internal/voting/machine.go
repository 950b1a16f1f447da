// Package voting owns the client-side session, voter and vote state. It
// orchestrates the credential store, the biometric gate and the backend, and
// enforces which transitions are allowed.
package voting

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ballotkey.org/internal/audit"
	"ballotkey.org/internal/backend"
	"ballotkey.org/internal/biometric"
	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/obs"
)

// Caller is the part of the backend client the machine depends on.
type Caller interface {
	Call(ctx context.Context, method, path string, body any) (*backend.Response, error)
}

// Service is the operation set the facade exposes.
type Service interface {
	Snapshot() Snapshot
	Bootstrap(ctx context.Context) error
	Login(ctx context.Context, creds Credentials) error
	Register(ctx context.Context, reg Registration) error
	Logout(ctx context.Context) error
	RegisterAsVoter(ctx context.Context) error
	CastVote(ctx context.Context, candidateID int64) error
	CheckBiometricSupport(ctx context.Context) biometric.Support
	RefreshVoterStatus(ctx context.Context) (VoterStatus, error)
	Candidates(ctx context.Context) ([]Candidate, error)
}

const logoutTimeout = 5 * time.Second

// Machine implements Service. Mutating operations run one at a time;
// Snapshot never waits on I/O.
type Machine struct {
	store   credstore.Store
	backend Caller
	gate    biometric.Gate

	voterStatusPath string
	now             func() time.Time
	mintToken       func() string

	op sync.Mutex

	mu sync.RWMutex
	st state
}

type state struct {
	loading        bool
	authenticating bool
	registering    bool
	voting         bool

	user           *User
	sessionToken   string
	voterStatus    *VoterStatus
	biometricToken string
	voted          bool

	// biometricOwner is the user the in-memory biometric token was used
	// with in this process, 0 while unknown.
	biometricOwner int64
}

var _ Service = (*Machine)(nil)

// Option configures Machine.
type Option func(*Machine) error

// WithVoterStatusPath selects the voter status endpoint.
func WithVoterStatusPath(path string) Option {
	return func(m *Machine) error {
		path = strings.TrimSpace(path)
		if !strings.HasPrefix(path, "/") {
			return errors.New("voting: voter status path must start with /")
		}
		m.voterStatusPath = path
		return nil
	}
}

// WithClock overrides the clock used for session token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) error {
		if now == nil {
			return errors.New("voting: clock must not be nil")
		}
		m.now = now
		return nil
	}
}

// WithTokenMinter overrides how biometric tokens are generated.
func WithTokenMinter(mint func() string) Option {
	return func(m *Machine) error {
		if mint == nil {
			return errors.New("voting: token minter must not be nil")
		}
		m.mintToken = mint
		return nil
	}
}

// New builds a Machine. It starts in the loading state until Bootstrap runs.
func New(store credstore.Store, caller Caller, gate biometric.Gate, opts ...Option) (*Machine, error) {
	if store == nil || caller == nil || gate == nil {
		return nil, errors.New("voting: store, backend and gate are required")
	}
	m := &Machine{
		store:           store,
		backend:         caller,
		gate:            gate,
		voterStatusPath: backend.DefaultVoterStatusPath,
		now:             time.Now,
		mintToken:       mintBiometricToken,
		st:              state{loading: true},
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Snapshot returns a copy of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := m.st

	snap := Snapshot{
		Loading:           st.loading,
		HasBiometricToken: st.biometricToken != "",
	}
	switch {
	case st.user != nil:
		snap.Session = Authenticated
		u := *st.user
		snap.User = &u
	case st.authenticating:
		snap.Session = Authenticating
	}
	if st.voterStatus != nil {
		snap.VoterStatus = st.voterStatus.clone()
	}
	switch {
	case st.registering:
		snap.Voter = Registering
	case st.voterStatus != nil && st.voterStatus.IsRegistered:
		snap.Voter = Registered
	}
	switch {
	case st.voting:
		snap.Vote = Voting
	case st.voted || (st.voterStatus != nil && st.voterStatus.HasVoted):
		snap.Vote = Voted
	}
	return snap
}

func (m *Machine) update(fn func(*state)) {
	m.mu.Lock()
	fn(&m.st)
	m.mu.Unlock()
}

func (m *Machine) view() state {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st
}

// Bootstrap rehydrates the session from the stored token. It always clears
// the loading flag. Store and backend failures degrade to a logged-out state;
// the returned error only describes why.
func (m *Machine) Bootstrap(ctx context.Context) (err error) {
	m.op.Lock()
	defer m.op.Unlock()
	defer func() {
		m.update(func(s *state) { s.loading = false })
		m.observe("bootstrap", err)
	}()

	// The biometric token outlives the session, so it is loaded on every path.
	bioToken, _ := m.readSecret(ctx, credstore.KeyBiometricToken)
	loggedOut := func(s *state) {
		clearSession(s)
		s.biometricToken = bioToken
		s.biometricOwner = 0
	}

	token, ok := m.readSecret(ctx, credstore.KeyAuthToken)
	if !ok {
		m.update(loggedOut)
		return nil
	}
	if sessionTokenExpired(token, m.now()) {
		m.deleteSecret(ctx, credstore.KeyAuthToken)
		m.update(loggedOut)
		_ = audit.LogEvent(ctx, "auth.session.revoked", map[string]any{"reason": "expired"})
		return nil
	}

	user, status, userErr, statusErr := m.fetchUserAndStatus(ctx)
	if userErr != nil {
		if kind := KindOf(userErr); kind != KindNetwork && kind != KindUnknown {
			// The token got us nowhere; drop it so the next start is clean.
			m.deleteSecret(ctx, credstore.KeyAuthToken)
		}
		m.update(loggedOut)
		return userErr
	}
	if statusErr != nil && KindOf(statusErr) == KindAuth {
		m.update(loggedOut)
		return statusErr
	}

	m.update(func(s *state) {
		s.user = user
		s.sessionToken = token
		s.voterStatus = status
		s.biometricToken = bioToken
		s.biometricOwner = 0
		if bioToken != "" {
			s.biometricOwner = user.ID
		}
		s.voted = false
	})
	return nil
}

// Login exchanges credentials for a session token.
func (m *Machine) Login(ctx context.Context, creds Credentials) (err error) {
	defer func() { m.observe("login", err) }()

	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return newError(KindValidation, msgFillAllFields, nil)
	}

	m.op.Lock()
	defer m.op.Unlock()
	return m.authenticate(ctx, "login", backend.PathLogin, creds, msgLoginFailed)
}

// Register creates an account and signs in with it.
func (m *Machine) Register(ctx context.Context, reg Registration) (err error) {
	defer func() { m.observe("register", err) }()

	reg.Name = strings.TrimSpace(reg.Name)
	reg.Email = strings.TrimSpace(reg.Email)
	if reg.Name == "" || reg.Email == "" || reg.Password == "" || reg.PasswordConfirmation == "" {
		return newError(KindValidation, msgFillAllFields, nil)
	}
	if reg.Password != reg.PasswordConfirmation {
		return newError(KindValidation, msgPasswordMismatch, nil)
	}

	m.op.Lock()
	defer m.op.Unlock()
	return m.authenticate(ctx, "register", backend.PathRegister, reg, msgRegistrationFailed)
}

type authData struct {
	User        *User  `json:"user"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// authenticate is the shared login/register path. Session state changes only
// once the token is durably stored.
func (m *Machine) authenticate(ctx context.Context, op, path string, body any, fallback string) error {
	m.update(func(s *state) { s.authenticating = true })
	defer m.update(func(s *state) { s.authenticating = false })

	resp, err := m.backend.Call(ctx, http.MethodPost, path, body)
	if err != nil {
		e := callError(err)
		_ = audit.LogEvent(ctx, "auth."+op+".failed", map[string]any{"kind": string(e.Kind)})
		return e
	}
	env, _ := resp.Envelope()

	if !resp.OK() || !env.Success {
		e := rejection(resp, env, fallback)
		if resp.StatusCode == http.StatusUnauthorized {
			e = newError(KindAuth, firstNonEmpty(env.Message, msgInvalidCredentials), nil)
		}
		_ = audit.LogEvent(ctx, "auth."+op+".failed", map[string]any{"kind": string(e.Kind), "status": resp.StatusCode})
		return e
	}

	var data authData
	if err := resp.Object(&data); err != nil || data.User == nil || strings.TrimSpace(data.AccessToken) == "" {
		return newError(KindServerRejected, firstNonEmpty(env.Message, fallback)+": "+msgMalformedAuthAnswer, err)
	}
	token := strings.TrimSpace(data.AccessToken)

	if err := m.store.Set(ctx, credstore.KeyAuthToken, token); err != nil {
		obs.Error("failed to store session token", map[string]any{"operation": op, "error": err})
		return newError(KindStoreUnavailable, msgSessionNotSaved, err)
	}

	user := *data.User
	m.update(func(s *state) {
		s.user = &user
		s.sessionToken = token
		s.voterStatus = nil
		s.voted = false
		claimBiometricToken(s, user.ID)
	})

	ctx = audit.WithUserID(ctx, strconv.FormatInt(user.ID, 10))
	if op == "login" {
		_ = audit.LogEvent(ctx, "auth.login.succeeded", nil)
	} else {
		_ = audit.LogEvent(ctx, "auth.register.succeeded", nil)
	}

	m.refreshStatusBestEffort(ctx, op)
	return nil
}

// Logout tells the backend when a session exists, then clears every stored
// secret and all in-memory state whatever the backend said.
func (m *Machine) Logout(ctx context.Context) (err error) {
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.observe("logout", err) }()

	st := m.view()
	hasSession := st.sessionToken != ""
	if !hasSession {
		_, hasSession = m.readSecret(ctx, credstore.KeyAuthToken)
	}
	if hasSession {
		callCtx, cancel := context.WithTimeout(ctx, logoutTimeout)
		if _, callErr := m.backend.Call(callCtx, http.MethodPost, backend.PathLogout, nil); callErr != nil {
			obs.Warn("backend logout failed, clearing local session anyway", map[string]any{"error": callErr})
		}
		cancel()
	}

	var storeErr error
	for _, key := range credstore.Keys {
		if delErr := m.store.Delete(ctx, key); delErr != nil {
			obs.Warn("failed to delete stored secret on logout", map[string]any{"key": key.String(), "error": delErr})
			storeErr = errors.Join(storeErr, delErr)
		}
	}

	m.update(func(s *state) { *s = state{} })

	if st.user != nil {
		ctx = audit.WithUserID(ctx, strconv.FormatInt(st.user.ID, 10))
	}
	_ = audit.LogEvent(ctx, "auth.logout", map[string]any{"backend_notified": hasSession})

	if storeErr != nil {
		return newError(KindStoreUnavailable, msgLogoutStoreFailed, storeErr)
	}
	return nil
}

// CheckBiometricSupport reports the gate's capability. It has no side effects.
func (m *Machine) CheckBiometricSupport(ctx context.Context) biometric.Support {
	return m.gate.CheckSupport(ctx)
}

func (m *Machine) fetchUserAndStatus(ctx context.Context) (*User, *VoterStatus, error, error) {
	var (
		user      *User
		status    *VoterStatus
		userErr   error
		statusErr error
	)
	var g errgroup.Group
	g.Go(func() error {
		user, userErr = m.fetchUser(ctx)
		return nil
	})
	g.Go(func() error {
		status, statusErr = m.fetchVoterStatus(ctx)
		return nil
	})
	_ = g.Wait()

	if statusErr != nil {
		obs.Warn("voter status unavailable during bootstrap", map[string]any{"error": statusErr})
	}
	return user, status, userErr, statusErr
}

func (m *Machine) fetchUser(ctx context.Context) (*User, error) {
	resp, err := m.backend.Call(ctx, http.MethodGet, backend.PathUser, nil)
	if err != nil {
		return nil, callError(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, newError(KindAuth, msgSessionExpired, nil)
	}
	if !resp.OK() {
		env, _ := resp.Envelope()
		return nil, rejection(resp, env, msgLoginRequired)
	}
	var user User
	if err := resp.Object(&user); err != nil {
		return nil, newError(KindServerRejected, msgMalformedAuthAnswer, err)
	}
	return &user, nil
}

func (m *Machine) fetchVoterStatus(ctx context.Context) (*VoterStatus, error) {
	resp, err := m.backend.Call(ctx, http.MethodGet, m.voterStatusPath, nil)
	if err != nil {
		return nil, callError(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, newError(KindAuth, msgSessionExpired, nil)
	}
	if !resp.OK() {
		env, _ := resp.Envelope()
		return nil, rejection(resp, env, msgStatusFailed)
	}
	var status VoterStatus
	if err := resp.Object(&status); err != nil {
		return nil, newError(KindServerRejected, msgStatusFailed, err)
	}
	if status.HasVoted && !status.IsRegistered {
		obs.Warn("backend reported a vote without voter registration", nil)
	}
	return &status, nil
}

// refreshStatusBestEffort updates the cached status and only logs failures.
func (m *Machine) refreshStatusBestEffort(ctx context.Context, op string) {
	status, err := m.fetchVoterStatus(ctx)
	if err != nil {
		if KindOf(err) == KindAuth {
			m.dropSession(ctx, op)
			return
		}
		obs.Warn("voter status refresh failed", map[string]any{"operation": op, "error": err})
		return
	}
	m.update(func(s *state) { s.voterStatus = status })
}

// dropSession forgets the in-memory session after a 401. The backend client
// has already deleted the stored token. The biometric token stays.
func (m *Machine) dropSession(ctx context.Context, op string) {
	m.update(clearSession)
	_ = audit.LogEvent(ctx, "auth.session.revoked", map[string]any{"reason": "unauthorized", "operation": op})
}

// claimBiometricToken binds the in-memory biometric token to id. A token
// last used by another account in this process is dropped from memory; the
// stored copy is left for the backend to judge.
func claimBiometricToken(s *state, id int64) {
	switch {
	case s.biometricToken == "":
		s.biometricOwner = 0
	case s.biometricOwner == 0:
		s.biometricOwner = id
	case s.biometricOwner != id:
		s.biometricToken = ""
		s.biometricOwner = 0
	}
}

func clearSession(s *state) {
	s.user = nil
	s.sessionToken = ""
	s.voterStatus = nil
	s.voted = false
}

// readSecret treats store failures as absence and logs them.
func (m *Machine) readSecret(ctx context.Context, key credstore.Key) (string, bool) {
	v, err := m.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, credstore.ErrNotFound) {
			obs.Warn("credential store read failed", map[string]any{"key": key.String(), "error": err})
		}
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (m *Machine) deleteSecret(ctx context.Context, key credstore.Key) {
	if err := m.store.Delete(ctx, key); err != nil {
		obs.Warn("credential store delete failed", map[string]any{"key": key.String(), "error": err})
	}
}

func (m *Machine) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(KindOf(err))
	}
	obs.ObserveOperation(op, outcome)
}

// callError maps a failed Call. Only a NetworkError means the backend was
// not reached; anything else is a local fault.
func callError(err error) *Error {
	if backend.IsNetwork(err) {
		return newError(KindNetwork, msgNetwork, err)
	}
	return newError(KindUnknown, msgRequestFailed, err)
}

// rejection maps a non-success response to a user-facing error. 422 bodies
// contribute their joined field messages.
func rejection(resp *backend.Response, env backend.Envelope, fallback string) *Error {
	if resp.StatusCode == http.StatusUnprocessableEntity {
		msg := firstNonEmpty(env.Errors.Join(), env.Message, fallback)
		return newError(KindValidation, msg, nil)
	}
	return newError(KindServerRejected, firstNonEmpty(env.Message, fallback), nil)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
