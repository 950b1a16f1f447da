package voting

import (
	"context"
	"net/http"
	"strconv"

	"ballotkey.org/internal/audit"
	"ballotkey.org/internal/backend"
	"ballotkey.org/internal/credstore"
	"ballotkey.org/internal/obs"
)

const (
	promptRegister = "Authenticate to register as a voter"
	promptVote     = "Authenticate to cast your vote"
)

// RegisterAsVoter runs the biometric challenge, mints a device token and
// registers it with the backend. The token is kept only once the backend
// accepts it.
func (m *Machine) RegisterAsVoter(ctx context.Context) (err error) {
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.observe("register_voter", err) }()

	st := m.view()
	if st.user == nil {
		return newError(KindPreconditionFailed, msgLoginRequired, nil)
	}
	if st.voterStatus != nil && st.voterStatus.IsRegistered {
		return newError(KindPreconditionFailed, msgAlreadyRegistered, nil)
	}
	ctx = audit.WithUserID(ctx, strconv.FormatInt(st.user.ID, 10))

	m.update(func(s *state) { s.registering = true })
	defer m.update(func(s *state) { s.registering = false })

	if err := m.authorizeDevice(ctx, promptRegister); err != nil {
		_ = audit.LogEvent(ctx, "voter.register.failed", map[string]any{"kind": string(err.Kind)})
		return err
	}

	token := m.mintToken()
	resp, callErr := m.backend.Call(ctx, http.MethodPost, backend.PathVoterRegister, map[string]string{
		"biometric_token": token,
	})
	if e := m.checkVoterResponse(ctx, "register_voter", resp, callErr, msgVoterRegFailed); e != nil {
		_ = audit.LogEvent(ctx, "voter.register.failed", map[string]any{"kind": string(e.Kind)})
		return e
	}

	if err := m.store.Set(ctx, credstore.KeyBiometricToken, token); err != nil {
		obs.Error("failed to store biometric token", map[string]any{"error": err})
		return newError(KindStoreUnavailable, msgVoterTokenNotSaved, err)
	}
	m.update(func(s *state) {
		s.biometricToken = token
		s.biometricOwner = st.user.ID
	})
	_ = audit.LogEvent(ctx, "voter.registered", nil)

	m.refreshStatusBestEffort(ctx, "register_voter")
	return nil
}

// CastVote submits one vote. All local checks run before the biometric
// prompt, and the prompt runs before any request.
func (m *Machine) CastVote(ctx context.Context, candidateID int64) (err error) {
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.observe("cast_vote", err) }()

	st := m.view()
	if st.biometricToken == "" {
		return newError(KindPreconditionFailed, msgRegisterFirst, nil)
	}
	if st.user == nil {
		return newError(KindPreconditionFailed, msgLoginRequired, nil)
	}
	if st.voted || (st.voterStatus != nil && st.voterStatus.HasVoted) {
		return newError(KindPreconditionFailed, msgAlreadyVoted, nil)
	}
	if candidateID <= 0 {
		return newError(KindValidation, msgChooseCandidate, nil)
	}
	ctx = audit.WithUserID(ctx, strconv.FormatInt(st.user.ID, 10))

	m.update(func(s *state) { s.voting = true })
	defer m.update(func(s *state) { s.voting = false })

	if err := m.authorizeDevice(ctx, promptVote); err != nil {
		_ = audit.LogEvent(ctx, "vote.rejected", map[string]any{"kind": string(err.Kind)})
		return err
	}

	resp, callErr := m.backend.Call(ctx, http.MethodPost, backend.PathVote, map[string]any{
		"candidate_id":    candidateID,
		"biometric_token": st.biometricToken,
	})
	if e := m.checkVoterResponse(ctx, "cast_vote", resp, callErr, msgVoteFailed); e != nil {
		_ = audit.LogEvent(ctx, "vote.rejected", map[string]any{"kind": string(e.Kind), "candidate_id": candidateID})
		if e.Kind == KindServerRejected || e.Kind == KindValidation {
			// A duplicate vote is refused server side; learn about it.
			m.refreshStatusBestEffort(ctx, "cast_vote")
		}
		return e
	}

	m.update(func(s *state) { s.voted = true })
	_ = audit.LogEvent(ctx, "vote.cast", map[string]any{"candidate_id": candidateID})

	m.refreshStatusBestEffort(ctx, "cast_vote")
	return nil
}

// RefreshVoterStatus re-fetches the voter status for the current session.
func (m *Machine) RefreshVoterStatus(ctx context.Context) (status VoterStatus, err error) {
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.observe("refresh_status", err) }()

	if m.view().user == nil {
		return VoterStatus{}, newError(KindPreconditionFailed, msgLoginRequired, nil)
	}
	fetched, err := m.fetchVoterStatus(ctx)
	if err != nil {
		if KindOf(err) == KindAuth {
			m.dropSession(ctx, "refresh_status")
		}
		return VoterStatus{}, err
	}
	m.update(func(s *state) { s.voterStatus = fetched })
	return *fetched.clone(), nil
}

// Candidates lists the candidates a vote may go to.
func (m *Machine) Candidates(ctx context.Context) (list []Candidate, err error) {
	// A 401 here drops the session, so it queues behind other operations.
	m.op.Lock()
	defer m.op.Unlock()
	defer func() { m.observe("candidates", err) }()

	if m.view().user == nil {
		return nil, newError(KindPreconditionFailed, msgLoginRequired, nil)
	}
	resp, err := m.backend.Call(ctx, http.MethodGet, backend.PathCandidates, nil)
	if err != nil {
		return nil, callError(err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		m.dropSession(ctx, "candidates")
		return nil, newError(KindAuth, msgSessionExpired, nil)
	}
	env, _ := resp.Envelope()
	if !resp.OK() {
		return nil, rejection(resp, env, msgCandidatesFailed)
	}
	if err := resp.Object(&list); err != nil {
		return nil, newError(KindServerRejected, msgCandidatesFailed, err)
	}
	return list, nil
}

// authorizeDevice runs the capability check and then the challenge.
func (m *Machine) authorizeDevice(ctx context.Context, prompt string) *Error {
	support := m.gate.CheckSupport(ctx)
	if !support.Available {
		return newError(KindBiometricUnavailable, firstNonEmpty(support.Reason, msgBiometricMissing), nil)
	}
	if !m.gate.Challenge(ctx, prompt) {
		return newError(KindBiometricRejected, msgBiometricFailed, nil)
	}
	return nil
}

// checkVoterResponse maps the outcome of a voter endpoint call. A 401 drops
// the in-memory session.
func (m *Machine) checkVoterResponse(ctx context.Context, op string, resp *backend.Response, callErr error, fallback string) *Error {
	if callErr != nil {
		return callError(callErr)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		m.dropSession(ctx, op)
		return newError(KindAuth, msgSessionExpired, nil)
	}
	env, _ := resp.Envelope()
	if !resp.OK() || !env.Success {
		return rejection(resp, env, fallback)
	}
	return nil
}
