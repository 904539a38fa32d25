package talyn

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Store is the authoritative holder of session state. Every mutation funnels
// through its operations; page components read snapshots via Session().
//
// Construct one per application (or per test) with NewStore; there is no
// package-level singleton.
type Store struct {
	mu sync.Mutex

	api      API
	client   *Client
	tokens   TokenStore
	logger   Logger
	activity ActivitySink
	now      func() time.Time

	user          *User
	profile       *Profile
	affiliation   Affiliation
	authenticated bool
	loading       bool
	lastErr       error

	// local onboarding hint for immediate UI feedback; the route guard only
	// ever reads the fetched profile
	onboardingStep *int
}

// NewStore builds a Store and its gateway Client. The client's unauthorized
// handler is wired to the store's forced-logout transition here, at
// construction time, so neither side reaches for the other lazily.
func NewStore(cfg Config, tokens TokenStore) *Store {
	s := &Store{
		tokens:      tokens,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		affiliation: Unaffiliated{},
		now:         time.Now,
	}

	s.client = NewClient(cfg, tokens).WithUnauthorizedHandler(s.forceLogout)
	s.api = s.client

	return s
}

func (s *Store) WithLogger(logger Logger) *Store {
	if logger != nil {
		s.logger = logger
		if s.client != nil {
			s.client.WithLogger(logger)
		}
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting session events.
func (s *Store) WithActivitySink(sink ActivitySink) *Store {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithAPI swaps the gateway, mostly for tests.
func (s *Store) WithAPI(api API) *Store {
	if api != nil {
		s.api = api
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Store) WithClock(clock func() time.Time) *Store {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Client returns the gateway so callers can issue page-level requests
// through the same credential and failure handling.
func (s *Store) Client() *Client {
	return s.client
}

// Session returns an immutable snapshot of the current state.
func (s *Store) Session() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// mePayload is the identity shape shared by auth/me and auth/login.
type mePayload struct {
	User               User          `json:"user"`
	Profile            Profile       `json:"profile"`
	Organization       *Organization `json:"organization,omitempty"`
	Membership         *Membership   `json:"membership,omitempty"`
	PendingInvitations []Invitation  `json:"pending_invitations,omitempty"`
}

type loginPayload struct {
	mePayload
	Token      string `json:"token"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// CheckAuth reconciles the stored token with the server on boot or refresh.
// Without a token, or with a locally expired one, it clears the session and
// skips the network entirely. Otherwise the who-am-I endpoint is
// authoritative: any failure there deletes the token and clears the session.
func (s *Store) CheckAuth(ctx context.Context) {
	token, ok := s.tokens.Get()
	if !ok {
		s.clearSession(nil)
		return
	}

	if IsTokenExpired(token) {
		if err := s.tokens.Clear(); err != nil {
			s.logger.Warn("unable to clear expired token: %v", err)
		}
		s.clearSession(nil)
		s.emit(ctx, ActivityEventSessionExpired, "", nil)
		return
	}

	s.setLoading(true)
	defer s.setLoading(false)

	var payload mePayload
	if err := s.api.Get(ctx, "auth/me", &payload); err != nil {
		s.logger.Error("auth check failed: %v", err)
		if err := s.tokens.Clear(); err != nil {
			s.logger.Warn("unable to clear token: %v", err)
		}
		s.clearSession(nil)
		return
	}

	s.applyIdentity(payload)
}

// LoginResult is the outcome of a Login call.
type LoginResult struct {
	Success    bool
	User       *User
	Profile    *Profile
	RedirectTo string
	Error      error
}

// Login posts credentials plus the expected-role hint. On success the
// returned token is persisted and identity state populated exactly as a
// CheckAuth success would. Failures leave the persisted token untouched; an
// email-not-verified rejection keeps its server error code so UI can offer a
// resend action (see IsEmailNotVerifiedError).
func (s *Store) Login(ctx context.Context, req LoginRequest) LoginResult {
	if err := req.Validate(); err != nil {
		return LoginResult{Error: errors.Wrap(err, errors.CategoryValidation, "invalid login payload")}
	}

	s.setLoading(true)
	defer s.setLoading(false)

	var payload loginPayload
	if err := s.api.Post(ctx, "auth/login", req, &payload); err != nil {
		s.setError(err)
		s.emit(ctx, ActivityEventLoginFailure, "", map[string]any{
			"email": req.Email,
			"error": err.Error(),
		})
		return LoginResult{Error: err}
	}

	if payload.Token == "" {
		err := errors.New("login response missing token", ErrBadResponse.Category).
			WithTextCode(ErrBadResponse.TextCode)
		s.setError(err)
		return LoginResult{Error: err}
	}

	if err := s.tokens.Set(payload.Token); err != nil {
		s.setError(err)
		return LoginResult{Error: err}
	}

	s.applyIdentity(payload.mePayload)
	s.emit(ctx, ActivityEventLoginSuccess, payload.User.ID, map[string]any{
		"email": req.Email,
		"role":  string(payload.Profile.Role),
	})

	snap := s.Session()
	return LoginResult{
		Success:    true,
		User:       snap.User,
		Profile:    snap.Profile,
		RedirectTo: payload.RedirectTo,
	}
}

// SignUpResult is the outcome of a SignUp call.
type SignUpResult struct {
	Success bool
	User    *User
	Error   error
}

// SignUp posts a registration. The server requires email verification before
// a session can start, so no token is persisted and IsAuthenticated stays
// false.
func (s *Store) SignUp(ctx context.Context, req SignUpRequest) SignUpResult {
	if err := req.Validate(); err != nil {
		return SignUpResult{Error: errors.Wrap(err, errors.CategoryValidation, "invalid signup payload")}
	}

	s.setLoading(true)
	defer s.setLoading(false)

	var payload struct {
		User User `json:"user"`
	}
	if err := s.api.Post(ctx, "auth/signup", req, &payload); err != nil {
		s.setError(err)
		return SignUpResult{Error: err}
	}

	s.emit(ctx, ActivityEventSignUp, payload.User.ID, map[string]any{"email": req.Email})

	user := payload.User
	return SignUpResult{Success: true, User: &user}
}

// Logout clears local state and deletes the token before any network
// traffic. The server-side invalidation is best-effort: its failure is
// logged and swallowed, so local logout always succeeds.
func (s *Store) Logout(ctx context.Context) {
	userID := ""
	if snap := s.Session(); snap.User != nil {
		userID = snap.User.ID
	}

	s.clearSession(nil)
	if err := s.tokens.Clear(); err != nil {
		s.logger.Warn("unable to clear token on logout: %v", err)
	}

	if err := s.api.Post(ctx, "auth/logout", nil, nil); err != nil {
		s.logger.Debug("server-side logout failed: %v", err)
	}

	s.emit(ctx, ActivityEventLogout, userID, nil)
}

// forceLogout is the transition run by the gateway after a hard
// authentication failure. The token is already gone; only local state needs
// clearing, and no server call is made, so it can never loop back through
// the gateway.
func (s *Store) forceLogout(ctx context.Context) {
	s.clearSession(ErrSessionExpired)
	s.emit(ctx, ActivityEventSessionExpired, "", nil)
}

type invitationPayload struct {
	Organization *Organization `json:"organization,omitempty"`
	Membership   *Membership   `json:"membership,omitempty"`
}

// AcceptInvitationResult is the outcome of an AcceptInvitation call.
type AcceptInvitationResult struct {
	Success         bool
	AlreadyAccepted bool
	Organization    *Organization
	Membership      *Membership
	Error           error
}

// AcceptInvitation accepts a pending membership. On success the returned
// organization and membership replace the affiliation and every pending
// invitation is cleared in the same transition. A server rejection saying
// the invitation was already accepted counts as success, which makes a
// duplicate call for the same memberID harmless.
func (s *Store) AcceptInvitation(ctx context.Context, memberID string) AcceptInvitationResult {
	var payload invitationPayload
	if err := s.api.Post(ctx, "invitations/"+memberID+"/accept", nil, &payload); err != nil {
		if IsAlreadyAcceptedError(err) {
			s.clearInvitations()
			return AcceptInvitationResult{Success: true, AlreadyAccepted: true}
		}
		return AcceptInvitationResult{Error: err}
	}

	if payload.Membership == nil || payload.Organization == nil {
		return AcceptInvitationResult{Error: errors.New("accept response missing membership", ErrBadResponse.Category).
			WithTextCode(ErrBadResponse.TextCode)}
	}

	s.setAffiliation(Affiliated{
		Organization: *payload.Organization,
		Membership:   *payload.Membership,
	})
	s.emit(ctx, ActivityEventInvitationAccepted, "", map[string]any{
		"member_id":    memberID,
		"organization": payload.Organization.Name,
	})

	return AcceptInvitationResult{
		Success:      true,
		Organization: payload.Organization,
		Membership:   payload.Membership,
	}
}

// DeclineInvitationResult is the outcome of a DeclineInvitation call.
type DeclineInvitationResult struct {
	Success bool
	Error   error
}

// DeclineInvitation declines a pending membership and removes only the
// matching entry from the local list; no refetch.
func (s *Store) DeclineInvitation(ctx context.Context, memberID string) DeclineInvitationResult {
	if err := s.api.Post(ctx, "invitations/"+memberID+"/decline", nil, nil); err != nil {
		return DeclineInvitationResult{Error: err}
	}

	s.removeInvitation(memberID)
	s.emit(ctx, ActivityEventInvitationDeclined, "", map[string]any{"member_id": memberID})

	return DeclineInvitationResult{Success: true}
}

// OnboardingResult is the outcome of an onboarding step call.
type OnboardingResult struct {
	Success bool
	Error   error
}

// CompleteOnboardingProfile posts employer onboarding step one, then
// refetches the profile so the server-computed onboarding state wins. The
// locally advanced step is only a hint for immediate UI feedback.
func (s *Store) CompleteOnboardingProfile(ctx context.Context, req OnboardingProfileRequest) OnboardingResult {
	if err := req.Validate(); err != nil {
		return OnboardingResult{Error: errors.Wrap(err, errors.CategoryValidation, "invalid onboarding payload")}
	}

	if err := s.api.Post(ctx, "onboarding/employer/profile", req, nil); err != nil {
		return OnboardingResult{Error: err}
	}

	step := 2
	s.setOnboardingStep(&step)
	s.refreshProfile(ctx)
	s.emit(ctx, ActivityEventOnboardingStep, "", map[string]any{"step": "profile"})

	return OnboardingResult{Success: true}
}

// CompleteOnboardingService posts employer onboarding step two, then
// refetches the profile.
func (s *Store) CompleteOnboardingService(ctx context.Context, service ServiceType) OnboardingResult {
	if !service.IsValid() {
		return OnboardingResult{Error: errors.New("unknown service type", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)}
	}

	body := map[string]any{"service_type": service}
	if err := s.api.Post(ctx, "onboarding/employer/service", body, nil); err != nil {
		return OnboardingResult{Error: err}
	}

	s.setOnboardingStep(nil)
	s.refreshProfile(ctx)
	s.emit(ctx, ActivityEventOnboardingStep, "", map[string]any{"step": "service"})

	return OnboardingResult{Success: true}
}

// UpdateProfileResult is the outcome of an UpdateProfile call.
type UpdateProfileResult struct {
	Success bool
	Profile *Profile
	Error   error
}

// UpdateProfile mutates the profile and replaces the local copy wholesale
// with the server's returned representation; no partial merge.
func (s *Store) UpdateProfile(ctx context.Context, data map[string]any) UpdateProfileResult {
	var payload struct {
		Profile Profile `json:"profile"`
	}
	if err := s.api.Patch(ctx, "auth/profile", data, &payload); err != nil {
		return UpdateProfileResult{Error: err}
	}

	s.setProfile(payload.Profile)

	profile := payload.Profile
	return UpdateProfileResult{Success: true, Profile: &profile}
}

// Result is the outcome of the fire-and-forget account operations.
type Result struct {
	Success bool
	Error   error
}

// ResendVerification asks the server to send a fresh verification email.
func (s *Store) ResendVerification(ctx context.Context, email string) Result {
	body := map[string]any{"email": email}
	if err := s.api.Post(ctx, "auth/resend-verification", body, nil); err != nil {
		return Result{Error: err}
	}
	return Result{Success: true}
}

// VerifyEmail redeems an email verification token. It does not start a
// session; the caller still logs in afterwards.
func (s *Store) VerifyEmail(ctx context.Context, token string) Result {
	body := map[string]any{"token": token}
	if err := s.api.Post(ctx, "auth/verify-email", body, nil); err != nil {
		return Result{Error: err}
	}
	return Result{Success: true}
}

// ForgotPassword starts the password reset flow for email.
func (s *Store) ForgotPassword(ctx context.Context, email string) Result {
	body := map[string]any{"email": email}
	if err := s.api.Post(ctx, "auth/forgot-password", body, nil); err != nil {
		return Result{Error: err}
	}
	return Result{Success: true}
}

// ResetPassword redeems a reset token with the new password.
func (s *Store) ResetPassword(ctx context.Context, token, password string) Result {
	body := map[string]any{"token": token, "password": password}
	if err := s.api.Post(ctx, "auth/reset-password", body, nil); err != nil {
		return Result{Error: err}
	}
	return Result{Success: true}
}

// CheckEmail probes whether an email address is free to register.
func (s *Store) CheckEmail(ctx context.Context, email string) (bool, error) {
	var payload struct {
		Available bool `json:"available"`
	}
	body := map[string]any{"email": email}
	if err := s.api.Post(ctx, "auth/check-email", body, &payload); err != nil {
		return false, err
	}
	return payload.Available, nil
}

// refreshProfile refetches auth/me so server-computed onboarding state is
// the source of truth. Failures are logged; the next CheckAuth heals.
func (s *Store) refreshProfile(ctx context.Context) {
	var payload mePayload
	if err := s.api.Get(ctx, "auth/me", &payload); err != nil {
		s.logger.Warn("profile refresh failed: %v", err)
		return
	}
	s.applyIdentity(payload)
}

// --- state mutation, all under the lock ---

func (s *Store) applyIdentity(payload mePayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := payload.User
	profile := payload.Profile
	s.user = &user
	s.profile = &profile

	if payload.Organization != nil && payload.Membership != nil {
		s.affiliation = Affiliated{
			Organization: *payload.Organization,
			Membership:   *payload.Membership,
		}
	} else {
		s.affiliation = Unaffiliated{PendingInvitations: payload.PendingInvitations}
	}

	s.onboardingStep = profile.OnboardingStep
	s.authenticated = true
	s.lastErr = nil
}

func (s *Store) clearSession(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.profile = nil
	s.affiliation = Unaffiliated{}
	s.onboardingStep = nil
	s.authenticated = false
	s.lastErr = err
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = loading
}

func (s *Store) setError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func (s *Store) setAffiliation(aff Affiliated) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affiliation = aff
}

func (s *Store) clearInvitations() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.affiliation.(Unaffiliated); ok {
		s.affiliation = Unaffiliated{}
	}
}

func (s *Store) removeInvitation(memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	unaff, ok := s.affiliation.(Unaffiliated)
	if !ok {
		return
	}

	// fresh slice; filtering in place would rewrite the backing array shared
	// with previously returned snapshots
	kept := make([]Invitation, 0, len(unaff.PendingInvitations))
	for _, inv := range unaff.PendingInvitations {
		if inv.MemberID != memberID {
			kept = append(kept, inv)
		}
	}
	s.affiliation = Unaffiliated{PendingInvitations: kept}
}

func (s *Store) setProfile(profile Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = &profile
}

func (s *Store) setOnboardingStep(step *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboardingStep = step
}

func (s *Store) snapshotLocked() Session {
	return Session{
		User:            s.user,
		Profile:         s.profile,
		Affiliation:     s.affiliation,
		IsAuthenticated: s.authenticated,
		IsLoading:       s.loading,
		Err:             s.lastErr,
	}
}

// OnboardingStepHint returns the optimistic local step indicator. UI may
// display it; the route guard must not consult it.
func (s *Store) OnboardingStepHint() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onboardingStep
}

func (s *Store) emit(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		ID:         uuid.New(),
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	sink := normalizeActivitySink(s.activity)
	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
