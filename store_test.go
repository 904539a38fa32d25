package talyn_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	talyn "github.com/talyn-hq/go-talyn"
)

// fakeBackend is a scriptable gateway server for store tests.
type fakeBackend struct {
	mux      *http.ServeMux
	requests atomic.Int64
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{mux: http.NewServeMux()}
}

func (b *fakeBackend) handle(path string, handler http.HandlerFunc) {
	b.mux.HandleFunc(path, handler)
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.requests.Add(1)
	b.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func newTestStore(t *testing.T, backend *fakeBackend) (*talyn.Store, *talyn.MemoryTokenStore, *recordingSink) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	tokens := talyn.NewMemoryTokenStore()
	sink := &recordingSink{}
	store := talyn.NewStore(talyn.SimpleConfig{BaseURL: srv.URL}, tokens).
		WithActivitySink(sink)
	return store, tokens, sink
}

func meResponse(role talyn.Role, onboarded bool) map[string]any {
	return map[string]any{
		"success": true,
		"data": map[string]any{
			"user": map[string]any{"id": "u1", "email": "boss@acme.io"},
			"profile": map[string]any{
				"id":                   "p1",
				"user_id":              "u1",
				"role":                 role,
				"onboarding_completed": onboarded,
			},
		},
	}
}

func TestLoginPopulatesSessionAndPersistsToken(t *testing.T) {
	token := mintTokenExpiring(t, time.Hour)

	backend := newFakeBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var req talyn.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "boss@acme.io", req.Email)
		assert.Equal(t, talyn.RoleEmployer, req.ExpectedRole)

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token":       token,
				"redirect_to": "/dashboard",
				"user":        map[string]any{"id": "u1", "email": req.Email},
				"profile": map[string]any{
					"role":                 talyn.RoleEmployer,
					"onboarding_completed": true,
				},
			},
		})
	})

	store, tokens, sink := newTestStore(t, backend)

	result := store.Login(context.Background(), talyn.LoginRequest{
		Email:        "boss@acme.io",
		Password:     "hunter22!",
		ExpectedRole: talyn.RoleEmployer,
	})
	require.NoError(t, result.Error)
	assert.True(t, result.Success)
	assert.Equal(t, "/dashboard", result.RedirectTo)

	stored, ok := tokens.Get()
	require.True(t, ok)
	assert.Equal(t, token, stored)

	session := store.Session()
	assert.True(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	require.NotNil(t, session.User)
	assert.Equal(t, "u1", session.User.ID)
	role, ok := session.Role()
	require.True(t, ok)
	assert.Equal(t, talyn.RoleEmployer, role)

	assert.Contains(t, sink.Types(), talyn.ActivityEventLoginSuccess)
}

func TestLoginValidationSkipsNetwork(t *testing.T) {
	backend := newFakeBackend()
	store, tokens, _ := newTestStore(t, backend)

	result := store.Login(context.Background(), talyn.LoginRequest{Email: "not-an-email", Password: "x"})
	require.Error(t, result.Error)
	assert.False(t, result.Success)
	assert.Equal(t, int64(0), backend.requests.Load())

	_, ok := tokens.Get()
	assert.False(t, ok)
}

func TestLoginEmailNotVerifiedIsDistinguishable(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"error":   "Please verify your email before logging in",
			"code":    "email_not_verified",
		})
	})

	store, tokens, sink := newTestStore(t, backend)

	result := store.Login(context.Background(), talyn.LoginRequest{
		Email:    "new@acme.io",
		Password: "hunter22!",
	})
	require.Error(t, result.Error)
	assert.True(t, talyn.IsEmailNotVerifiedError(result.Error))
	assert.False(t, talyn.IsAuthenticationError(result.Error))

	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.Contains(t, sink.Types(), talyn.ActivityEventLoginFailure)
}

func TestLoginMissingTokenIsBadResponse(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, meResponse(talyn.RoleEmployer, true))
	})

	store, tokens, _ := newTestStore(t, backend)

	result := store.Login(context.Background(), talyn.LoginRequest{
		Email:    "boss@acme.io",
		Password: "hunter22!",
	})
	require.Error(t, result.Error)

	var rich *goerrors.Error
	require.True(t, goerrors.As(result.Error, &rich))
	assert.Equal(t, talyn.TextCodeBadResponse, rich.TextCode)

	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.False(t, store.Session().IsAuthenticated)
}

func TestSignUpDoesNotStartSession(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{
			"success": true,
			"data": map[string]any{
				"user": map[string]any{"id": "u9", "email": "new@acme.io"},
			},
		})
	})

	store, tokens, sink := newTestStore(t, backend)

	result := store.SignUp(context.Background(), talyn.SignUpRequest{
		Email:    "new@acme.io",
		Password: "longenough1",
		Metadata: talyn.SignUpMetadata{Role: talyn.RoleEmployer, CompanyName: "Acme"},
	})
	require.NoError(t, result.Error)
	assert.True(t, result.Success)
	require.NotNil(t, result.User)
	assert.Equal(t, "u9", result.User.ID)

	_, ok := tokens.Get()
	assert.False(t, ok, "registration must not persist a token")
	assert.False(t, store.Session().IsAuthenticated)
	assert.Contains(t, sink.Types(), talyn.ActivityEventSignUp)
}

func TestCheckAuthWithoutTokenSkipsNetwork(t *testing.T) {
	backend := newFakeBackend()
	store, _, _ := newTestStore(t, backend)

	store.CheckAuth(context.Background())

	assert.Equal(t, int64(0), backend.requests.Load())
	session := store.Session()
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
}

func TestCheckAuthExpiredTokenSkipsNetwork(t *testing.T) {
	backend := newFakeBackend()
	store, tokens, sink := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, -time.Minute)))

	store.CheckAuth(context.Background())

	assert.Equal(t, int64(0), backend.requests.Load(), "locally expired tokens must not hit the network")
	_, ok := tokens.Get()
	assert.False(t, ok, "expired token must be deleted")
	assert.False(t, store.Session().IsAuthenticated)
	assert.Contains(t, sink.Types(), talyn.ActivityEventSessionExpired)
}

func TestCheckAuthSuccess(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, meResponse(talyn.RoleCandidate, false))
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))

	store.CheckAuth(context.Background())

	session := store.Session()
	assert.True(t, session.IsAuthenticated)
	role, ok := session.Role()
	require.True(t, ok)
	assert.Equal(t, talyn.RoleCandidate, role)
}

func TestCheckAuthServerRejectionClearsEverything(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "Invalid token",
		})
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))

	store.CheckAuth(context.Background())

	_, ok := tokens.Get()
	assert.False(t, ok)
	assert.False(t, store.Session().IsAuthenticated)
}

func TestLogoutSurvivesServerFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token":   mintTokenExpiring(t, time.Hour),
				"user":    map[string]any{"id": "u1", "email": "boss@acme.io"},
				"profile": map[string]any{"role": talyn.RoleEmployer, "onboarding_completed": true},
			},
		})
	})
	backend.handle("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "session service unavailable",
		})
	})

	store, tokens, sink := newTestStore(t, backend)
	result := store.Login(context.Background(), talyn.LoginRequest{Email: "boss@acme.io", Password: "hunter22!"})
	require.NoError(t, result.Error)

	store.Logout(context.Background())

	_, ok := tokens.Get()
	assert.False(t, ok, "token must be gone even when the server call fails")
	assert.False(t, store.Session().IsAuthenticated)
	assert.Contains(t, sink.Types(), talyn.ActivityEventLogout)
}

func TestHardAuthFailureForcesLogout(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"token":   mintTokenExpiring(t, time.Hour),
				"user":    map[string]any{"id": "u1", "email": "boss@acme.io"},
				"profile": map[string]any{"role": talyn.RoleEmployer, "onboarding_completed": true},
			},
		})
	})
	backend.handle("/payroll/runs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "jwt expired",
		})
	})

	store, tokens, sink := newTestStore(t, backend)
	result := store.Login(context.Background(), talyn.LoginRequest{Email: "boss@acme.io", Password: "hunter22!"})
	require.NoError(t, result.Error)

	err := store.Client().Get(context.Background(), "payroll/runs", nil)
	require.Error(t, err)
	assert.True(t, talyn.IsAuthenticationError(err))

	_, ok := tokens.Get()
	assert.False(t, ok)
	session := store.Session()
	assert.False(t, session.IsAuthenticated)
	assert.ErrorIs(t, session.Err, talyn.ErrSessionExpired)
	assert.Contains(t, sink.Types(), talyn.ActivityEventSessionExpired)
}

func TestAcceptInvitation(t *testing.T) {
	var accepts atomic.Int64
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":    map[string]any{"id": "u2", "email": "worker@acme.io"},
				"profile": map[string]any{"role": talyn.RoleCandidate},
				"pending_invitations": []map[string]any{
					{"member_id": "m1", "organization_name": "Acme"},
					{"member_id": "m2", "organization_name": "Globex"},
				},
			},
		})
	})
	backend.handle("/invitations/m1/accept", func(w http.ResponseWriter, r *http.Request) {
		if accepts.Add(1) > 1 {
			writeJSON(w, http.StatusConflict, map[string]any{
				"success": false,
				"error":   "Invitation already accepted",
				"code":    "invitation_already_accepted",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"organization": map[string]any{"id": "o1", "name": "Acme"},
				"membership":   map[string]any{"id": "m1", "job_title": "Engineer"},
			},
		})
	})

	store, tokens, sink := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))
	store.CheckAuth(context.Background())
	require.Len(t, store.Session().PendingInvitations(), 2)

	result := store.AcceptInvitation(context.Background(), "m1")
	require.NoError(t, result.Error)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyAccepted)
	require.NotNil(t, result.Organization)
	assert.Equal(t, "Acme", result.Organization.Name)

	session := store.Session()
	org, ok := session.Organization()
	require.True(t, ok)
	assert.Equal(t, "o1", org.ID)
	assert.Empty(t, session.PendingInvitations(), "accept clears every pending invitation")
	assert.Contains(t, sink.Types(), talyn.ActivityEventInvitationAccepted)

	// duplicate call hits the already-accepted rejection and still succeeds
	again := store.AcceptInvitation(context.Background(), "m1")
	require.NoError(t, again.Error)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyAccepted)
}

func TestDeclineInvitationRemovesOnlyMatching(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":    map[string]any{"id": "u2", "email": "worker@acme.io"},
				"profile": map[string]any{"role": talyn.RoleCandidate},
				"pending_invitations": []map[string]any{
					{"member_id": "m1", "organization_name": "Acme"},
					{"member_id": "m2", "organization_name": "Globex"},
				},
			},
		})
	})
	backend.handle("/invitations/m1/decline", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))
	store.CheckAuth(context.Background())

	before := store.Session().PendingInvitations()
	require.Len(t, before, 2)

	result := store.DeclineInvitation(context.Background(), "m1")
	require.NoError(t, result.Error)

	remaining := store.Session().PendingInvitations()
	require.Len(t, remaining, 1)
	assert.Equal(t, "m2", remaining[0].MemberID)

	// the earlier snapshot keeps its own view of the world
	require.Len(t, before, 2)
	assert.Equal(t, "m1", before[0].MemberID)
	assert.Equal(t, "m2", before[1].MemberID)
}

func TestOnboardingRefetchIsAuthoritative(t *testing.T) {
	var step atomic.Int64
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		profile := map[string]any{
			"role":                 talyn.RoleEmployer,
			"onboarding_completed": step.Load() >= 2,
		}
		if step.Load() < 2 {
			profile["onboarding_step"] = step.Load() + 1
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"user":    map[string]any{"id": "u1", "email": "boss@acme.io"},
				"profile": profile,
			},
		})
	})
	backend.handle("/onboarding/employer/profile", func(w http.ResponseWriter, r *http.Request) {
		step.Store(1)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})
	backend.handle("/onboarding/employer/service", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "eor", body["service_type"])
		step.Store(2)
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))
	store.CheckAuth(context.Background())
	require.False(t, store.Session().OnboardingCompleted())

	result := store.CompleteOnboardingProfile(context.Background(), talyn.OnboardingProfileRequest{
		CompanyName: "Acme",
		Country:     "US",
	})
	require.NoError(t, result.Error)
	assert.False(t, store.Session().OnboardingCompleted(), "step one alone does not finish onboarding")
	require.NotNil(t, store.OnboardingStepHint())
	assert.Equal(t, 2, *store.OnboardingStepHint())

	result = store.CompleteOnboardingService(context.Background(), talyn.ServiceEOR)
	require.NoError(t, result.Error)
	assert.True(t, store.Session().OnboardingCompleted(), "refetched profile flips the flag")
	assert.Nil(t, store.OnboardingStepHint())
}

func TestCompleteOnboardingServiceRejectsUnknownType(t *testing.T) {
	backend := newFakeBackend()
	store, _, _ := newTestStore(t, backend)

	result := store.CompleteOnboardingService(context.Background(), talyn.ServiceType("consulting"))
	require.Error(t, result.Error)
	assert.Equal(t, int64(0), backend.requests.Load())
}

func TestUpdateProfileReplacesWholesale(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, meResponse(talyn.RoleEmployer, true))
	})
	backend.handle("/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"profile": map[string]any{
					"role":                 talyn.RoleEmployer,
					"first_name":           "Ada",
					"onboarding_completed": true,
				},
			},
		})
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))
	store.CheckAuth(context.Background())

	result := store.UpdateProfile(context.Background(), map[string]any{"first_name": "Ada"})
	require.NoError(t, result.Error)
	require.NotNil(t, result.Profile)
	assert.Equal(t, "Ada", result.Profile.FirstName)
	assert.Equal(t, "Ada", store.Session().Profile.FirstName)
}

func TestAccountFlows(t *testing.T) {
	backend := newFakeBackend()
	for _, path := range []string{
		"/auth/resend-verification",
		"/auth/verify-email",
		"/auth/forgot-password",
		"/auth/reset-password",
	} {
		backend.handle(path, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
	}
	backend.handle("/auth/check-email", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"available": body["email"] == "free@acme.io"},
		})
	})

	store, _, _ := newTestStore(t, backend)
	ctx := context.Background()

	assert.True(t, store.ResendVerification(ctx, "new@acme.io").Success)
	assert.True(t, store.VerifyEmail(ctx, "verify-token").Success)
	assert.True(t, store.ForgotPassword(ctx, "boss@acme.io").Success)
	assert.True(t, store.ResetPassword(ctx, "reset-token", "newpassword1").Success)

	available, err := store.CheckEmail(ctx, "free@acme.io")
	require.NoError(t, err)
	assert.True(t, available)

	available, err = store.CheckEmail(ctx, "taken@acme.io")
	require.NoError(t, err)
	assert.False(t, available)
}

func TestTransportFailurePreservesSession(t *testing.T) {
	backend := newFakeBackend()
	backend.handle("/auth/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, meResponse(talyn.RoleEmployer, true))
	})

	store, tokens, _ := newTestStore(t, backend)
	require.NoError(t, tokens.Set(mintTokenExpiring(t, time.Hour)))
	store.CheckAuth(context.Background())
	require.True(t, store.Session().IsAuthenticated)

	api := &MockAPI{}
	api.On("Post", mock.Anything, "onboarding/employer/service", mock.Anything, mock.Anything).
		Return(fmt.Errorf("dial tcp: connection refused"))
	store.WithAPI(api)

	result := store.CompleteOnboardingService(context.Background(), talyn.ServicePayroll)
	require.Error(t, result.Error)

	_, ok := tokens.Get()
	assert.True(t, ok, "network failures must not delete the token")
	assert.True(t, store.Session().IsAuthenticated)
	api.AssertExpectations(t)
}
