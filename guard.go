package talyn

// RoutePaths are the redirect targets the guard hands back.
type RoutePaths struct {
	Login              string
	EmployerOnboarding string
	EmployerDashboard  string
	EmployeeDashboard  string
}

// DefaultRoutePaths returns the product's standard navigation targets.
func DefaultRoutePaths() RoutePaths {
	return RoutePaths{
		Login:              "/login",
		EmployerOnboarding: "/onboarding/employer",
		EmployerDashboard:  "/dashboard",
		EmployeeDashboard:  "/employee/dashboard",
	}
}

// RouteConfig declares what a guarded route requires.
type RouteConfig struct {
	// AllowedRoles restricts the route to the listed roles. Empty means any
	// authenticated role.
	AllowedRoles []Role
	// RequireOnboarding gates employers on completed onboarding. Routes that
	// ARE the onboarding flow set it false, which also bounces employers who
	// already finished back to the dashboard.
	RequireOnboarding bool
}

// ProtectedRoute is the standard app route: onboarding required, optionally
// role-restricted.
func ProtectedRoute(roles ...Role) RouteConfig {
	return RouteConfig{AllowedRoles: roles, RequireOnboarding: true}
}

// OnboardingRoute is the employer onboarding flow itself.
func OnboardingRoute() RouteConfig {
	return RouteConfig{AllowedRoles: []Role{RoleEmployer}, RequireOnboarding: false}
}

// RouteOutcome is the guard's verdict kind.
type RouteOutcome int

const (
	// RouteWait means auth state is still loading; render a neutral waiting
	// state and make no redirect decision yet.
	RouteWait RouteOutcome = iota
	// RouteAllow renders the guarded content.
	RouteAllow
	// RouteRedirect sends the user to Decision.Target.
	RouteRedirect
)

// RouteDecision is the guard's verdict for one evaluation.
type RouteDecision struct {
	Outcome RouteOutcome
	Target  string
}

// RouteGuard is a pure function of session state and route configuration.
// It holds no state of its own beyond the target paths.
type RouteGuard struct {
	paths RoutePaths
}

var _ Guard = (*RouteGuard)(nil)

// NewRouteGuard builds a guard, optionally overriding the default paths.
func NewRouteGuard(paths ...RoutePaths) *RouteGuard {
	g := &RouteGuard{paths: DefaultRoutePaths()}
	if len(paths) > 0 {
		g.paths = paths[0]
	}
	return g
}

// Evaluate applies the gate in strict order: loading, then authentication,
// then employer onboarding, then role restriction. The ordering is
// load-bearing: an unauthenticated employer must see the login redirect, not
// an onboarding one, and a mid-onboarding employer must be sent to
// onboarding before any role mismatch is considered.
func (g *RouteGuard) Evaluate(session Session, cfg RouteConfig) RouteDecision {
	if session.IsLoading {
		return RouteDecision{Outcome: RouteWait}
	}

	if !session.IsAuthenticated {
		return g.redirect(g.paths.Login)
	}

	role, hasRole := session.Role()

	if role == RoleEmployer {
		completed := session.OnboardingCompleted()
		if cfg.RequireOnboarding && !completed {
			return g.redirect(g.paths.EmployerOnboarding)
		}
		if !cfg.RequireOnboarding && completed {
			// already onboarded; keep them out of the onboarding flow
			return g.redirect(g.paths.EmployerDashboard)
		}
	}

	if len(cfg.AllowedRoles) > 0 && hasRole && !roleAllowed(role, cfg.AllowedRoles) {
		if role == RoleEmployer {
			return g.redirect(g.paths.EmployerDashboard)
		}
		return g.redirect(g.paths.EmployeeDashboard)
	}

	return RouteDecision{Outcome: RouteAllow}
}

func (g *RouteGuard) redirect(target string) RouteDecision {
	return RouteDecision{Outcome: RouteRedirect, Target: target}
}

func roleAllowed(role Role, allowed []Role) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
