// Package guard decides whether a view of the session may proceed.
// It is a pure function of the session state: the caller performs the
// actual redirect or renders the placeholder.
package guard

import "github.com/fieldsense/waterline/internal/session"

// DefaultLoginPath is where unauthenticated users are sent when a
// protected view requires authentication.
const DefaultLoginPath = "/auth/login"

// DefaultLandingPath is where authenticated users are sent away from
// views that forbid authentication, such as the login form.
const DefaultLandingPath = "/dashboard"

// Decision is the guard's verdict for the current session state.
type Decision int

const (
	// Wait means the session has not settled yet. Render a neutral
	// placeholder; never flash protected content before the check
	// resolves.
	Wait Decision = iota

	// Allow means the view may render.
	Allow

	// Redirect means the caller must navigate to Result.Target and
	// render nothing.
	Redirect
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Policy describes what a view requires of the session.
type Policy struct {
	// RequireAuth is true for protected views and false for views that
	// must not be shown to an authenticated user.
	RequireAuth bool

	// RedirectTo overrides the default redirect target for
	// unauthenticated users.
	RedirectTo string
}

// Result is the guard's verdict plus the redirect target when the
// decision is Redirect.
type Result struct {
	Decision Decision
	Target   string
}

// Evaluate applies the policy to a session snapshot. Once the session
// has settled, at most one redirect is produced.
func Evaluate(st session.State, p Policy) Result {
	if st.Loading {
		return Result{Decision: Wait}
	}

	if p.RequireAuth && !st.Authenticated {
		target := p.RedirectTo
		if target == "" {
			target = DefaultLoginPath
		}
		return Result{Decision: Redirect, Target: target}
	}

	if !p.RequireAuth && st.Authenticated {
		return Result{Decision: Redirect, Target: DefaultLandingPath}
	}

	return Result{Decision: Allow}
}
