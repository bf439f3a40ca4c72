// Package guard gates views behind authentication and role membership.
// Advisory only: the backend independently enforces authorization on
// every endpoint; the guard just keeps users off dead pages.
package guard

// Session is the slice of session state the guard reads.
type Session interface {
	IsLoading() bool
	IsAuthenticated() bool
	HasRole(role string) bool
}

// Decision is the guard's verdict for a requested view.
type Decision int

const (
	// Loading: session restoration has not resolved; show a neutral
	// loading state, make no redirect decision yet.
	Loading Decision = iota
	// Allow: render the requested view.
	Allow
	// RedirectLogin: not authenticated; go to the login view.
	RedirectLogin
	// RedirectHome: authenticated but the role is not allowed; go to the
	// default authenticated landing view, not back to login.
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	default:
		return "unknown"
	}
}

// Result carries the decision plus, for login redirects, the originally
// requested location so a future "return to" flow can resume it.
type Result struct {
	Decision Decision
	From     string
}

// Decide gates the view at location behind the allowed-role set. An empty
// set admits any authenticated user.
func Decide(s Session, location string, allowedRoles ...string) Result {
	if s.IsLoading() {
		return Result{Decision: Loading}
	}
	if !s.IsAuthenticated() {
		return Result{Decision: RedirectLogin, From: location}
	}
	if len(allowedRoles) == 0 {
		return Result{Decision: Allow}
	}
	for _, role := range allowedRoles {
		if s.HasRole(role) {
			return Result{Decision: Allow}
		}
	}
	return Result{Decision: RedirectHome}
}
