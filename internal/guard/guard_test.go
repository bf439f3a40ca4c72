package guard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeSession is a fixed-state Session.
type fakeSession struct {
	loading       bool
	authenticated bool
	roles         map[string]bool
}

func (f fakeSession) IsLoading() bool          { return f.loading }
func (f fakeSession) IsAuthenticated() bool    { return f.authenticated }
func (f fakeSession) HasRole(role string) bool { return f.roles[role] }

func TestDecide(t *testing.T) {
	loading := fakeSession{loading: true}
	anonymous := fakeSession{}
	employee := fakeSession{authenticated: true, roles: map[string]bool{"employee": true}}
	manager := fakeSession{authenticated: true, roles: map[string]bool{"employee": true, "manager": true}}
	finance := fakeSession{authenticated: true, roles: map[string]bool{"employee": true, "finance": true}}

	tests := []struct {
		name     string
		session  Session
		location string
		roles    []string
		want     Decision
		wantFrom string
	}{
		{
			name:     "loading session defers the decision",
			session:  loading,
			location: "/bills/pending",
			roles:    []string{"manager"},
			want:     Loading,
		},
		{
			name:     "unauthenticated goes to login with origin",
			session:  anonymous,
			location: "/bills/pending",
			roles:    []string{"manager"},
			want:     RedirectLogin,
			wantFrom: "/bills/pending",
		},
		{
			name:     "unauthenticated redirects even for open views",
			session:  anonymous,
			location: "/dashboard",
			want:     RedirectLogin,
			wantFrom: "/dashboard",
		},
		{
			name:     "empty role set admits any authenticated user",
			session:  employee,
			location: "/dashboard",
			want:     Allow,
		},
		{
			name:     "matching role allowed",
			session:  manager,
			location: "/bills/pending",
			roles:    []string{"manager"},
			want:     Allow,
		},
		{
			name:     "any one of several roles suffices",
			session:  finance,
			location: "/bills/approved",
			roles:    []string{"finance", "admin"},
			want:     Allow,
		},
		{
			name:     "wrong role goes home, not to login",
			session:  employee,
			location: "/bills/pending",
			roles:    []string{"manager"},
			want:     RedirectHome,
		},
		{
			name:     "finance is not admin",
			session:  finance,
			location: "/users",
			roles:    []string{"admin"},
			want:     RedirectHome,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.session, tt.location, tt.roles...)
			assert.Equal(t, tt.want, got.Decision)
			assert.Equal(t, tt.wantFrom, got.From)
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "loading", Loading.String())
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "redirect-login", RedirectLogin.String())
	assert.Equal(t, "redirect-home", RedirectHome.String())
	assert.Equal(t, "unknown", Decision(42).String())
}
