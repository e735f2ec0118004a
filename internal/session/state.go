// Package session holds the client's belief about the current user:
// whether they are authenticated, who they are, and which tokens back
// that belief. State is mutated only through named events applied by a
// pure transition function; all I/O lives in the auth manager.
package session

import "github.com/fieldsense/waterline/internal/token"

// User is the identity projected from the backend or decoded from an
// identity token. It is replaced wholesale on each successful login or
// refresh, never mutated in place.
type User struct {
	Sub        string   `json:"sub"`
	Email      string   `json:"email"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Username   string   `json:"username,omitempty"`
	Groups     []string `json:"groups"`
	TokenUse   string   `json:"token_use,omitempty"`
	ClientID   string   `json:"client_id,omitempty"`
}

// State is a snapshot of the session. Exactly one lives per process,
// owned by a Store.
type State struct {
	Authenticated bool
	User          *User
	Loading       bool
	Err           string
	Tokens        *token.Set
}

// Initial returns the state before the initialization probe resolves.
func Initial() State {
	return State{Loading: true}
}

// Event is a named session transition. The concrete types below form a
// closed set; Apply is total over it.
type Event interface {
	isEvent()
}

// Started marks the beginning of a login, signup or refresh call.
type Started struct{}

// Succeeded carries the identity and tokens of a successful login or a
// session restore that found valid credentials. Tokens is nil in
// cookie-session mode where the browser artifact is inaccessible.
type Succeeded struct {
	User   *User
	Tokens *token.Set
}

// Failed settles the session as unauthenticated with a displayable
// message. The message is empty for silent failures such as "no
// session found" during initialization.
type Failed struct {
	Message string
}

// LoggedOut clears the session after an explicit logout.
type LoggedOut struct{}

// ErrorCleared drops the error message, preserving everything else.
type ErrorCleared struct{}

// Completed ends a flow that intentionally does not authenticate the
// user, such as signup or signup confirmation.
type Completed struct{}

func (Started) isEvent()      {}
func (Succeeded) isEvent()    {}
func (Failed) isEvent()       {}
func (LoggedOut) isEvent()    {}
func (ErrorCleared) isEvent() {}
func (Completed) isEvent()    {}

// Apply is the single transition function. It is pure and total: every
// event resolves to a well-formed state and nothing here can fail.
func Apply(s State, ev Event) State {
	switch ev := ev.(type) {
	case Started:
		s.Loading = true
		s.Err = ""
	case Succeeded:
		s.Authenticated = true
		s.User = ev.User
		s.Tokens = ev.Tokens
		s.Loading = false
		s.Err = ""
	case Failed:
		s.Authenticated = false
		s.User = nil
		s.Tokens = nil
		s.Loading = false
		s.Err = ev.Message
	case LoggedOut:
		s.Authenticated = false
		s.User = nil
		s.Tokens = nil
		s.Loading = false
		s.Err = ""
	case ErrorCleared:
		s.Err = ""
	case Completed:
		s.Loading = false
		s.Err = ""
	}
	return s
}
