// Package session holds the process-wide authentication state of the client.
package session

import "sync"

// Credentials is the in-memory view of the signed-in session.
type Credentials struct {
	// AccessToken is the short-lived bearer token attached to API calls.
	AccessToken string
	// RefreshToken mirrors the token kept in durable storage. The refresh flow
	// always reads the durable copy.
	RefreshToken string
	// IsAuthenticated is true between a login and a logout.
	IsAuthenticated bool
}

// User is the cached profile of the signed-in user.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Campus    string `json:"campus,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Session is safe for concurrent use.
type Session struct {
	mu    sync.RWMutex // protects the below fields
	creds Credentials
	user  *User
	// generation changes on every login and logout.
	generation uint64
}

// New returns a signed-out session.
func New() *Session {
	return &Session{}
}

// Credentials returns a copy of the current credentials.
func (s *Session) Credentials() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

// AccessToken returns the access token and whether it can be used for requests.
func (s *Session) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken, s.creds.IsAuthenticated && s.creds.AccessToken != ""
}

// IsAuthenticated reports whether the user is signed in.
func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.IsAuthenticated
}

// Generation identifies the current login. It changes whenever the session
// logs in or out.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// SetAccessTokenIf replaces the access token after a refresh, unless the
// session logged in or out since generation was read. It never changes the
// authenticated flag and reports whether the token was stored.
func (s *Session) SetAccessTokenIf(token string, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != generation {
		return false
	}
	s.creds.AccessToken = token
	return true
}

// Login stores fresh credentials and the signed-in user.
func (s *Session) Login(creds Credentials, user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds.IsAuthenticated = true
	s.creds = creds
	s.user = user
	s.generation++
}

// SetUser replaces the cached user.
func (s *Session) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
}

// User returns the cached user, nil when signed out or not yet loaded.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// Logout clears credentials and the cached user. It returns true if the
// session was signed in.
func (s *Session) Logout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasAuthenticated := s.creds.IsAuthenticated
	s.creds = Credentials{}
	s.user = nil
	s.generation++
	return wasAuthenticated
}
