package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/treestandk/wingman/internal/config"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

// dummyHash keeps the compare cost flat for unknown usernames so login
// timing does not reveal which usernames exist.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Authenticator verifies login credentials against provisioned users.
type Authenticator struct {
	users map[string]config.UserCredential
}

// NewAuthenticator indexes the configured users by username.
func NewAuthenticator(users []config.UserCredential) *Authenticator {
	indexed := make(map[string]config.UserCredential, len(users))
	for _, u := range users {
		indexed[u.Username] = u
	}
	return &Authenticator{users: indexed}
}

// Authenticate checks username/password and returns the caller identity.
func (a *Authenticator) Authenticate(username, password string) (Caller, error) {
	user, ok := a.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Caller{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Caller{}, ErrInvalidCredentials
	}
	return Caller{Username: user.Username, Role: user.Role}, nil
}
