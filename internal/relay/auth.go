package relay

import (
	"crypto/subtle"
	"errors"
)

var errInvalidCredentials = errors.New("invalid credentials")

// Authenticator checks relay credentials. It is disabled unless both a
// username and a password are configured.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator for the given credentials.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{username: username, password: password}
}

// Enabled reports whether clients must authenticate.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify compares the credentials in constant time.
func (a *Authenticator) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errInvalidCredentials
	}
	return nil
}
