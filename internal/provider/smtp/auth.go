package smtp

import (
	"crypto/hmac"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"

	"github.com/shineum/postmail/internal/config"
)

var errUnsupportedAuth = errors.New("unsupported smtp authentication")

// saslClient returns the SASL client for the configured mechanism.
// An unset mechanism behaves like login.
func saslClient(mech config.Authentication, username, password string) (sasl.Client, error) {
	switch mech {
	case config.AuthPlain:
		return sasl.NewPlainClient("", username, password), nil
	case config.AuthLogin, "":
		return sasl.NewLoginClient(username, password), nil
	case config.AuthCRAMMD5:
		return &cramMD5Client{username: username, secret: password}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedAuth, string(mech))
	}
}

// cramMD5Client implements the CRAM-MD5 mechanism (RFC 2195), which go-sasl
// does not ship.
type cramMD5Client struct {
	username string
	secret   string
}

func (a *cramMD5Client) Start() (mech string, ir []byte, err error) {
	return "CRAM-MD5", nil, nil
}

func (a *cramMD5Client) Next(challenge []byte) ([]byte, error) {
	d := hmac.New(md5.New, []byte(a.secret))
	d.Write(challenge)
	return []byte(a.username + " " + hex.EncodeToString(d.Sum(nil))), nil
}
