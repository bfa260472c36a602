package youtube

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// AuthFlow builds Google consent URLs and exchanges authorization codes.
type AuthFlow struct {
	conf *oauth2.Config
}

// NewAuthFlow constructs an AuthFlow around the shared OAuth configuration.
func NewAuthFlow(conf *oauth2.Config) *AuthFlow {
	if conf == nil {
		panic("youtube: oauth config must not be nil")
	}
	return &AuthFlow{conf: conf}
}

// ConsentURL returns the Google consent page URL. Offline access and the
// prompt=consent parameter make Google issue a refresh token on every
// completed consent.
func (f *AuthFlow) ConsentURL() string {
	return f.conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode trades the authorization code returned on the redirect for a
// token bundle.
func (f *AuthFlow) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty authorization code", ErrInvalidInput)
	}

	token, err := f.conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return token, nil
}
