package models

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Credential is one row of the append-only youtube_credentials table. The
// Token column carries the full OAuth bundle (access token, refresh token,
// expiry) as the JSON document returned by Google's token endpoint.
type Credential struct {
	ID        int64
	UserRef   *string
	Token     string
	CreatedAt time.Time
}

// NewCredential serialises an OAuth token bundle into a credential record.
func NewCredential(token *oauth2.Token, userRef string) (Credential, error) {
	if token == nil {
		return Credential{}, fmt.Errorf("encode credential: token is nil")
	}

	raw, err := json.Marshal(token)
	if err != nil {
		return Credential{}, fmt.Errorf("encode credential: %w", err)
	}

	cred := Credential{
		Token:     string(raw),
		CreatedAt: time.Now().UTC(),
	}
	if userRef != "" {
		cred.UserRef = &userRef
	}
	return cred, nil
}

// DecodeToken parses the stored JSON bundle back into an OAuth token.
func (c Credential) DecodeToken() (*oauth2.Token, error) {
	var token oauth2.Token
	if err := json.Unmarshal([]byte(c.Token), &token); err != nil {
		return nil, fmt.Errorf("decode credential %d: %w", c.ID, err)
	}
	return &token, nil
}
