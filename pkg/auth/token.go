package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token holds the OAuth2 tokens issued by the identity server. The zero value is an absent token;
// passing it to [Client.Valid] triggers a full login.
//
// Tokens serialize to the same JSON layout the identity server uses, so a session file written by
// an older client remains readable.
type Token struct {
	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	ExpiresAt    int64  `json:"expires_at,omitempty"`
}

// stampExpiry converts the relative expires_in returned by the token endpoint into an absolute
// expires_at timestamp. Tokens loaded from disk already carry expires_at and are left alone.
func (t *Token) stampExpiry(now time.Time) {
	if t.ExpiresAt == 0 && t.ExpiresIn != 0 {
		t.ExpiresAt = now.Unix() + t.ExpiresIn
	}
}

// Expired reports whether the access token is past (or within leeway of) its expiry. A token
// without an expiry timestamp is never considered expired; it is considered absent instead (see
// [Token.Usable]).
func (t *Token) Expired(leeway time.Duration) bool {
	if t.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > t.ExpiresAt-int64(leeway/time.Second)
}

// Usable reports whether the token can authorize an API call right now.
func (t *Token) Usable(leeway time.Duration) bool {
	return t.AccessToken != "" && t.ExpiresAt != 0 && !t.Expired(leeway)
}

// Subject returns the "sub" claim of the access token. The signature is not verified; the claim
// identifies which account a cached token belongs to, nothing more.
func (t *Token) Subject() (string, error) {
	if t.AccessToken == "" {
		return "", fmt.Errorf("no access token")
	}
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(t.AccessToken, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("malformed access token: %w", err)
	}
	subject, err := token.Claims.GetSubject()
	if err != nil {
		return "", fmt.Errorf("access token has no subject: %w", err)
	}
	return subject, nil
}
