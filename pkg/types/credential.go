package types

import "time"

// Credential is the token triple used to talk to the vendor cloud API.
// The storage layer is the system of record; an in-memory copy is only valid
// for the duration of a single invocation.
type Credential struct {
	// RefreshToken is the long-lived token exchanged for new access tokens.
	RefreshToken string `json:"refreshToken"`
	// AccessToken is the short-lived bearer token attached to API calls.
	AccessToken string `json:"authToken"`
	// ExpiresAt is when AccessToken stops being usable.
	ExpiresAt time.Time `json:"tokenExpires"`
}

// Valid reports whether AccessToken can still be used at now. An access token
// is never used past its expiry.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && now.Before(c.ExpiresAt)
}
