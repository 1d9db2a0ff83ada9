package types

import "fmt"

// AuthError means we could not establish or keep a usable API session. The
// unattended path never auto-recovers from a missing refresh token; a human
// must perform an interactive login.
type AuthError struct {
	Msg string
	Err error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Msg, e.Err)
	}
	return "auth: " + e.Msg
}

func (e *AuthError) Unwrap() error { return e.Err }

// UpstreamError means the vendor cloud API was unreachable or returned a
// non-successful response.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// ConfigError means a persisted setting was malformed and could not be parsed
// into its expected type.
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("setting %q: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError means user input on a settings write was rejected. Inputs
// that can be corrected deterministically (like an out-of-range reserve) are
// clamped instead of rejected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}
