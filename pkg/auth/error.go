package auth

import "errors"

var (
	// ErrWrongCredentials indicates the identity server rejected the email or password.
	ErrWrongCredentials = errors.New("wrong credentials")

	// ErrNoAuthorizationCode indicates the login flow completed without the identity server
	// handing back an authorization code.
	ErrNoAuthorizationCode = errors.New("identity server did not return an authorization code")

	// ErrRefreshRejected indicates the refresh token is no longer valid and a full login is
	// required. [Client.Valid] handles this automatically.
	ErrRefreshRejected = errors.New("refresh token rejected")
)

// CaptchaError is returned by [Client.Login] when the identity server demands captcha
// verification before accepting credentials. Captcha holds an inline SVG image; present it to the
// user, then retry the login with [Client.SetCaptcha] using the solution and the returned State.
type CaptchaError struct {
	Captcha string
	State   string
}

func (e *CaptchaError) Error() string {
	return "captcha verification required"
}
