// Package auth implements the Porsche Connect login flow.
//
// The vendor's identity server uses an OAuth2 authorization-code grant fronted by an
// identifier-first web login. Obtaining a token takes between two and five requests: one request
// to /authorize when an identity-server session cookie already exists, four more on a cold start
// (submit email, submit password, resume the authorization request, exchange the code). The
// package only issues the documented requests; everything else about the handshake is
// vendor-controlled and subject to change.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/porsche-community/porsche-connect/internal/log"
)

const (
	AuthorizationServer = "identity.porsche.com"
	ClientID            = "XhygisuebbrqQ80byOuU5VncxLIm8E6H"
	XClientID           = "41843fb4-691d-4970-85c7-2673e8ecef40"
	RedirectURI         = "my-porsche-app://auth0/callback"
	Audience            = "https://api.porsche.com"
	Scope               = "openid profile email offline_access mbb ssodb badge vin dealers cars charging manageCharging plugAndCharge climatisation manageClimatisation pid:user_profile.porscheid:read pid:user_profile.name:read pid:user_profile.vehicles:read pid:user_profile.dealers:read pid:user_profile.emails:read pid:user_profile.phones:read pid:user_profile.addresses:read pid:user_profile.birthdate:read pid:user_profile.locale:read pid:user_profile.legal:read"

	// DefaultLeeway is how long before its actual expiry a token is treated as expired.
	DefaultLeeway = time.Minute

	requestTimeout = 90 * time.Second
)

// The identity server propagates login state asynchronously; resuming the authorization request
// immediately after the password step intermittently fails.
var loginSettleDelay = 2500 * time.Millisecond

var (
	authorizationURL = "https://" + AuthorizationServer + "/authorize"
	tokenURL         = "https://" + AuthorizationServer + "/oauth/token"

	// Captcha challenges arrive as an inline SVG in the identifier-step response body. The tag's
	// attribute order is not guaranteed, so the image source is extracted in a second pass.
	captchaImageRE  = regexp.MustCompile(`<img[^>]*\balt="captcha"[^>]*>`)
	captchaSourceRE = regexp.MustCompile(`\bsrc="([^"]+)"`)
)

// Credentials identify a Porsche Connect account.
type Credentials struct {
	Email    string
	Password string
}

// Captcha holds the solution to a captcha challenge from a previous login attempt.
type Captcha struct {
	Code  string
	State string
}

// Client obtains and refreshes OAuth2 tokens. A Client is safe for use by a single goroutine;
// [account.Account] serializes access with its token lock.
type Client struct {
	// Leeway is how long before expiry a token is refreshed. Defaults to DefaultLeeway.
	Leeway time.Duration

	userAgent   string
	credentials Credentials
	captcha     *Captcha
	client      *http.Client
}

// NewClient returns a Client that logs in with the given credentials.
//
// The embedded http.Client keeps identity-server session cookies, so a second Login on the same
// Client usually short-circuits to a single request. Redirects are not followed: the flow reads
// authorization parameters out of Location headers.
func NewClient(credentials Credentials, userAgent string) *Client {
	jar, _ := cookiejar.New(nil)
	return &Client{
		Leeway:      DefaultLeeway,
		userAgent:   userAgent,
		credentials: credentials,
		client: &http.Client{
			Jar:     jar,
			Timeout: requestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// SetCaptcha provides the solution to a captcha challenge from an earlier [CaptchaError]. The
// next Login resumes the interrupted flow instead of starting over.
func (c *Client) SetCaptcha(captcha *Captcha) {
	c.captcha = captcha
}

// Valid ensures t can authorize an API call, refreshing or logging in as needed. t is updated in
// place so callers can persist the rotated refresh token.
func (c *Client) Valid(ctx context.Context, t *Token) error {
	if t.Usable(c.leeway()) {
		return nil
	}
	if t.RefreshToken != "" {
		refreshed, err := c.Refresh(ctx, t.RefreshToken)
		if err == nil {
			*t = *refreshed
			log.Debug("Refreshed access token")
			return nil
		}
		if !errors.Is(err, ErrRefreshRejected) {
			return err
		}
		log.Debug("Refresh token rejected; falling back to full login")
	}
	fresh, err := c.Login(ctx)
	if err != nil {
		return err
	}
	*t = *fresh
	log.Debug("Obtained new access token")
	return nil
}

// Login runs the full web login flow and returns a fresh token.
func (c *Client) Login(ctx context.Context) (*Token, error) {
	code, err := c.authorizationCode(ctx)
	if err != nil {
		return nil, err
	}
	return c.exchangeCode(ctx, code)
}

// authorizationCode fetches the code to be exchanged for an access token.
func (c *Client) authorizationCode(ctx context.Context) (string, error) {
	if c.captcha != nil {
		// Resume the flow that was interrupted by the captcha challenge.
		resume, err := c.loginWithIdentifier(ctx, c.captcha.State)
		if err != nil {
			return "", err
		}
		return c.resumeAuthorization(ctx, resume)
	}

	log.Debug("Fetching authorization code")
	params, err := c.locationParams(ctx, authorizationURL, url.Values{
		"response_type": {"code"},
		"client_id":     {ClientID},
		"redirect_uri":  {RedirectURI},
		"audience":      {Audience},
		"scope":         {Scope},
		"state":         {"porsche-connect"},
	})
	if err != nil {
		return "", err
	}

	// An existing identity-server session skips the login forms entirely.
	if code := params.Get("code"); code != "" {
		log.Debug("Reused existing identity server session")
		return code, nil
	}

	log.Debug("No existing identity server session; running identifier-first login")
	resume, err := c.loginWithIdentifier(ctx, params.Get("state"))
	if err != nil {
		return "", err
	}
	return c.resumeAuthorization(ctx, resume)
}

func (c *Client) resumeAuthorization(ctx context.Context, resumePath string) (string, error) {
	params, err := c.locationParams(ctx, "https://"+AuthorizationServer+resumePath, nil)
	if err != nil {
		return "", err
	}
	code := params.Get("code")
	if code == "" {
		return "", ErrNoAuthorizationCode
	}
	return code, nil
}

// loginWithIdentifier submits the email and password forms and returns the path at which the
// authorization request resumes.
func (c *Client) loginWithIdentifier(ctx context.Context, state string) (string, error) {
	form := url.Values{
		"state":                       {state},
		"username":                    {c.credentials.Email},
		"js-available":                {"true"},
		"webauthn-available":          {"false"},
		"is-brave":                    {"false"},
		"webauthn-platform-available": {"false"},
		"action":                      {"default"},
	}
	if c.captcha != nil {
		form.Set("captcha", c.captcha.Code)
		log.Debug("Submitting email and captcha solution")
	} else {
		log.Debug("Submitting email")
	}

	identifierURL := fmt.Sprintf("https://%s/u/login/identifier?state=%s", AuthorizationServer, url.QueryEscape(state))
	response, err := c.postForm(ctx, identifierURL, form)
	if err != nil {
		return "", err
	}
	body, err := readBody(response)
	if err != nil {
		return "", err
	}
	switch response.StatusCode {
	case http.StatusUnauthorized:
		return "", ErrWrongCredentials
	case http.StatusBadRequest:
		// The identifier step answers 400 with an embedded captcha image when the server wants
		// human verification.
		tag := captchaImageRE.FindString(body)
		if tag == "" {
			return "", fmt.Errorf("identity server rejected login: %s", response.Status)
		}
		source := captchaSourceRE.FindStringSubmatch(tag)
		if source == nil {
			return "", fmt.Errorf("captcha challenge carries no image source")
		}
		log.Debug("Captcha required")
		return "", &CaptchaError{Captcha: source[1], State: state}
	}

	log.Debug("Submitting password")
	form = url.Values{
		"state":    {state},
		"username": {c.credentials.Email},
		"password": {c.credentials.Password},
		"action":   {"default"},
	}
	passwordURL := fmt.Sprintf("https://%s/u/login/password?state=%s", AuthorizationServer, url.QueryEscape(state))
	response, err = c.postForm(ctx, passwordURL, form)
	if err != nil {
		return "", err
	}
	if _, err := readBody(response); err != nil {
		return "", err
	}
	// A wrong password comes back as a plain 400 here.
	if response.StatusCode == http.StatusBadRequest {
		return "", ErrWrongCredentials
	}
	resume := response.Header.Get("Location")
	if resume == "" {
		return "", fmt.Errorf("password step returned %s without a resume location", response.Status)
	}
	log.Debug("Login accepted; resuming at %s", resume)

	select {
	case <-time.After(loginSettleDelay):
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return resume, nil
}

// exchangeCode trades an authorization code for a token.
func (c *Client) exchangeCode(ctx context.Context, code string) (*Token, error) {
	log.Debug("Exchanging authorization code for access token")
	return c.fetchToken(ctx, url.Values{
		"client_id":    {ClientID},
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {RedirectURI},
	})
}

// Refresh trades a refresh token for a fresh access token. Returns ErrRefreshRejected if the
// server no longer accepts the refresh token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	log.Debug("Refreshing access token")
	token, err := c.fetchToken(ctx, url.Values{
		"client_id":     {ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		var statusErr *statusError
		if errors.As(err, &statusErr) && statusErr.code == http.StatusForbidden {
			return nil, ErrRefreshRejected
		}
		return nil, err
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (c *Client) fetchToken(ctx context.Context, form url.Values) (*Token, error) {
	response, err := c.postForm(ctx, tokenURL, form)
	if err != nil {
		return nil, err
	}
	body, err := readBody(response)
	if err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusOK {
		return nil, &statusError{code: response.StatusCode, url: tokenURL}
	}
	var token Token
	if err := json.Unmarshal([]byte(body), &token); err != nil {
		return nil, fmt.Errorf("malformed token response: %w", err)
	}
	token.stampExpiry(time.Now())
	return &token, nil
}

// locationParams issues a GET and returns the query parameters of the redirect Location. Any
// response other than 302 means the flow derailed.
func (c *Client) locationParams(ctx context.Context, rawURL string, extra url.Values) (url.Values, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	query := target.Query()
	for key, values := range extra {
		for _, value := range values {
			query.Set(key, value)
		}
	}
	target.RawQuery = query.Encode()

	request, err := http.NewRequestWithContext(ctx, "GET", target.String(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(request)
	response, err := c.client.Do(request)
	if err != nil {
		return nil, err
	}
	if _, err := readBody(response); err != nil {
		return nil, err
	}
	if response.StatusCode != http.StatusFound {
		return nil, fmt.Errorf("could not fetch authorization code: %s returned %s", target.Path, response.Status)
	}
	location, err := url.Parse(response.Header.Get("Location"))
	if err != nil {
		return nil, fmt.Errorf("malformed redirect location: %w", err)
	}
	return location.Query(), nil
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) (*http.Response, error) {
	request, err := http.NewRequestWithContext(ctx, "POST", rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	c.setHeaders(request)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.client.Do(request)
}

func (c *Client) setHeaders(request *http.Request) {
	request.Header.Set("User-Agent", c.userAgent)
	request.Header.Set("X-Client-ID", XClientID)
}

func (c *Client) leeway() time.Duration {
	if c.Leeway > 0 {
		return c.Leeway
	}
	return DefaultLeeway
}

// statusError reports a non-2xx response from the identity server. API-level errors use
// [account.HttpError]; this type stays internal to the login flow.
type statusError struct {
	code int
	url  string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d", e.url, e.code)
}

func readBody(response *http.Response) (string, error) {
	defer response.Body.Close()
	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseLength))
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	return string(body), nil
}

const maxResponseLength = 1 << 20
