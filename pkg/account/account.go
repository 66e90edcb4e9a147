// Package account handles authenticated REST dispatch against the Porsche Connect API.
package account

import (
	"bytes"
	"context"
	_ "embed" // Used to embed version for use with user agent
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

var (
	//go:embed version.txt
	libraryVersion string
)

func buildUserAgent(app string) string {
	library := strings.TrimSpace("porsche-connect/" + libraryVersion)
	build, ok := debug.ReadBuildInfo()
	if !ok {
		return library
	}
	path := strings.Split(build.Path, "/")
	if len(path) == 0 {
		return library
	}

	if app == "" {
		app = path[len(path)-1]
		var version string
		if build.Main.Version != "(devel)" && build.Main.Version != "" {
			version = build.Main.Version
		} else {
			for _, info := range build.Settings {
				if info.Key == "vcs.revision" {
					if len(info.Value) > 8 {
						version = info.Value[0:8]
					}
					break
				}
			}
		}

		if version != "" {
			app = fmt.Sprintf("%s/%s", app, version)
		}
	}

	return fmt.Sprintf("%s %s", app, library)
}

const (
	defaultHost       = "api.ppa.porsche.com"
	apiBasePath       = "app"
	maxResponseLength = 10 << 20
)

// Account allows interaction with a Porsche Connect account.
//
// All API calls revalidate the OAuth token first, so a long-lived Account keeps working across
// token expiry. Methods are safe for concurrent use; token maintenance is serialized internally.
type Account struct {
	// The default UserAgent is derived from build info, but can be overridden before the first
	// request.
	UserAgent string
	Host      string

	client    http.Client
	oauth     *auth.Client
	tokenLock sync.Mutex
	token     auth.Token
}

// New returns an [Account] that logs in with the given credentials on first use.
// Optional userAgent can be passed in - otherwise it will be generated from build info.
func New(credentials auth.Credentials, userAgent string) *Account {
	return NewWithToken(credentials, nil, userAgent)
}

// NewWithToken returns an [Account] that resumes a previous session. The token typically comes
// from a session file (see [pkg/cache]); pass nil to force a fresh login. Credentials are still
// required in case the refresh token has gone stale.
func NewWithToken(credentials auth.Credentials, token *auth.Token, userAgent string) *Account {
	ua := buildUserAgent(userAgent)
	a := &Account{
		UserAgent: ua,
		Host:      defaultHost,
		oauth:     auth.NewClient(credentials, ua),
	}
	if token != nil {
		a.token = *token
	}
	return a
}

// SetCaptcha forwards a captcha solution to the login flow. See [auth.CaptchaError].
func (a *Account) SetCaptcha(captcha *auth.Captcha) {
	a.oauth.SetCaptcha(captcha)
}

// Token validates and returns a copy of the account's current OAuth token, logging in if
// necessary. Callers persist the copy to a session file so the next invocation can skip the
// login flow.
func (a *Account) Token(ctx context.Context) (*auth.Token, error) {
	a.tokenLock.Lock()
	defer a.tokenLock.Unlock()
	if err := a.oauth.Valid(ctx, &a.token); err != nil {
		return nil, err
	}
	token := a.token
	return &token, nil
}

func (a *Account) authHeader(ctx context.Context) (string, error) {
	token, err := a.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token.AccessToken, nil
}

// Get sends an HTTP GET request to endpoint and returns the response body.
//
// The endpoint should contain only the path (e.g., "connect/v1/vehicles"); the domain is
// determined by a.Host.
func (a *Account) Get(ctx context.Context, endpoint string) ([]byte, error) {
	return a.do(ctx, "GET", endpoint, nil)
}

// Post sends an HTTP POST request to endpoint. The payload is JSON-serialized unless it is
// already a []byte.
func (a *Account) Post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	return a.do(ctx, "POST", endpoint, payload)
}

// Put sends an HTTP PUT request to endpoint.
func (a *Account) Put(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	return a.do(ctx, "PUT", endpoint, payload)
}

// Delete sends an HTTP DELETE request to endpoint.
func (a *Account) Delete(ctx context.Context, endpoint string) ([]byte, error) {
	return a.do(ctx, "DELETE", endpoint, nil)
}

func (a *Account) do(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	authHeader, err := a.authHeader(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		raw, ok := payload.([]byte)
		if !ok {
			raw, err = json.Marshal(payload)
			if err != nil {
				return nil, err
			}
		}
		body = bytes.NewReader(raw)
	}

	url := fmt.Sprintf("https://%s/%s/%s", a.Host, apiBasePath, endpoint)
	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("error constructing request to %s: %w", endpoint, err)
	}
	log.Debug("Requesting %s %s...", method, url)
	request.Header.Set("User-Agent", a.UserAgent)
	request.Header.Set("X-Client-ID", auth.XClientID)
	request.Header.Set("Authorization", authHeader)
	request.Header.Set("Accept", "application/json")
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := a.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error fetching %s: %w", endpoint, err)
	}
	defer response.Body.Close()

	reader := io.LimitedReader{R: response.Body, N: maxResponseLength}
	raw, err := io.ReadAll(&reader)
	if err != nil {
		return nil, err
	}
	log.Debug("Server returned %d: %s", response.StatusCode, raw)
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return nil, &HttpError{Code: response.StatusCode}
	}
	return raw, nil
}

// Vehicles lists the vehicles paired with the account.
func (a *Account) Vehicles(ctx context.Context) ([]*vehicle.Vehicle, error) {
	raw, err := a.Get(ctx, "connect/v1/vehicles")
	if err != nil {
		return nil, err
	}
	vehicles, err := vehicle.DecodeList(a, raw)
	if err != nil {
		return nil, fmt.Errorf("malformed vehicle list: %w", err)
	}
	log.Debug("Account has %d vehicle(s)", len(vehicles))
	return vehicles, nil
}

// Vehicle returns a handle for the vehicle with the given VIN. The VIN is not validated against
// the account's vehicle list; an unpaired VIN surfaces as NOT_FOUND on the first fetch.
func (a *Account) Vehicle(vin string) *vehicle.Vehicle {
	return vehicle.New(a, vin)
}
