package account

import "net/http"

// Vendor backends answer with bare status codes; the API gateway maps them to the conditions
// below. Messages match the strings surfaced in the vendor's mobile app logs.
var statusMessages = map[int]string{
	http.StatusUnauthorized:        "UNAUTHORIZED",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusMethodNotAllowed:    "MOBILE_ACCESS_DISABLED",
	http.StatusRequestTimeout:      "VEHICLE_UNAVAILABLE",
	http.StatusLocked:              "ACCOUNT_LOCKED",
	http.StatusTooManyRequests:     "TOO_MANY_REQUESTS",
	http.StatusInternalServerError: "SERVER_ERROR",
	http.StatusServiceUnavailable:  "SERVICE_MAINTENANCE",
	http.StatusGatewayTimeout:      "UPSTREAM_TIMEOUT",
}

// HttpError reports a non-2xx response from the Porsche Connect API.
type HttpError struct {
	Code    int
	Message string
}

func (e *HttpError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if message, ok := statusMessages[e.Code]; ok {
		return message
	}
	return http.StatusText(e.Code)
}

// MayHaveSucceeded reports whether a command that triggered the error might nonetheless have been
// delivered to the vehicle. 4xx responses are rejected before reaching the car; gateway errors
// are indeterminate.
func (e *HttpError) MayHaveSucceeded() bool {
	if e.Code >= 400 && e.Code < 500 {
		return false
	}
	return e.Code != http.StatusServiceUnavailable
}

// Temporary reports whether retrying the request might succeed.
func (e *HttpError) Temporary() bool {
	return e.Code == http.StatusServiceUnavailable ||
		e.Code == http.StatusGatewayTimeout ||
		e.Code == http.StatusRequestTimeout ||
		e.Code == http.StatusTooManyRequests
}
