package wingerr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
)

// Category groups errors by how the caller should react to them.
type Category string

const (
	CategoryConfiguration Category = "configuration"
	CategoryConnectivity  Category = "connectivity"
	CategoryServiceAPI    Category = "service_api"
	CategoryValidation    Category = "validation"
	CategoryNotFound      Category = "not_found"
)

// Kind refines connectivity failures so callers can surface actionable
// messages without parsing error strings.
type Kind string

const (
	KindConnection  Kind = "connection"
	KindTimeout     Kind = "timeout"
	KindTLS         Kind = "tls"
	KindAuth        Kind = "auth"
	KindBadResponse Kind = "bad_response"
	KindRejected    Kind = "rejected"
)

// Stable machine codes shared across services. Service-specific rejection
// codes (ERR_CF_*, ERR_NPM_*, ...) are declared next to the call that emits
// them.
const (
	CodeSSLVerification = "ERR_SSL_VERIFICATION"
	CodeConnection      = "ERR_CONNECTION"
	CodeTimeout         = "ERR_TIMEOUT"
	CodeRequest         = "ERR_REQUEST"
	CodeUnknown         = "ERR_UNKNOWN"
	CodeConfig          = "ERR_CONFIG"
	CodeValidation      = "ERR_VALIDATION"
	CodeNotFound        = "ERR_NOT_FOUND"
)

// Error is the single error type crossing component boundaries.
type Error struct {
	Category   Category
	Kind       Kind
	Service    string
	Code       string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Service, e.Message, e.Code)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Configuration reports missing or disabled service configuration.
func Configuration(service, message string) *Error {
	return &Error{
		Category: CategoryConfiguration,
		Service:  service,
		Code:     CodeConfig,
		Message:  message,
	}
}

// Connectivity reports a transport-level failure reaching a service.
func Connectivity(service string, kind Kind, code, message string, err error) *Error {
	return &Error{
		Category: CategoryConnectivity,
		Kind:     kind,
		Service:  service,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ServiceAPI reports a service that was reached but rejected the request.
func ServiceAPI(service, code string, statusCode int, message string) *Error {
	return &Error{
		Category:   CategoryServiceAPI,
		Kind:       KindRejected,
		Service:    service,
		Code:       code,
		StatusCode: statusCode,
		Message:    message,
	}
}

// BadResponse reports a 2xx reply whose body could not be interpreted.
func BadResponse(service, message string, err error) *Error {
	return &Error{
		Category: CategoryServiceAPI,
		Kind:     KindBadResponse,
		Service:  service,
		Code:     CodeRequest,
		Message:  message,
		Err:      err,
	}
}

// Validation reports malformed caller input.
func Validation(message string) *Error {
	return &Error{
		Category: CategoryValidation,
		Code:     CodeValidation,
		Message:  message,
	}
}

// Validationf is Validation with formatting.
func Validationf(format string, args ...interface{}) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

// NotFound reports an unknown deployment, template or catalog resource.
func NotFound(resource, id string) *Error {
	return &Error{
		Category: CategoryNotFound,
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("%s %q not found", resource, id),
	}
}

// Classify converts a transport error from the HTTP client into a typed
// connectivity error. The mapping mirrors how operators triage these
// failures: certificate problems first, then timeouts, then refused or
// unroutable connections.
func Classify(service string, err error) *Error {
	var certErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthority) || errors.As(err, &hostnameErr) {
		return Connectivity(service, KindTLS, CodeSSLVerification,
			"TLS certificate verification failed; check the service certificate or enable skip-verify for self-signed setups", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Connectivity(service, KindTimeout, CodeTimeout, "request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Connectivity(service, KindTimeout, CodeTimeout, "request timed out", err)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return Connectivity(service, KindConnection, CodeConnection, "connection refused; is the service running and reachable?", err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Connectivity(service, KindConnection, CodeConnection, "unable to connect to service", err)
	}

	return Connectivity(service, KindConnection, CodeRequest, "request failed", err)
}

// As extracts a *Error from an error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// CategoryOf returns the category of err, or empty for untyped errors.
func CategoryOf(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return ""
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return CategoryOf(err) == CategoryNotFound
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	return CategoryOf(err) == CategoryValidation
}

// IsTimeout reports whether err is a connectivity timeout.
func IsTimeout(err error) bool {
	if e, ok := As(err); ok {
		return e.Kind == KindTimeout
	}
	return false
}

// HTTPStatus maps an error to the status code the API layer responds with.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryConfiguration:
		return http.StatusUnprocessableEntity
	case CategoryConnectivity:
		return http.StatusServiceUnavailable
	case CategoryServiceAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
