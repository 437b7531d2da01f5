// Package classifier maps raw provider errors onto the three classes the
// integrations layer acts on. It is pure and performs no I/O.
package classifier

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
)

// Class is the outcome of classifying a provider error.
type Class int

const (
	// Unknown errors match no vocabulary. They are treated like AuthInvalid when
	// flagging health but are logged separately.
	Unknown Class = iota
	// Transient errors are expected to resolve without user action.
	Transient
	// AuthInvalid means the grant itself is no longer usable and the user must re-consent.
	AuthInvalid
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case AuthInvalid:
		return "auth_invalid"
	default:
		return "unknown"
	}
}

// StatusCoder is implemented by provider API errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// ErrorCoder is implemented by provider API errors that carry a machine readable code.
type ErrorCoder interface {
	ErrorCode() string
}

// authVocabulary marks a refresh token or access grant that can no longer be used.
var authVocabulary = []string{
	"invalid_grant",
	"invalid_token",
	"invalid_client",
	"unauthorized_client",
	"token expired",
	"token_expired",
	"expired_token",
	"token has expired",
	"token revoked",
	"token_revoked",
	"token has been revoked",
	"revoked",
	"interaction_required",
	"consent_required",
	"login_required",
	"invalid_auth",
	"not_authed",
	"account_inactive",
	"invalid_refresh_token",
	"invalidauthenticationtoken",
	"aadsts700082", // refresh token expired due to inactivity
	"aadsts70008",  // refresh token expired
	"aadsts50173",  // grant revoked after password change
	"aadsts50076",  // MFA required
	"aadsts65001",  // consent missing
	"unauthorized",
	"unauthenticated",
}

var transientVocabulary = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"temporarily_unavailable",
	"service unavailable",
	"serviceunavailable",
	"server_error",
	"internal_error",
	"internal server error",
	"bad gateway",
	"gateway timeout",
	"rate limit",
	"ratelimited",
	"rate_limited",
	"too many requests",
	"toomanyrequests",
	"throttl",
	"activitylimitreached",
	"connection reset",
	"connection refused",
	"no such host",
	"network is unreachable",
	"broken pipe",
	"unexpected eof",
}

// Classify maps err onto a Class. Structured signals (context, net errors,
// OAuth error codes, HTTP status) are consulted before message matching.
func Classify(err error) Class {
	if err == nil {
		return Unknown
	}

	if isNetworkFailure(err) {
		return Transient
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if class, ok := classifyCode(retrieveErr.ErrorCode); ok {
			return class
		}
		if retrieveErr.Response != nil {
			if class, ok := classifyStatus(retrieveErr.Response.StatusCode); ok {
				return class
			}
		}
	}

	var coder ErrorCoder
	if errors.As(err, &coder) {
		if class, ok := classifyCode(coder.ErrorCode()); ok {
			return class
		}
	}

	var statusCoder StatusCoder
	if errors.As(err, &statusCoder) {
		if class, ok := classifyStatus(statusCoder.HTTPStatus()); ok {
			return class
		}
	}

	return classifyMessage(err.Error())
}

// IsTransient is shorthand for Classify(err) == Transient.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}

func isNetworkFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

func classifyCode(code string) (Class, bool) {
	if code == "" {
		return Unknown, false
	}
	class := classifyMessage(code)
	return class, class != Unknown
}

func classifyStatus(status int) (Class, bool) {
	switch {
	case status == http.StatusUnauthorized:
		return AuthInvalid, true
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return Transient, true
	case status >= 500 && status <= 599:
		return Transient, true
	}
	return Unknown, false
}

func classifyMessage(msg string) Class {
	msg = strings.ToLower(msg)
	for _, v := range authVocabulary {
		if strings.Contains(msg, v) {
			return AuthInvalid
		}
	}
	for _, v := range transientVocabulary {
		if strings.Contains(msg, v) {
			return Transient
		}
	}
	return Unknown
}
