// Package failure classifies upstream errors from the storyboard and render
// boundaries into the quota, session-invalidation and generic classes, and
// normalises them into user-facing messages.
package failure

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Sentinel errors
var (
	ErrQuotaExceeded      = errors.New("QUOTA_ERROR")
	ErrSessionInvalid     = errors.New("API_KEY_RESET_REQUIRED")
	ErrNoVideo            = errors.New("no video produced")
	ErrRenderTimeout      = errors.New("video generation timed out")
	ErrCredentialRequired = errors.New("no generation credential selected")
)

// QuotaSentinel is the normalised text of every quota failure.
const QuotaSentinel = "QUOTA_ERROR"

// User-facing labels
const (
	LabelSceneQuota        = "Free Tier Limit Reached"
	LabelStoryboardQuota   = "Quota Limit Reached (Storyboard)"
	LabelStoryboardPrefix  = "Storyboard Error: "
	LabelSessionInvalid    = "API Session invalid. Please click 'Connect API Key' again."
	LabelQuotaRemediation  = "Your API key has hit its usage limit. Select a key from a project with billing enabled, or wait for the quota to reset."
	notFoundMarker         = "requested entity was not found"
	generativeStatusQuota  = "RESOURCE_EXHAUSTED"
	generativeStatusAbsent = "NOT_FOUND"
)

// Kind is the failure class of an error.
type Kind int

const (
	KindGeneric Kind = iota
	KindQuota
	KindSessionInvalid
)

func (k Kind) String() string {
	switch k {
	case KindQuota:
		return "quota"
	case KindSessionInvalid:
		return "session_invalid"
	default:
		return "generic"
	}
}

// APIError is a non-2xx response from an upstream HTTP API.
type APIError struct {
	Service    string
	StatusCode int
	Status     string // provider status, e.g. RESOURCE_EXHAUSTED
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s API error (status %d)", e.Service, e.StatusCode)
}

// NewAPIError builds an APIError, lifting code, status and message out of
// the Google style {"error":{...}} envelope when present.
func NewAPIError(service string, statusCode int, body []byte) *APIError {
	e := &APIError{Service: service, StatusCode: statusCode, Body: string(body)}

	var envelope struct {
		Error *OperationError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		e.Status = envelope.Error.Status
		e.Message = envelope.Error.Message
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

// OperationError is the error object attached to a failed long-running
// operation or an error response.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *OperationError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("%s: %s", e.Status, e.Message)
	}
	return e.Message
}

// Classify maps err to its failure class. Structured codes are checked before
// the text heuristics.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	if errors.Is(err, ErrSessionInvalid) {
		return KindSessionInvalid
	}
	if IsQuota(err) {
		return KindQuota
	}
	return KindGeneric
}

// IsQuota reports whether err signals exhausted usage limits.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExceeded) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.Status == generativeStatusQuota {
			return true
		}
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		if opErr.Code == http.StatusTooManyRequests || opErr.Status == generativeStatusQuota {
			return true
		}
	}
	return hasQuotaMarker(err.Error())
}

// IsNotFound reports whether err means the render job handle no longer
// exists, which happens when the credential session changed underneath it.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound || apiErr.Status == generativeStatusAbsent {
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), notFoundMarker)
}

func hasQuotaMarker(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "429") ||
		strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "quota")
}

var (
	embeddedMessage = regexp.MustCompile(`"message"\s*:\s*"([^"]+)"`)
	errorPrefix     = regexp.MustCompile(`^Error:\s*`)
)

// Scrub normalises err into a short message. Quota failures collapse to the
// quota sentinel; otherwise an embedded JSON message wins over the raw text.
func Scrub(err error) string {
	if err == nil {
		return ""
	}
	if IsQuota(err) {
		return QuotaSentinel
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" && !strings.HasPrefix(apiErr.Message, "{") {
		return errorPrefix.ReplaceAllString(apiErr.Message, "")
	}
	return ScrubText(err.Error())
}

// ScrubText applies the text rules of Scrub to a raw message.
func ScrubText(text string) string {
	if hasQuotaMarker(text) {
		return QuotaSentinel
	}
	if m := embeddedMessage.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return errorPrefix.ReplaceAllString(text, "")
}

// SceneMessage is the error text recorded on a failed scene.
func SceneMessage(err error) string {
	msg := Scrub(err)
	if msg == QuotaSentinel {
		return LabelSceneQuota
	}
	return msg
}

// StoryboardMessage is the project-level text for a failed storyboard.
func StoryboardMessage(err error) string {
	msg := Scrub(err)
	if msg == QuotaSentinel {
		return LabelStoryboardQuota
	}
	return LabelStoryboardPrefix + msg
}
