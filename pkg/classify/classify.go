// Package classify normalizes transport and service errors into a stable
// classification used by the retry layer. Classification is stateless and
// deterministic: the same error and operation name always produce the same
// result, and an already-classified error is returned unchanged.
package classify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Category groups errors by how the caller should treat them.
type Category string

const (
	// CategoryAuthentication covers credential and permission failures.
	// Never retried.
	CategoryAuthentication Category = "authentication"

	// CategoryValidation covers malformed input and domain-specific
	// rejections (bad image, missing template). Never retried.
	CategoryValidation Category = "validation"

	// CategoryService covers transient remote failures. Retried up to the
	// configured budget.
	CategoryService Category = "service"

	// CategorySystem covers unexpected local failures. Never retried and
	// treated as a bug signal.
	CategorySystem Category = "system"
)

// BWS error tokens scanned out of Internal and InvalidArgument status
// descriptions. Exported so embedders can tune the retry policy for
// unlisted tokens.
var (
	// NonRetryableTokens mark permanent, input-related rejections.
	NonRetryableTokens = []string{
		"TemplateNotFound",
		"TemplateCorrupted",
		"TemplateExpired",
		"NoSuitableFaceImage",
		"MultipleFacesFound",
		"NoFeatureVectors",
		"DifferentFeatureVersions",
		"InvalidImageFormat",
		"ImageTooSmall",
		"ImageTooBig",
		"PoorImageQuality",
	}

	// RetryableTokens mark transient service-side conditions.
	RetryableTokens = []string{
		"ServiceUnavailable",
		"RequestTimeout",
		"ConnectionFailed",
		"RateLimitExceeded",
		"InternalError",
	}
)

// descriptive phrasings some BWS releases emit instead of bare tokens.
var phraseTokens = []struct {
	phrase string
	token  string
}{
	{"template not found", "TemplateNotFound"},
	{"no suitable face", "NoSuitableFaceImage"},
	{"multiple faces", "MultipleFacesFound"},
	{"no feature vectors", "NoFeatureVectors"},
	{"different feature versions", "DifferentFeatureVersions"},
	{"poor image quality", "PoorImageQuality"},
	{"service unavailable", "ServiceUnavailable"},
	{"request timeout", "RequestTimeout"},
	{"rate limit", "RateLimitExceeded"},
}

// Classification is the normalized result of interpreting a raw error.
// It implements error and preserves the original cause for errors.Is/As.
type Classification struct {
	Category   Category
	Retryable  bool
	StatusCode int // externally meaningful HTTP-like status
	Code       string
	Message    string
	Err        error
}

// Error implements the error interface.
func (c *Classification) Error() string {
	return fmt.Sprintf("bws %s error (%s, status %d): %s", c.Category, c.Code, c.StatusCode, c.Message)
}

// Unwrap exposes the original cause.
func (c *Classification) Unwrap() error {
	return c.Err
}

// Classify normalizes err in the context of the named operation.
//
// Dispatch order: already-classified errors pass through untouched, then
// context cancellation, then gRPC transport status, then the catch-all
// system classification for non-transport errors.
func Classify(err error, operation string) *Classification {
	if err == nil {
		return nil
	}

	var classified *Classification
	if errors.As(err, &classified) {
		// Classification never re-derives from an already-typed error.
		return classified
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled(operation, err)
	}

	st, ok := status.FromError(err)
	if !ok {
		return &Classification{
			Category:   CategorySystem,
			Retryable:  false,
			StatusCode: 500,
			Code:       "UNEXPECTED_ERROR",
			Message:    buildMessage(operation, err.Error()),
			Err:        err,
		}
	}

	desc := st.Message()
	msg := buildMessage(operation, desc)

	switch st.Code() {
	case codes.Unauthenticated:
		return &Classification{Category: CategoryAuthentication, StatusCode: 401, Code: "UNAUTHENTICATED", Message: msg, Err: err}

	case codes.PermissionDenied:
		return &Classification{Category: CategoryAuthentication, StatusCode: 401, Code: "PERMISSION_DENIED", Message: msg, Err: err}

	case codes.InvalidArgument:
		code := "INVALID_ARGUMENT"
		if token := extractToken(desc); token != "" && !tokenRetryable(token) {
			code = token
		}
		return &Classification{Category: CategoryValidation, StatusCode: 400, Code: code, Message: msg, Err: err}

	case codes.NotFound:
		return &Classification{Category: CategoryValidation, StatusCode: 400, Code: "TEMPLATE_NOT_FOUND", Message: msg, Err: err}

	case codes.Unavailable:
		return &Classification{Category: CategoryService, Retryable: true, StatusCode: 503, Code: "SERVICE_UNAVAILABLE", Message: msg, Err: err}

	case codes.DeadlineExceeded:
		return &Classification{Category: CategoryService, Retryable: true, StatusCode: 503, Code: "REQUEST_TIMEOUT", Message: msg, Err: err}

	case codes.ResourceExhausted:
		return &Classification{Category: CategoryService, Retryable: true, StatusCode: 503, Code: "RATE_LIMIT_EXCEEDED", Message: msg, Err: err}

	case codes.Canceled:
		return Cancelled(operation, err)

	case codes.Internal:
		token := extractToken(desc)
		if token != "" && !tokenRetryable(token) {
			return &Classification{Category: CategoryValidation, StatusCode: 400, Code: token, Message: msg, Err: err}
		}
		code := "INTERNAL_ERROR"
		if token != "" {
			code = token
		}
		// Unrecognized internal errors default to retryable: prefer a wasted
		// retry over silently dropping a recoverable call.
		return &Classification{Category: CategoryService, Retryable: true, StatusCode: 500, Code: code, Message: msg, Err: err}

	default:
		return &Classification{
			Category:   CategorySystem,
			Retryable:  false,
			StatusCode: 500,
			Code:       upperSnake(st.Code().String()),
			Message:    msg,
			Err:        err,
		}
	}
}

// Cancelled builds the classification for a call abandoned by its caller.
// Non-retryable: the deadline is gone either way.
func Cancelled(operation string, cause error) *Classification {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return &Classification{
		Category:   CategoryService,
		Retryable:  false,
		StatusCode: 499,
		Code:       "REQUEST_CANCELLED",
		Message:    buildMessage(operation, detail),
		Err:        cause,
	}
}

// IsRetryable reports whether err would classify as retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err, "call").Retryable
}

// extractToken scans a status description for a known BWS error token.
// Returns "" when nothing matches.
func extractToken(description string) string {
	if strings.TrimSpace(description) == "" {
		return ""
	}
	lower := strings.ToLower(description)

	for _, token := range NonRetryableTokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return token
		}
	}
	for _, token := range RetryableTokens {
		if strings.Contains(lower, strings.ToLower(token)) {
			return token
		}
	}
	for _, pt := range phraseTokens {
		if strings.Contains(lower, pt.phrase) {
			return pt.token
		}
	}
	return ""
}

func tokenRetryable(token string) bool {
	for _, t := range RetryableTokens {
		if t == token {
			return true
		}
	}
	return false
}

func buildMessage(operation, detail string) string {
	if strings.TrimSpace(detail) == "" {
		return fmt.Sprintf("%s operation failed", operation)
	}
	return fmt.Sprintf("%s operation failed: %s", operation, detail)
}

// upperSnake converts a CamelCase gRPC code name to UPPER_SNAKE form.
func upperSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}
