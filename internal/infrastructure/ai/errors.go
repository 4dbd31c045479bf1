package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"unicode/utf8"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/kaptinlin/jsonrepair"

	"github.com/doeshing/multiprompt/internal/domain"
)

const maxErrorMessageLen = 300

// vendorTypes maps vendor error type strings onto the shared taxonomy.
var vendorTypes = map[string]domain.ErrorCode{
	"authentication_error":  domain.ErrCodeInvalidCredential,
	"invalid_api_key":       domain.ErrCodeInvalidCredential,
	"permission_error":      domain.ErrCodePermissionDenied,
	"not_found_error":       domain.ErrCodeNotFound,
	"model_not_found":       domain.ErrCodeNotFound,
	"rate_limit_error":      domain.ErrCodeRateLimited,
	"rate_limit_exceeded":   domain.ErrCodeRateLimited,
	"insufficient_quota":    domain.ErrCodeRateLimited,
	"overloaded_error":      domain.ErrCodeServiceUnavailable,
	"api_error":             domain.ErrCodeServiceUnavailable,
	"server_error":          domain.ErrCodeServiceUnavailable,
	"invalid_request_error": domain.ErrCodeBadRequest,
}

func codeForStatus(status int) domain.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrCodeInvalidCredential
	case status == http.StatusForbidden:
		return domain.ErrCodePermissionDenied
	case status == http.StatusNotFound:
		return domain.ErrCodeNotFound
	case status == http.StatusRequestTimeout:
		return domain.ErrCodeTimeout
	case status == http.StatusTooManyRequests:
		return domain.ErrCodeRateLimited
	case status >= 400 && status < 500:
		return domain.ErrCodeBadRequest
	case status >= 500:
		return domain.ErrCodeServiceUnavailable
	default:
		return domain.ErrCodeUnknown
	}
}

// statusError translates a non-2xx HTTP response into an AdapterError.
// The status decides the code; a recognised vendor type refines it.
func statusError(provider string, status int, contentType string, body []byte) *domain.AdapterError {
	message, vendorType := errorMessage(contentType, body)
	code := codeForStatus(status)
	if mapped, ok := vendorTypes[vendorType]; ok && status != http.StatusUnauthorized {
		code = mapped
	}
	if message == "" {
		message = http.StatusText(status)
	}
	return domain.NewAdapterError(provider, code, message).WithStatus(status)
}

// vendorError translates an error event delivered inside a stream body.
func vendorError(provider, vendorType, message string) *domain.AdapterError {
	code, ok := vendorTypes[vendorType]
	if !ok {
		code = domain.ErrCodeUnknown
	}
	if message == "" {
		message = vendorType
	}
	return domain.NewAdapterError(provider, code, message)
}

// transportError translates failures that happen before any response arrived.
func transportError(provider string, err error) *domain.AdapterError {
	var adapterErr *domain.AdapterError
	if errors.As(err, &adapterErr) {
		return adapterErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return domain.AsAdapterError(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.WrapAdapterError(provider, domain.ErrCodeTimeout, "request timed out", err)
	}
	return domain.WrapAdapterError(provider, domain.ErrCodeNetwork, fmt.Sprintf("request failed: %v", err), err)
}

func parseError(provider string, what string, err error) *domain.AdapterError {
	return domain.WrapAdapterError(provider, domain.ErrCodeParse, fmt.Sprintf("decode %s: %v", what, err), err)
}

type errorEnvelope struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Type    string          `json:"type"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}

// errorMessage pulls a readable message and a vendor error type out of an error body.
// HTML gateway pages are converted to text; truncated JSON is repaired before decoding.
func errorMessage(contentType string, body []byte) (string, string) {
	raw := strings.TrimSpace(string(body))
	if raw == "" {
		return "", ""
	}

	if strings.Contains(contentType, "html") || strings.HasPrefix(raw, "<") {
		markdown, err := htmltomarkdown.ConvertString(raw)
		if err != nil {
			return truncate(collapseSpace(raw)), ""
		}
		return truncate(collapseSpace(markdown)), ""
	}

	var envelope errorEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil || json.Unmarshal([]byte(repaired), &envelope) != nil {
			return truncate(collapseSpace(raw)), ""
		}
	}

	if len(envelope.Error) > 0 {
		var detail errorDetail
		if err := json.Unmarshal(envelope.Error, &detail); err == nil {
			vendorType := detail.Type
			if code, ok := detail.Code.(string); ok && code != "" {
				if _, known := vendorTypes[code]; known {
					vendorType = code
				}
			}
			return truncate(detail.Message), vendorType
		}
		var text string
		if err := json.Unmarshal(envelope.Error, &text); err == nil {
			return truncate(text), envelope.Type
		}
	}
	if envelope.Message != "" {
		return truncate(envelope.Message), envelope.Type
	}
	return truncate(collapseSpace(raw)), envelope.Type
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate caps s at maxErrorMessageLen bytes without splitting a rune.
func truncate(s string) string {
	if len(s) <= maxErrorMessageLen {
		return s
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
