package channel

import (
	"encoding/json"
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/resaleops/autopilot/internal/errors"
)

// restErrorEnvelope is the JSON error body shape of the marketplace's REST
// APIs.
type restErrorEnvelope struct {
	Errors []struct {
		ErrorID  int    `json:"errorId"`
		Domain   string `json:"domain"`
		Category string `json:"category"`
		Message  string `json:"message"`
	} `json:"errors"`
}

// legacyErrorEnvelope is the XML error body shape of the legacy trading API.
// The root element varies per call, so only the nested Errors block is bound.
type legacyErrorEnvelope struct {
	Items []struct {
		ShortMessage        string `xml:"ShortMessage"`
		ErrorCode           string `xml:"ErrorCode"`
		ErrorClassification string `xml:"ErrorClassification"`
	} `xml:"Errors>Error"`
}

// classifyResponse normalizes a non-2xx marketplace response into a
// ChannelError. Provider categories REQUEST and SYSTEM are transient per the
// provider's own taxonomy; everything else follows the HTTP status.
func classifyResponse(status int, header http.Header, body []byte, now time.Time) *apperrors.ChannelError {
	ce := &apperrors.ChannelError{
		Message:    http.StatusText(status),
		Code:       strconv.Itoa(status),
		HTTPStatus: status,
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		ce.Retryable = false
	case status == http.StatusTooManyRequests:
		ce.Retryable = true
		if ra := parseRetryAfter(header.Get("Retry-After"), now); ra != nil {
			ce.RetryAfter = ra
		}
	case status >= 500:
		ce.Retryable = true
	default:
		ce.Retryable = false
	}

	if len(body) == 0 {
		return ce
	}

	if env := parseRESTErrors(body); env != nil {
		ce.Message = env.message
		ce.Code = env.code
		if env.transient {
			ce.Retryable = true
		}
		return ce
	}
	if env := parseLegacyErrors(body); env != nil {
		ce.Message = env.message
		ce.Code = env.code
		if env.transient {
			ce.Retryable = true
		}
		return ce
	}
	return ce
}

type parsedError struct {
	message   string
	code      string
	transient bool
}

func parseRESTErrors(body []byte) *parsedError {
	var env restErrorEnvelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Errors) == 0 {
		return nil
	}
	first := env.Errors[0]
	cat := strings.ToUpper(first.Category)
	return &parsedError{
		message:   first.Message,
		code:      strconv.Itoa(first.ErrorID),
		transient: cat == "REQUEST" || cat == "SYSTEM",
	}
}

func parseLegacyErrors(body []byte) *parsedError {
	var env legacyErrorEnvelope
	if err := xml.Unmarshal(body, &env); err != nil || len(env.Items) == 0 {
		return nil
	}
	first := env.Items[0]
	class := strings.ToLower(first.ErrorClassification)
	return &parsedError{
		message:   first.ShortMessage,
		code:      first.ErrorCode,
		transient: class == "requesterror" || class == "systemerror",
	}
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) *time.Time {
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		t := now.Add(time.Duration(secs) * time.Second)
		return &t
	}
	if t, err := http.ParseTime(v); err == nil {
		return &t
	}
	return nil
}
