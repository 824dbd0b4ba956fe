package channel

import (
	"net/http"
	"testing"
	"time"
)

func TestClassifyRESTEnvelope(t *testing.T) {
	body := []byte(`{"errors":[{"errorId":2004,"domain":"ACCESS","category":"REQUEST","message":"Invalid request"}]}`)
	ce := classifyResponse(http.StatusConflict, http.Header{}, body, time.Now())
	if !ce.Retryable {
		t.Fatal("category REQUEST must be treated as transient")
	}
	if ce.Code != "2004" || ce.Message != "Invalid request" {
		t.Fatalf("envelope not parsed: %+v", ce)
	}
}

func TestClassifyLegacyEnvelope(t *testing.T) {
	body := []byte(`<?xml version="1.0"?><EndFixedPriceItemResponse><Ack>Failure</Ack><Errors><Error><ShortMessage>Internal error to the application.</ShortMessage><ErrorCode>10007</ErrorCode><ErrorClassification>SystemError</ErrorClassification></Error></Errors></EndFixedPriceItemResponse>`)
	ce := classifyResponse(http.StatusInternalServerError, http.Header{}, body, time.Now())
	if !ce.Retryable {
		t.Fatal("SystemError classification must be transient")
	}
	if ce.Code != "10007" {
		t.Fatalf("legacy code not parsed: %+v", ce)
	}
}

func TestClassifyAuthStatusNotRetryable(t *testing.T) {
	ce := classifyResponse(http.StatusUnauthorized, http.Header{}, nil, time.Now())
	if ce.Retryable {
		t.Fatal("401 must not be retryable")
	}
}

func TestClassifyServerErrorRetryable(t *testing.T) {
	ce := classifyResponse(http.StatusBadGateway, http.Header{}, nil, time.Now())
	if !ce.Retryable {
		t.Fatal("5xx must be retryable")
	}
}

func TestParseRetryAfterSecondsAndDate(t *testing.T) {
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	if got := parseRetryAfter("90", now); got == nil || !got.Equal(now.Add(90*time.Second)) {
		t.Fatalf("delta-seconds form: %v", got)
	}
	stamp := now.Add(time.Hour).Format(http.TimeFormat)
	if got := parseRetryAfter(stamp, now); got == nil || !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("http-date form: %v", got)
	}
	if got := parseRetryAfter("", now); got != nil {
		t.Fatal("empty header should yield nil")
	}
}
