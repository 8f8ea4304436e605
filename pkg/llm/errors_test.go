package llm

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyError_ContextLength(t *testing.T) {
	messages := []string{
		"this model's maximum context length is 128000 tokens",
		"error: context_length_exceeded",
		"prompt is too long: 210000 tokens",
		"request contains too many tokens",
	}

	for _, msg := range messages {
		classified := ClassifyError(errors.New(msg))
		if classified.Type != ErrorTypeContextLength {
			t.Errorf("ClassifyError(%q).Type = %v, want %v", msg, classified.Type, ErrorTypeContextLength)
		}
		if classified.Retryable {
			t.Errorf("context length error %q must not be retryable", msg)
		}
	}
}

func TestClassifyError_Auth(t *testing.T) {
	classified := ClassifyError(errors.New("401 Unauthorized: invalid api key"))
	if classified.Type != ErrorTypeAuth {
		t.Errorf("expected auth classification, got %v", classified.Type)
	}
	if classified.Retryable {
		t.Errorf("auth errors must not be retryable")
	}
	if classified.StatusCode != 401 {
		t.Errorf("expected status code 401, got %d", classified.StatusCode)
	}
}

func TestClassifyError_RateLimit(t *testing.T) {
	classified := ClassifyError(errors.New("429 too many requests, rate limit exceeded"))
	if classified.Type != ErrorTypeRateLimit {
		t.Errorf("expected rate_limit classification, got %v", classified.Type)
	}
	if !classified.Retryable {
		t.Errorf("rate limit errors must be retryable")
	}
}

func TestClassifyError_Connection(t *testing.T) {
	classified := ClassifyError(errors.New("dial tcp 127.0.0.1:8080: connection refused"))
	if classified.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint classification, got %v", classified.Type)
	}
	if !classified.Retryable {
		t.Errorf("connection errors must be retryable")
	}
}

func TestClassifyError_Unknown(t *testing.T) {
	classified := ClassifyError(errors.New("something odd happened"))
	if classified.Type != ErrorTypeUnknown {
		t.Errorf("expected unknown classification, got %v", classified.Type)
	}
	if classified.Retryable {
		t.Errorf("unknown errors default to not retryable")
	}
}

func TestClassifyError_PassesThroughStructuredError(t *testing.T) {
	orig := NewError(ErrorTypeModel, "model not found", false, nil)
	wrapped := fmt.Errorf("call failed: %w", orig)

	classified := ClassifyError(wrapped)
	if classified != orig {
		t.Errorf("expected wrapped *Error to be returned as-is")
	}
}

func TestIsContextLength(t *testing.T) {
	err := ClassifyError(errors.New("maximum context length exceeded"))
	if !IsContextLength(err) {
		t.Errorf("expected IsContextLength to be true")
	}
	if IsContextLength(errors.New("plain error")) {
		t.Errorf("expected IsContextLength to be false for unclassified error")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(ErrorTypeEndpoint, "connection failed", true, cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected errors.Is to find the cause through Unwrap")
	}
}
