package errors

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestServiceErrorError(t *testing.T) {
	t.Run("with cause", func(t *testing.T) {
		err := Wrap(errors.New("dial tcp: connection refused"),
			ErrorTypeNode, "get_block_header", "failed to retrieve block header")

		msg := err.Error()
		for _, want := range []string{"node", "get_block_header", "connection refused"} {
			if !strings.Contains(msg, want) {
				t.Errorf("error %q missing %q", msg, want)
			}
		}
	})

	t.Run("without cause", func(t *testing.T) {
		err := New(ErrorTypeValidation, "parse_bits", "invalid compact bits hex string")
		if !strings.Contains(err.Error(), "parse_bits") {
			t.Errorf("error %q missing operation", err.Error())
		}
		if strings.Contains(err.Error(), "caused by") {
			t.Errorf("error %q mentions a cause it does not have", err.Error())
		}
	})
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("pq: connection reset")
	err := Wrap(cause, ErrorTypeDatabase, "persist_header", "failed to persist header")

	if !errors.Is(err, cause) {
		t.Error("errors.Is does not reach the cause")
	}

	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatal("errors.As failed on a ServiceError")
	}
	if se.Operation != "persist_header" {
		t.Errorf("operation = %q, want persist_header", se.Operation)
	}
}

func TestWrapNil(t *testing.T) {
	if err := Wrap(nil, ErrorTypeNode, "ping", "failed to ping node"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "node errors are retryable",
			err:       New(ErrorTypeNode, "get_block_count", "rpc unavailable"),
			retryable: true,
		},
		{
			name:      "database errors are retryable",
			err:       New(ErrorTypeDatabase, "record_retarget", "too many connections"),
			retryable: true,
		},
		{
			name:      "kafka errors are retryable",
			err:       New(ErrorTypeKafka, "publish_target", "broker not available"),
			retryable: true,
		},
		{
			name:      "validation errors are not retryable",
			err:       New(ErrorTypeValidation, "header_conversion", "invalid block hash"),
			retryable: false,
		},
		{
			name:      "internal errors are not retryable",
			err:       New(ErrorTypeInternal, "retry", "attempts exhausted"),
			retryable: false,
		},
		{
			name:      "plain transient message is retryable",
			err:       errors.New("read tcp: connection reset by peer"),
			retryable: true,
		},
		{
			name:      "plain unexplained error is not retryable",
			err:       errors.New("unexpected response shape"),
			retryable: false,
		},
		{
			name:      "context cancellation is final",
			err:       Wrap(context.Canceled, ErrorTypeNode, "get_block_hash", "rpc aborted"),
			retryable: false,
		},
		{
			name:      "deadline expiry is final",
			err:       Wrap(context.DeadlineExceeded, ErrorTypeDatabase, "health", "health check timed out"),
			retryable: false,
		},
		{
			name: "rewrap preserves inner decision",
			err: Wrap(New(ErrorTypeValidation, "parse_bits", "bad hex"),
				ErrorTypeNode, "get_block_header", "header conversion failed"),
			retryable: false,
		},
		{
			name:      "nil is not retryable",
			err:       nil,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeKafka, "publish_chain_tip", "writer closed")

	if !IsType(err, ErrorTypeKafka) {
		t.Error("IsType failed to match the error's type")
	}
	if IsType(err, ErrorTypeDatabase) {
		t.Error("IsType matched the wrong type")
	}
	if IsType(errors.New("plain"), ErrorTypeKafka) {
		t.Error("IsType matched a plain error")
	}

	wrapped := Wrap(err, ErrorTypeInternal, "startup", "publisher init failed")
	if !IsType(wrapped, ErrorTypeInternal) {
		t.Error("IsType should report the outermost type")
	}
}

func TestWithContextAndGetContext(t *testing.T) {
	err := New(ErrorTypeNode, "get_block_hash", "no block at height").
		WithContext("height", int64(87948)).
		WithContext("network", "mainnet")

	ctx := GetContext(err)
	if ctx == nil {
		t.Fatal("GetContext returned nil")
	}
	if ctx["height"] != int64(87948) {
		t.Errorf("height context = %v, want 87948", ctx["height"])
	}
	if ctx["network"] != "mainnet" {
		t.Errorf("network context = %v, want mainnet", ctx["network"])
	}

	if GetContext(errors.New("plain")) != nil {
		t.Error("GetContext on a plain error should be nil")
	}
}
