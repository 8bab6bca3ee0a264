package errors

import (
	stdErrors "errors"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		retryable bool
		expected  bool
	}{
		{code: CodeValidation},
		{code: CodeNotFound},
		{code: CodeStateConflict},
		{code: CodeRaceLost, expected: true},
		{code: CodeMalformed},
		{code: CodeInternal, retryable: true},
		{code: CodeDependency, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.Expected != tt.expected {
			t.Fatalf("code %s expected expected=%v got %v", tt.code, tt.expected, meta.Expected)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if !meta.Retryable {
		t.Fatal("unknown codes should map to the internal metadata")
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing cart")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing cart" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatal("details should be nil by default")
	}

	detailed := base.WithDetails(map[string]string{"field": "line_items"})
	if detailed.Details() == nil {
		t.Fatal("expected details to be set")
	}

	cause := stdErrors.New("socket closed")
	wrapped := Wrap(CodeDependency, cause, "redis publish failed")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatal("wrapped error should unwrap to its cause")
	}
	if As(wrapped) == nil {
		t.Fatal("As should find the typed error")
	}
}

func TestIsRetryableAndIsExpected(t *testing.T) {
	if !IsRetryable(New(CodeDependency, "redis down")) {
		t.Fatal("dependency errors are retryable")
	}
	if IsRetryable(stdErrors.New("plain")) {
		t.Fatal("plain errors are not retryable")
	}
	if !IsExpected(New(CodeRaceLost, "claim denied")) {
		t.Fatal("race loss is an expected outcome")
	}
	if IsExpected(New(CodeInternal, "boom")) {
		t.Fatal("internal errors are not expected outcomes")
	}
}
