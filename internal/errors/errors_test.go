package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRagError_Unwrap_PreservesOriginalError(t *testing.T) {
	originalErr := errors.New("original error")

	ragErr := New(KindNotFound, "file not found: test.txt", originalErr)

	require.NotNil(t, ragErr)
	assert.Equal(t, originalErr, errors.Unwrap(ragErr))
	assert.True(t, errors.Is(ragErr, originalErr))
}

func TestRagError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		kind     Kind
		message  string
		expected string
	}{
		{
			name:     "not found",
			kind:     KindNotFound,
			message:  "config file not found",
			expected: "[NotFound] config file not found",
		},
		{
			name:     "transient",
			kind:     KindTransient,
			message:  "request timed out",
			expected: "[Transient] request timed out",
		},
		{
			name:     "corrupt",
			kind:     KindCorrupt,
			message:  "index.idx failed validation",
			expected: "[Corrupt] index.idx failed validation",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.kind, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestRagError_Is_MatchesByKind(t *testing.T) {
	err1 := New(KindNotFound, "file A not found", nil)
	err2 := New(KindNotFound, "file B not found", nil)

	assert.True(t, errors.Is(err1, err2))
}

func TestRagError_Is_DoesNotMatchDifferentKinds(t *testing.T) {
	err1 := New(KindNotFound, "file not found", nil)
	err2 := New(KindCorrupt, "index corrupt", nil)

	assert.False(t, errors.Is(err1, err2))
}

func TestRagError_WithDetails_AddsContext(t *testing.T) {
	err := New(KindNotFound, "file not found", nil)

	err = err.WithDetail("path", "/foo/bar.go")
	err = err.WithDetail("size", "1024")

	assert.Equal(t, "/foo/bar.go", err.Details["path"])
	assert.Equal(t, "1024", err.Details["size"])
}

func TestRagError_WithSuggestion_AddsSuggestion(t *testing.T) {
	err := New(KindTransient, "connection timed out", nil)

	err = err.WithSuggestion("Check your network connection")

	assert.Equal(t, "Check your network connection", err.Suggestion)
}

func TestRagError_RetryableByKind(t *testing.T) {
	tests := []struct {
		kind          Kind
		wantRetryable bool
	}{
		{KindTransient, true},
		{KindNotFound, false},
		{KindCorrupt, false},
		{KindFatal, false},
		{KindCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "test message", nil)
			assert.Equal(t, tt.wantRetryable, err.Kind.Retryable())
		})
	}
}

func TestRagError_NeedsRebuildByKind(t *testing.T) {
	tests := []struct {
		kind            Kind
		wantNeedsRebuild bool
	}{
		{KindCorrupt, true},
		{KindNotFound, false},
		{KindTransient, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := New(tt.kind, "test message", nil)
			assert.Equal(t, tt.wantNeedsRebuild, err.Kind.NeedsRebuild())
		})
	}
}

func TestWrap_CreatesRagErrorFromError(t *testing.T) {
	originalErr := errors.New("something went wrong")

	ragErr := Wrap(KindFatal, originalErr)

	require.NotNil(t, ragErr)
	assert.Equal(t, KindFatal, ragErr.Kind)
	assert.Equal(t, "something went wrong", ragErr.Message)
	assert.Equal(t, originalErr, ragErr.Cause)
}

func TestWrap_NilErrorReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindFatal, nil))
}

func TestNotFound_CreatesNotFoundKindError(t *testing.T) {
	err := NotFound("project not registered", nil)

	assert.Equal(t, KindNotFound, err.Kind)
}

func TestAlreadyExists_CreatesAlreadyExistsKindError(t *testing.T) {
	err := AlreadyExists("project name already in use", nil)

	assert.Equal(t, KindAlreadyExists, err.Kind)
}

func TestTransient_CreatesRetryableError(t *testing.T) {
	err := Transient("connection refused", nil)

	assert.Equal(t, KindTransient, err.Kind)
	assert.True(t, err.Kind.Retryable())
}

func TestDimensionMismatch_CreatesDimensionMismatchKindError(t *testing.T) {
	err := DimensionMismatch("expected 768, got 384", nil)

	assert.Equal(t, KindDimensionMismatch, err.Kind)
}

func TestIsRetryable_ChecksKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "retryable RagError",
			err:      New(KindTransient, "timeout", nil),
			expected: true,
		},
		{
			name:     "non-retryable RagError",
			err:      New(KindNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "wrapped retryable error",
			err:      Wrap(KindTransient, errors.New("wrapped")),
			expected: true,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestNeedsRebuild_ChecksKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "corrupt error",
			err:      New(KindCorrupt, "index corrupt", nil),
			expected: true,
		},
		{
			name:     "non-corrupt error",
			err:      New(KindNotFound, "not found", nil),
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NeedsRebuild(tt.err))
		})
	}
}

func TestGetKind_ExtractsKind(t *testing.T) {
	err := New(KindCorrupt, "index corrupt", nil)
	assert.Equal(t, KindCorrupt, GetKind(err))

	assert.Equal(t, Kind(""), GetKind(errors.New("plain")))
}
