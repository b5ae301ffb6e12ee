package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CategoryValidation, SeverityWarning, "filename already taken")
	require.Equal(t, "validation (warning): filename already taken", err.Error())

	wrapped := Wrap(errors.New("connection refused"), CategoryForge, SeverityError, "create repository")
	require.Equal(t, "forge (error): create repository: connection refused", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(cause, CategoryInternal, SeverityFatal, "job payload")
	require.ErrorIs(t, err, cause)
}

func TestIsCategory(t *testing.T) {
	err := ValidationError("is invalid")
	require.True(t, IsCategory(err, CategoryValidation))
	require.False(t, IsCategory(err, CategoryForge))
	require.False(t, IsCategory(errors.New("plain"), CategoryValidation))
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(Retryable(CategoryBuild, SeverityError, "still building")))
	require.False(t, IsRetryable(New(CategoryBuild, SeverityError, "broken")))
	require.False(t, IsRetryable(errors.New("plain")))
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "is invalid", UserMessage(ValidationError("is invalid")))
	require.Equal(t, "", UserMessage(nil))

	forge := New(CategoryForge, SeverityError, "push failed")
	require.Equal(t, "forge (error): push failed", UserMessage(forge))
}

func TestWithContext(t *testing.T) {
	err := New(CategoryForge, SeverityError, "push failed").
		WithContext("dataset", "hot-drinks")
	require.Equal(t, "hot-drinks", err.Context["dataset"])
}
