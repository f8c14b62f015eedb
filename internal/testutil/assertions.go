package testutil

import (
	"errors"
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "github.com/Larvizub/arvidev-presupuestos/internal/errors"
)

func requireAppError(t *testing.T, err error, expectedCode string) *apperrors.AppError {
	t.Helper()

	if err == nil {
		t.Fatalf("expected AppError with code %q, got nil", expectedCode)
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	return appErr
}

// AssertAppError checks that err is an *AppError with the expected error code.
func AssertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()

	appErr := requireAppError(t, err, expectedCode)
	if appErr.Code != expectedCode {
		t.Errorf("expected error code %q, got %q (message: %s)", expectedCode, appErr.Code, appErr.Message)
	}
}

// AssertFieldErrors checks that err is a VALIDATION_FAILED error naming at
// least the given fields.
func AssertFieldErrors(t *testing.T, err error, fields ...string) {
	t.Helper()

	AssertAppError(t, err, apperrors.ErrValidationFailed.Code)
	appErr := requireAppError(t, err, apperrors.ErrValidationFailed.Code)

	var missing []string
	for _, field := range fields {
		if _, ok := appErr.Fields[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		t.Errorf("expected field errors for %v, got %v", missing, appErr.Fields)
	}
}

// AssertDecimal compares a money amount against its decimal string form.
func AssertDecimal(t *testing.T, label string, got decimal.Decimal, want string) {
	t.Helper()

	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("expected %s %s, got %s", label, want, got.String())
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
