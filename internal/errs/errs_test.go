package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	err := Newf(CodeValidation, "duplicate line id %q", "a_1")
	wrapped := fmt.Errorf("ingest: %w", err)
	assert.Equal(t, CodeValidation, CodeOf(wrapped))
	assert.Equal(t, CodeRuntime, CodeOf(errors.New("boom")))
}

func TestAsErrorPreservesDetails(t *testing.T) {
	err := New(CodeIngest, "row 4 malformed").
		WithNext("fix the input file and rerun ingest").
		WithDetail("row", 4)
	got := AsError(fmt.Errorf("phase: %w", err))
	assert.Equal(t, CodeIngest, got.Code)
	assert.Equal(t, "fix the input file and rerun ingest", got.NextAction)
	assert.Equal(t, 4, got.Details["row"])
}

func TestAsErrorUntyped(t *testing.T) {
	got := AsError(errors.New("nil pointer"))
	assert.Equal(t, CodeRuntime, got.Code)
	assert.Equal(t, "nil pointer", got.Message)
}
