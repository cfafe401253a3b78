package errortypes

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityHelpers(t *testing.T) {
	warning := &Warning{Message: "dropped floor signal", WarningCode: FloorNoSignalWarningCode}
	fatal := &BadInput{Message: "empty request"}
	plain := errors.New("plain error")

	assert.True(t, IsWarning(warning))
	assert.False(t, IsWarning(fatal))
	assert.False(t, IsWarning(plain))

	errs := []error{warning, fatal, plain}
	assert.True(t, ContainsFatalError(errs))
	assert.False(t, ContainsFatalError([]error{warning}))

	assert.Equal(t, []error{fatal, plain}, FatalOnly(errs))
	assert.Equal(t, []error{warning}, WarningOnly(errs))
}

func TestReadCode(t *testing.T) {
	assert.Equal(t, FloorBidRejectionWarningCode, ReadCode(&Warning{WarningCode: FloorBidRejectionWarningCode}))
	assert.Equal(t, BadInputErrorCode, ReadCode(&BadInput{}))
	assert.Equal(t, UnknownErrorCode, ReadCode(errors.New("plain error")))
}
