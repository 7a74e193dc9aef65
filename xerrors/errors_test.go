package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestCloneKeepsCatalogPristine(t *testing.T) {
	e := ErrInvalidPositive.Clone().WithContext("sigma", -0.45)

	assert.Equal(t, -0.45, e.Context["sigma"])
	assert.Empty(t, ErrInvalidPositive.Context)
	assert.True(t, errors.Is(e, ErrInvalidPositive))
	assert.False(t, errors.Is(e, ErrInvalidSpotStrike))
	assert.NotEmpty(t, e.Stack)
}

func TestErrorsIsThroughWrapping(t *testing.T) {
	inner := ErrInvalidSteps.Clone()
	wrapped := fmt.Errorf("build lattice: %w", inner)

	require.ErrorIs(t, wrapped, ErrInvalidSteps)

	// 链上已有目录错误时保留其类型与错误码
	e := Wrap(wrapped, ErrInternal, "pricing failed")
	assert.Equal(t, ErrInvalidArg, e.Type)
	assert.Equal(t, 400104, e.Code)
	assert.Equal(t, "pricing failed", e.Message)
	assert.ErrorIs(t, e, ErrInvalidSteps)

	plain := Wrap(errors.New("disk full"), ErrInternal, "cache init failed")
	assert.Equal(t, ErrInternal, plain.Type)
	assert.Nil(t, Wrap(nil, ErrInternal, "noop"))

	found, ok := FromError(wrapped)
	require.True(t, ok)
	assert.Equal(t, 400104, found.Code)
	_, ok = FromError(errors.New("plain"))
	assert.False(t, ok)
}

func TestProtocolMapping(t *testing.T) {
	tests := []struct {
		err      *Error
		httpCode int
		grpcCode codes.Code
	}{
		{ErrInvalidSpotStrike, http.StatusBadRequest, codes.InvalidArgument},
		{ErrProbabilityOutOfRange, http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{ErrServiceClosed, http.StatusServiceUnavailable, codes.Unavailable},
		{New(ErrNotFound, 404, "missing", "", nil), http.StatusNotFound, codes.NotFound},
		{New(ErrInternal, 500, "boom", "", nil), http.StatusInternalServerError, codes.Internal},
		{New(ErrorType(99), 500, "unmapped", "", nil), http.StatusInternalServerError, codes.Unknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.httpCode, tt.err.HTTPStatus(), tt.err.Message)
		assert.Equal(t, tt.grpcCode, tt.err.GRPCCode(), tt.err.Message)
		assert.Equal(t, tt.grpcCode, tt.err.ToGRPCStatus().Code())
	}
}

func TestErrorString(t *testing.T) {
	e := New(ErrInvalidArg, 400, "bad input", "", nil)
	assert.Equal(t, "[InvalidArg] 400: bad input", e.Error())

	e = ErrFractionalSteps.Clone().WithContext("M", "100.5").WithContext("T", 5)
	assert.Equal(t, "[InvalidArg] 400105: step count M must be an integer {M=100.5 T=5}", e.Error())

	e = New(ErrInternal, 500, "wrapped", "", errors.New("root"))
	assert.Equal(t, "[Internal] 500: wrapped: root", e.Error())
	assert.Equal(t, "Unknown", ErrorType(42).String())
}
