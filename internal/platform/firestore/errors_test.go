package firestore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code codes.Code
		kind Kind
	}{
		{codes.NotFound, KindNotFound},
		{codes.AlreadyExists, KindConflict},
		{codes.Aborted, KindConflict},
		{codes.FailedPrecondition, KindConflict},
		{codes.Unavailable, KindUnavailable},
		{codes.ResourceExhausted, KindUnavailable},
		{codes.PermissionDenied, KindUnknown},
	}
	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		require.True(t, errors.As(err, &repoErr), tc.code.String())
		assert.Equal(t, tc.kind, repoErr.Kind, tc.code.String())
		assert.Contains(t, err.Error(), "orders.get: ")
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	assert.Nil(t, WrapError("x", nil))
	assert.Equal(t, context.Canceled, WrapError("x", status.Error(codes.Canceled, "gone")))
	assert.Equal(t, context.DeadlineExceeded, WrapError("x", status.Error(codes.DeadlineExceeded, "slow")))

	wrapped := fmt.Errorf("outer: %w", context.Canceled)
	assert.Same(t, wrapped, WrapError("x", wrapped))
}

func TestWrapErrorKeepsInnerOp(t *testing.T) {
	inner := WrapError("orders.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("transaction", inner)
	assert.Equal(t, "orders.get: rpc error: code = NotFound desc = missing", outer.Error())
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(status.Error(codes.NotFound, "raw")))
	assert.True(t, IsNotFound(WrapError("get", status.Error(codes.NotFound, "wrapped"))))
	assert.True(t, IsNotFound(fmt.Errorf("ctx: %w", WrapError("get", status.Error(codes.NotFound, "deep")))))
	assert.False(t, IsNotFound(WrapError("get", status.Error(codes.Aborted, "conflict"))))
	assert.False(t, IsNotFound(nil))
}
