package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestError_Classification(t *testing.T) {
	t.Run("Is matches on kind", func(t *testing.T) {
		err := fmt.Errorf("wrapped: %w", newError(KindPermissionDenied, nil, "caller %s", "u1"))
		assert.True(t, errors.Is(err, ErrPermissionDenied))
		assert.False(t, errors.Is(err, ErrCallerNotFound))
		assert.Equal(t, KindPermissionDenied, KindOf(err))
	})

	t.Run("Unwrap exposes cause", func(t *testing.T) {
		cause := errors.New("socket closed")
		err := newError(KindGatewayFault, cause, "batch %d", 2)
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "GatewayFault: batch 2: socket closed", err.Error())
	})

	t.Run("Unclassified errors have no kind", func(t *testing.T) {
		assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	})

	t.Run("Expired deadline becomes Timeout", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-ctx.Done()
		err := gatewayError(ctx, errors.New("rpc error"), "topic send")
		assert.Equal(t, KindTimeout, err.Kind)
	})

	t.Run("Other gateway failures are faults", func(t *testing.T) {
		err := gatewayError(context.Background(), errors.New("unavailable"), "topic send")
		assert.Equal(t, KindGatewayFault, err.Kind)
	})
}
