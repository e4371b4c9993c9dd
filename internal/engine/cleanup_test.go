package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-bulkpush-service/internal/metrics"
	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

func TestCleaner_Clean(t *testing.T) {
	ctx := context.Background()

	t.Run("Clears every holder of each token", func(t *testing.T) {
		store := new(mockDirectory)
		store.On("LookupByToken", mock.Anything, "dead-1", 5).
			Return([]dispatch.UserRecord{{ID: "u1"}, {ID: "u2"}}, nil)
		store.On("LookupByToken", mock.Anything, "dead-2", 5).
			Return([]dispatch.UserRecord{}, nil)
		store.On("ClearToken", mock.Anything, "u1").Return(nil)
		store.On("ClearToken", mock.Anything, "u2").Return(nil)

		cleaner := NewCleaner(store, 5, 4, 1, nil, newTestLogger())
		err := cleaner.Clean(ctx, CleanupTask{DispatchID: "d1", Tokens: []string{"dead-1", "dead-2"}})

		require.NoError(t, err)
		store.AssertExpectations(t)
	})

	t.Run("Continues past failures and combines them", func(t *testing.T) {
		store := new(mockDirectory)
		store.On("LookupByToken", mock.Anything, "dead-1", 5).Return(nil, errors.New("lookup failed"))
		store.On("LookupByToken", mock.Anything, "dead-2", 5).
			Return([]dispatch.UserRecord{{ID: "u1"}, {ID: "u2"}}, nil)
		store.On("ClearToken", mock.Anything, "u1").Return(errors.New("update failed"))
		store.On("ClearToken", mock.Anything, "u2").Return(nil)

		cleaner := NewCleaner(store, 5, 4, 1, metrics.New(), newTestLogger())
		err := cleaner.Clean(ctx, CleanupTask{Tokens: []string{"dead-1", "dead-2"}})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "lookup failed")
		assert.Contains(t, err.Error(), "update failed")
		store.AssertCalled(t, "ClearToken", mock.Anything, "u2")
	})
}

func TestCleaner_Queue(t *testing.T) {
	t.Run("Full queue drops task", func(t *testing.T) {
		cleaner := NewCleaner(new(mockDirectory), 5, 1, 1, nil, newTestLogger())

		assert.True(t, cleaner.Enqueue(CleanupTask{Tokens: []string{"a"}}))
		assert.False(t, cleaner.Enqueue(CleanupTask{Tokens: []string{"b"}}))
	})

	t.Run("Empty task is accepted without queueing", func(t *testing.T) {
		cleaner := NewCleaner(new(mockDirectory), 5, 1, 1, nil, newTestLogger())
		assert.True(t, cleaner.Enqueue(CleanupTask{}))
		assert.True(t, cleaner.Enqueue(CleanupTask{Tokens: []string{"a"}}))
	})

	t.Run("Workers drain queued tasks until cancelled", func(t *testing.T) {
		store := new(mockDirectory)
		store.On("LookupByToken", mock.Anything, "dead", 5).Return([]dispatch.UserRecord{{ID: "u9"}}, nil)
		cleared := make(chan string, 1)
		store.On("ClearToken", mock.Anything, "u9").Return(nil).Run(func(args mock.Arguments) {
			cleared <- args.String(1)
		})

		cleaner := NewCleaner(store, 5, 8, 2, nil, newTestLogger())
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- cleaner.Run(ctx) }()

		require.True(t, cleaner.Enqueue(CleanupTask{DispatchID: "d", Tokens: []string{"dead"}}))

		select {
		case userID := <-cleared:
			assert.Equal(t, "u9", userID)
		case <-time.After(2 * time.Second):
			t.Fatal("queued task was not cleaned")
		}

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("cleaner did not stop")
		}
	})
}
