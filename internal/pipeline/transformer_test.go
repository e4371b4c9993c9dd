package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-bulkpush-service/internal/pipeline"
)

func TestQueuedDispatchTransformer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	testCases := []struct {
		name                  string
		payload               string
		expectError           bool
		expectedErrorContains string
	}{
		{
			name:    "Happy Path - Valid Payload",
			payload: `{"callerId":"admin","request":{"tokens":["a",null,3],"notification":{"title":"t","body":"b"},"data":{"k":"v"}}}`,
		},
		{
			name:                  "Failure - Malformed JSON",
			payload:               "not-json",
			expectError:           true,
			expectedErrorContains: "failed to unmarshal queued dispatch",
		},
		{
			name:                  "Failure - Missing Caller",
			payload:               `{"request":{"topic":"news","notification":{"title":"t","body":"b"}}}`,
			expectError:           true,
			expectedErrorContains: "callerId is required",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := &messagepipeline.Message{
				MessageData: messagepipeline.MessageData{ID: "msg-1", Payload: []byte(tc.payload)},
			}
			queued, skip, err := pipeline.QueuedDispatchTransformer(ctx, msg)

			if tc.expectError {
				require.Error(t, err)
				assert.True(t, skip)
				assert.Contains(t, err.Error(), tc.expectedErrorContains)
				return
			}
			require.NoError(t, err)
			assert.False(t, skip)
			assert.Equal(t, "admin", queued.CallerID)
			assert.Len(t, queued.Request.Tokens, 3)
			assert.Equal(t, "t", queued.Request.Notification.Title)
			assert.Equal(t, map[string]string{"k": "v"}, queued.Request.Data)
		})
	}
}
