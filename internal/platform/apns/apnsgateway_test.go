package apns

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/sideshow/apns2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-bulkpush-service/pkg/dispatch"
)

type MockAPNSClient struct {
	mock.Mock
}

func (m *MockAPNSClient) PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error) {
	args := m.Called(ctx, n)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*apns2.Response), args.Error(1)
}

func TestGateway_SendMulticast(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()
	msg := &dispatch.Message{
		Title: "Hello iOS",
		Body:  "Body",
		Data:  map[string]string{"sentBy": "admin"},
		Apple: dispatch.AppleHints{Sound: "default", Badge: 1, ContentAvailable: true, Priority: "10"},
	}

	t.Run("Outcomes align with tokens", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gw := newGateway(mockClient, "com.test.app", logger)

		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "good" && n.Topic == "com.test.app" && n.Priority == apns2.PriorityHigh
		})).Return(&apns2.Response{StatusCode: http.StatusOK, ApnsID: "apns-1"}, nil)
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "gone"
		})).Return(&apns2.Response{StatusCode: http.StatusGone, Reason: apns2.ReasonUnregistered}, nil)
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "bad"
		})).Return(&apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonBadDeviceToken}, nil)
		mockClient.On("PushWithContext", mock.Anything, mock.MatchedBy(func(n *apns2.Notification) bool {
			return n.DeviceToken == "elsewhere"
		})).Return(&apns2.Response{StatusCode: http.StatusBadRequest, Reason: apns2.ReasonDeviceTokenNotForTopic}, nil)

		outcomes, err := gw.SendMulticast(ctx, msg, []string{"good", "gone", "bad", "elsewhere"})

		require.NoError(t, err)
		require.Len(t, outcomes, 4)
		assert.Equal(t, dispatch.TokenOutcome{Success: true, MessageID: "apns-1"}, outcomes[0])
		assert.Equal(t, dispatch.ErrorCodeTokenNotRegistered, outcomes[1].ErrorCode)
		assert.Equal(t, "apns/BadDeviceToken", outcomes[2].ErrorCode)
		assert.Equal(t, "apns/DeviceTokenNotForTopic", outcomes[3].ErrorCode)
		for _, o := range outcomes[2:] {
			assert.False(t, dispatch.IsPermanentTokenError(o.ErrorCode))
		}
	})

	t.Run("Transport failure aborts the batch", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gw := newGateway(mockClient, "com.test.app", logger)
		mockClient.On("PushWithContext", mock.Anything, mock.Anything).
			Return(nil, errors.New("dial tcp: lookup api.push.apple.com: no such host")).Once()

		outcomes, err := gw.SendMulticast(ctx, msg, []string{"t1", "t2", "t3"})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such host")
		assert.Nil(t, outcomes)
		mockClient.AssertNumberOfCalls(t, "PushWithContext", 1)
	})

	t.Run("Cancelled context aborts the batch", func(t *testing.T) {
		mockClient := new(MockAPNSClient)
		gw := newGateway(mockClient, "com.test.app", logger)
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := gw.SendMulticast(cancelled, msg, []string{"good"})

		assert.ErrorIs(t, err, context.Canceled)
		mockClient.AssertNotCalled(t, "PushWithContext", mock.Anything, mock.Anything)
	})
}

func TestGateway_SendToTopicUnsupported(t *testing.T) {
	gw := newGateway(new(MockAPNSClient), "com.test.app", slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := gw.SendToTopic(context.Background(), &dispatch.Message{}, "news")
	assert.ErrorIs(t, err, ErrTopicUnsupported)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, dispatch.ErrorCodeTokenNotRegistered, classify(apns2.ReasonExpiredToken))
	assert.Equal(t, dispatch.ErrorCodeTokenNotRegistered, classify(apns2.ReasonUnregistered))
	assert.Equal(t, "apns/DeviceTokenNotForTopic", classify(apns2.ReasonDeviceTokenNotForTopic))
	assert.Equal(t, "apns/BadDeviceToken", classify(apns2.ReasonBadDeviceToken))
	assert.Equal(t, "apns/TopicDisallowed", classify(apns2.ReasonTopicDisallowed))
	assert.Equal(t, dispatch.ErrorCodeUnknown, classify(""))
}

func TestBuildPayload(t *testing.T) {
	p := buildPayload(&dispatch.Message{
		Title:    "t",
		Body:     "b",
		ImageURL: "https://cdn/x.png",
		Data:     map[string]string{"k": "v"},
		Apple:    dispatch.AppleHints{Sound: "default", Badge: 1, ContentAvailable: true},
	})
	raw, err := p.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"aps": {
			"alert": {"title": "t", "body": "b"},
			"sound": "default",
			"badge": 1,
			"content-available": 1,
			"mutable-content": 1
		},
		"imageUrl": "https://cdn/x.png",
		"k": "v"
	}`, string(raw))
}
