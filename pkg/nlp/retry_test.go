package nlp

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/kgroute/pkg/types"
	"github.com/soundprediction/kgroute/pkg/utils"
)

// mockClient fails its first failUntilCall calls with errorToReturn.
type mockClient struct {
	callCount        int
	failUntilCall    int
	errorToReturn    error
	responseToReturn *types.Response
	lastSchema       any
	closed           bool
}

func (m *mockClient) Chat(ctx context.Context, messages []types.Message) (*types.Response, error) {
	m.callCount++
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	if m.responseToReturn != nil {
		return m.responseToReturn, nil
	}
	return &types.Response{Content: "success"}, nil
}

func (m *mockClient) ChatWithStructuredOutput(ctx context.Context, messages []types.Message, schema any) (*types.Response, error) {
	m.callCount++
	m.lastSchema = schema
	if m.callCount <= m.failUntilCall {
		return nil, m.errorToReturn
	}
	return &types.Response{Content: `{"status": "success"}`}, nil
}

func (m *mockClient) Close() error {
	m.closed = true
	return nil
}

func (m *mockClient) GetCapabilities() []TaskCapability {
	return []TaskCapability{TaskTextGeneration}
}

func fastRetry(maxRetries int) *utils.RetryConfig {
	return &utils.RetryConfig{
		MaxRetries:        maxRetries,
		InitialDelay:      10 * time.Millisecond,
		MaxDelay:          100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

var testMessages = []types.Message{{Role: types.RoleUser, Content: "test"}}

func TestRetryClientAttempts(t *testing.T) {
	tests := []struct {
		name      string
		fail      int
		err       error
		wantCalls int
		wantErr   bool
	}{
		{"first try", 0, nil, 1, false},
		{"recovers from 500", 2, errors.New("500 internal server error"), 3, false},
		{"recovers from rate limit", 2, NewRateLimitError("slow down"), 3, false},
		{"gives up after max retries", 10, errors.New("503 service unavailable"), 4, true},
		{"no retry on 400", 10, errors.New("400 bad request"), 1, true},
		{"no retry on refusal", 10, NewRefusalError("no"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockClient{failUntilCall: tt.fail, errorToReturn: tt.err}
			resp, err := NewRetryClient(mock, fastRetry(3)).Chat(context.Background(), testMessages)
			assert.Equal(t, tt.wantCalls, mock.callCount)
			if tt.wantErr {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "success", resp.Content)
		})
	}
}

func TestRetryClientBacksOff(t *testing.T) {
	mock := &mockClient{failUntilCall: 2, errorToReturn: errors.New("502 bad gateway")}
	start := time.Now()
	_, err := NewRetryClient(mock, fastRetry(3)).Chat(context.Background(), testMessages)
	require.NoError(t, err)
	// 10ms then 20ms
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRetryClientForwardsSchema(t *testing.T) {
	mock := &mockClient{}
	schema := map[string]any{"type": "object"}
	_, err := NewRetryClient(mock, fastRetry(1)).ChatWithStructuredOutput(context.Background(), testMessages, schema)
	require.NoError(t, err)
	assert.Equal(t, schema, mock.lastSchema)
}

func TestRetryClientStopsOnCancel(t *testing.T) {
	mock := &mockClient{failUntilCall: 10, errorToReturn: errors.New("500 internal server error")}
	client := NewRetryClient(mock, &utils.RetryConfig{
		MaxRetries:        5,
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          time.Second,
		BackoffMultiplier: 2.0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.Chat(ctx, testMessages)
	require.Error(t, err)
	assert.Less(t, mock.callCount, 6)
}

type statusError struct{ code int }

func (e statusError) Error() string       { return "request failed" }
func (e statusError) HTTPStatusCode() int { return e.code }

func TestIsRetryableError(t *testing.T) {
	retryable := []error{
		NewRateLimitError(),
		fmt.Errorf("call: %w", ErrRateLimit),
		errors.New("504 gateway timeout"),
		errors.New("request timeout"),
		errors.New("connection reset by peer"),
		errors.New("dial tcp: connection refused"),
		errors.New("too many requests"),
		statusError{code: 503},
		fmt.Errorf("x: %w", statusError{code: 429}),
	}
	for _, err := range retryable {
		assert.True(t, IsRetryableError(err), err.Error())
	}

	final := []error{
		nil,
		errors.New("401 unauthorized"),
		NewRefusalError("cannot help with that"),
		context.Canceled,
		statusError{code: 404},
	}
	for _, err := range final {
		assert.False(t, IsRetryableError(err), "%v", err)
	}
}

func TestRetryClientDelegates(t *testing.T) {
	mock := &mockClient{}
	client := NewRetryClient(mock, nil)
	assert.True(t, HasCapability(client, TaskTextGeneration))
	require.NoError(t, client.Close())
	assert.True(t, mock.closed)
}
