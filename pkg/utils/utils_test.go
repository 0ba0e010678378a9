package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecoverAsError(t *testing.T) {
	t.Run("recovers from panic", func(t *testing.T) {
		fn := func() (err error) {
			defer RecoverAsError(&err)
			panic("test panic")
		}

		err := fn()
		var panicErr *PanicError
		if !errors.As(err, &panicErr) {
			t.Fatalf("expected PanicError, got %T", err)
		}
		if panicErr.Value != "test panic" {
			t.Errorf("expected panic value 'test panic', got %v", panicErr.Value)
		}
		if panicErr.StackTrace == "" {
			t.Error("expected stack trace to be populated")
		}
	})

	t.Run("preserves original error", func(t *testing.T) {
		originalErr := errors.New("original error")
		fn := func() (err error) {
			defer RecoverAsError(&err)
			return originalErr
		}
		if err := fn(); err != originalErr {
			t.Errorf("expected original error, got %v", err)
		}
	})
}

func TestSafeGo(t *testing.T) {
	errCh := make(chan error, 1)
	SafeGo(func() { panic("boom") }, func(err error) { errCh <- err })

	select {
	case err := <-errCh:
		assert.EqualError(t, err, "panic: boom")
	case <-time.After(time.Second):
		t.Fatal("panic was not reported")
	}
}

func TestBatch(t *testing.T) {
	batches := Batch([]int{1, 2, 3, 4, 5}, 2)
	assert.Equal(t, [][]int{{1, 2}, {3, 4}, {5}}, batches)
	assert.Nil(t, Batch([]int{}, 3))
	assert.Equal(t, [][]int{{1, 2, 3}}, Batch([]int{1, 2, 3}, 0))
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		got, err := Retry(context.Background(), cfg, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("503 service unavailable")
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausts retries", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("timeout")
		})
		assert.ErrorContains(t, err, "failed after 3 retries")
		assert.Equal(t, 4, calls)
	})

	t.Run("stops on non-retryable error", func(t *testing.T) {
		c := cfg
		c.Retryable = func(err error) bool { return false }
		calls := 0
		_, err := Retry(context.Background(), c, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("bad request")
		})
		assert.EqualError(t, err, "bad request")
		assert.Equal(t, 1, calls)
	})

	t.Run("stops when context is cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Retry(ctx, RetryConfig{MaxRetries: 2, InitialDelay: time.Hour}, func(context.Context) (int, error) {
			return 0, errors.New("timeout")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryDelay(t *testing.T) {
	cfg := RetryConfig{MaxRetries: 5, InitialDelay: 500 * time.Millisecond, MaxDelay: 30 * time.Second, BackoffMultiplier: 2}
	assert.Equal(t, 500*time.Millisecond, cfg.Delay(1))
	assert.Equal(t, time.Second, cfg.Delay(2))
	assert.Equal(t, 2*time.Second, cfg.Delay(3))
	assert.Equal(t, 30*time.Second, cfg.Delay(10))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestTopKByScore(t *testing.T) {
	items := []ScoredItem[string]{{"a", 0.2}, {"b", 0.9}, {"c", 0.2}, {"d", 0.5}}
	top := TopKByScore(items, 3)
	require.Len(t, top, 3)
	assert.Equal(t, "b", top[0].Item)
	assert.Equal(t, "d", top[1].Item)
	assert.Equal(t, "a", top[2].Item)
	assert.Len(t, TopKByScore(items, 0), 4)
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, []string{"Paris", "Rome"}, DedupeStrings([]string{"Paris", " paris ", "", "Rome"}))
	assert.Len(t, NewRunID(), 36)
}
