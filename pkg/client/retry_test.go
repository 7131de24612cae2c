package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        100 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func serverErr() error {
	return &APIError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "unavailable"}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.MaxAttempts)
	}
	if cfg.InitialBackoff != time.Second {
		t.Errorf("InitialBackoff = %v, want 1s", cfg.InitialBackoff)
	}
	if cfg.MaxBackoff != 30*time.Second {
		t.Errorf("MaxBackoff = %v, want 30s", cfg.MaxBackoff)
	}
	if cfg.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", cfg.BackoffMultiplier)
	}
}

func TestRetryConfigForErrorClass(t *testing.T) {
	base := DefaultRetryConfig()

	tests := []struct {
		class       ErrorClass
		wantInitial time.Duration
		wantMax     time.Duration
	}{
		{ErrorClassServer, time.Second, 10 * time.Second},
		{ErrorClassRateLimit, 5 * time.Second, 60 * time.Second},
		{ErrorClassNetwork, 2 * time.Second, 30 * time.Second},
		{ErrorClassClient, time.Second, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			cfg := RetryConfigForErrorClass(tt.class, base)
			if cfg.InitialBackoff != tt.wantInitial {
				t.Errorf("InitialBackoff = %v, want %v", cfg.InitialBackoff, tt.wantInitial)
			}
			if cfg.MaxBackoff != tt.wantMax {
				t.Errorf("MaxBackoff = %v, want %v", cfg.MaxBackoff, tt.wantMax)
			}
			if cfg.MaxAttempts != base.MaxAttempts {
				t.Errorf("MaxAttempts = %d, want %d", cfg.MaxAttempts, base.MaxAttempts)
			}
		})
	}
}

func TestRetryWithBackoff_Success(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestRetryWithBackoff_SuccessAfterRetry(t *testing.T) {
	calls := 0
	start := time.Now()
	err := retryWithBackoff(context.Background(), fastRetryConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return serverErr()
		}
		return nil
	})
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
	// ~10ms + ~20ms, minus jitter
	if elapsed < 20*time.Millisecond {
		t.Errorf("Expected some backoff delay, got %v", elapsed)
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	calls := 0
	last := serverErr()
	err := retryWithBackoff(context.Background(), fastRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return last
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 503 {
		t.Errorf("exhausted error should wrap the last APIError, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", calls)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	calls := 0
	clientErr := &APIError{StatusCode: 400, ErrorClass: ErrorClassClient, Message: "bad request"}
	err := retryWithBackoff(context.Background(), fastRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return clientErr
	})

	if calls != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", calls)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, clientErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_PlainErrorIsNetwork(t *testing.T) {
	calls := 0
	err := retryWithBackoff(context.Background(), fastRetryConfig(), zerolog.Nop(), func() error {
		calls++
		return errors.New("connection reset")
	})

	if calls != 3 {
		t.Errorf("plain errors should be retried as network errors, got %d calls", calls)
	}
	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetryConfig()
	cfg.InitialBackoff = time.Second

	calls := 0
	err := retryWithBackoff(ctx, cfg, zerolog.Nop(), func() error {
		calls++
		cancel()
		return serverErr()
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetryWithBackoff_RateLimitLongerBackoff(t *testing.T) {
	cfg := fastRetryConfig()
	cfg.MaxAttempts = 2

	calls := 0
	start := time.Now()
	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), func() error {
		calls++
		return &APIError{StatusCode: 429, ErrorClass: ErrorClassRateLimit}
	})
	elapsed := time.Since(start)

	// 5x the initial backoff, minus 20% jitter
	if elapsed < 40*time.Millisecond {
		t.Errorf("rate limit backoff = %v, want >= 40ms", elapsed)
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestRetryWithBackoff_MaxBackoffCap(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        15 * time.Millisecond,
		BackoffMultiplier: 10.0,
	}

	start := time.Now()
	_ = retryWithBackoff(context.Background(), cfg, zerolog.Nop(), serverErr)
	elapsed := time.Since(start)

	// Uncapped the waits would be ~10ms, ~100ms and ~1s.
	if elapsed > time.Second {
		t.Errorf("backoff not capped: %v", elapsed)
	}
}
