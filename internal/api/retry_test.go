package api

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestRetryConfig_ShouldRetry(t *testing.T) {
	t.Parallel()
	rc := DefaultRetryConfig()

	tests := []struct {
		name       string
		attempt    int
		statusCode int
		want       bool
	}{
		{"500 first attempt", 0, http.StatusInternalServerError, true},
		{"503 first attempt", 0, http.StatusServiceUnavailable, true},
		{"429 first attempt", 0, http.StatusTooManyRequests, true},
		{"408 first attempt", 0, http.StatusRequestTimeout, true},
		{"400 never retried", 0, http.StatusBadRequest, false},
		{"401 never retried", 0, http.StatusUnauthorized, false},
		{"404 never retried", 0, http.StatusNotFound, false},
		{"200 never retried", 0, http.StatusOK, false},
		{"500 at retry limit", 3, http.StatusInternalServerError, false},
		{"500 past retry limit", 5, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rc.ShouldRetry(tt.attempt, tt.statusCode); got != tt.want {
				t.Errorf("ShouldRetry(%d, %d) = %v, want %v", tt.attempt, tt.statusCode, got, tt.want)
			}
		})
	}
}

func TestRetryConfig_DelayBounds(t *testing.T) {
	t.Parallel()
	rc := DefaultRetryConfig()

	for attempt := 0; attempt < 8; attempt++ {
		delay := rc.Delay(attempt)
		if delay < 0 {
			t.Errorf("attempt %d: negative delay %v", attempt, delay)
		}
		// MaxDelay plus the jitter band is the hard ceiling.
		ceiling := time.Duration(float64(rc.MaxDelay) * (1 + rc.Jitter))
		if delay > ceiling {
			t.Errorf("attempt %d: delay %v exceeds ceiling %v", attempt, delay, ceiling)
		}
	}
}

func TestRetryConfig_DelayGrows(t *testing.T) {
	t.Parallel()
	rc := &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   time.Minute,
		Multiplier: 2.0,
		// No jitter so growth is exact.
	}

	if d0, d1 := rc.Delay(0), rc.Delay(1); d1 != 2*d0 {
		t.Errorf("delay did not double: %v then %v", d0, d1)
	}
}

func TestRetryConfig_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	rc := &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Hour,
		MaxDelay:   time.Hour,
		Multiplier: 1.0,
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rc.Wait(ctx, 0); err != context.Canceled {
		t.Errorf("Wait with cancelled context = %v, want context.Canceled", err)
	}
}
