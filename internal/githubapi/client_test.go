package githubapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

type fakeDoer struct {
	responses []*http.Response
	errors    []error
	callCount int
}

func (d *fakeDoer) Do(_ *http.Request) (*http.Response, error) {
	idx := d.callCount
	d.callCount++

	var resp *http.Response
	if idx < len(d.responses) {
		resp = d.responses[idx]
	}
	var err error
	if idx < len(d.errors) {
		err = d.errors[idx]
	}
	return resp, err
}

func newResponse(status int, headers map[string]string, body string) *http.Response {
	header := make(http.Header)
	for key, value := range headers {
		header.Set(key, value)
	}
	responseBody := io.NopCloser(strings.NewReader(body))
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       responseBody,
	}
}

func TestClientDo(t *testing.T) {
	t.Parallel()

	now := time.Unix(1739836800, 0)
	testCases := []struct {
		name          string
		doer          *fakeDoer
		retryConfig   RetryConfig
		ratePolicy    RateLimitPolicy
		wantAttempts  int
		wantErr       bool
		wantStatus    int
		wantSleepCall int
	}{
		{
			name: "retries_transient_5xx_and_succeeds",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusInternalServerError, map[string]string{}, "boom"),
					newResponse(http.StatusOK, map[string]string{"X-RateLimit-Remaining": "4999"}, "ok"),
				},
			},
			retryConfig: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     5 * time.Second,
			},
			ratePolicy: RateLimitPolicy{
				MinRemainingThreshold: 200,
				MinResetBuffer:        10 * time.Second,
				SecondaryLimitBackoff: 60 * time.Second,
				Now: func() time.Time {
					return now
				},
			},
			wantAttempts:  2,
			wantErr:       false,
			wantStatus:    http.StatusOK,
			wantSleepCall: 1,
		},
		{
			name: "does_not_retry_permanent_4xx",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusNotFound, map[string]string{}, "not found"),
				},
			},
			retryConfig: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     5 * time.Second,
			},
			ratePolicy: RateLimitPolicy{
				MinRemainingThreshold: 200,
				MinResetBuffer:        10 * time.Second,
				SecondaryLimitBackoff: 60 * time.Second,
				Now: func() time.Time {
					return now
				},
			},
			wantAttempts:  1,
			wantErr:       false,
			wantStatus:    http.StatusNotFound,
			wantSleepCall: 0,
		},
		{
			name: "secondary_limit_waits_then_retries",
			doer: &fakeDoer{
				responses: []*http.Response{
					newResponse(http.StatusForbidden, map[string]string{"Retry-After": "90"}, "secondary"),
					newResponse(http.StatusOK, map[string]string{"X-RateLimit-Remaining": "4999"}, "ok"),
				},
			},
			retryConfig: RetryConfig{
				MaxAttempts:    3,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     5 * time.Second,
			},
			ratePolicy: RateLimitPolicy{
				MinRemainingThreshold: 200,
				MinResetBuffer:        10 * time.Second,
				SecondaryLimitBackoff: 60 * time.Second,
				Now: func() time.Time {
					return now
				},
			},
			wantAttempts:  2,
			wantErr:       false,
			wantStatus:    http.StatusOK,
			wantSleepCall: 1,
		},
		{
			name: "network_errors_retry_until_exhausted",
			doer: &fakeDoer{
				errors: []error{
					fmt.Errorf("network down"),
					fmt.Errorf("network down"),
				},
			},
			retryConfig: RetryConfig{
				MaxAttempts:    2,
				InitialBackoff: 1 * time.Second,
				MaxBackoff:     5 * time.Second,
			},
			ratePolicy: RateLimitPolicy{
				MinRemainingThreshold: 200,
				MinResetBuffer:        10 * time.Second,
				SecondaryLimitBackoff: 60 * time.Second,
				Now: func() time.Time {
					return now
				},
			},
			wantAttempts:  2,
			wantErr:       true,
			wantStatus:    0,
			wantSleepCall: 1,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sleepCalls := 0
			client := NewClient(tc.doer, tc.retryConfig, tc.ratePolicy)
			client.Sleep = func(_ context.Context, _ time.Duration) error {
				sleepCalls++
				return nil
			}

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://api.github.com/repos", nil)
			if err != nil {
				t.Fatalf("NewRequestWithContext() unexpected error: %v", err)
			}

			resp, metadata, callErr := client.Do(req)
			if resp != nil && resp.Body != nil {
				t.Cleanup(func() {
					if closeErr := resp.Body.Close(); closeErr != nil {
						t.Fatalf("response body close failed: %v", closeErr)
					}
				})
			}
			if tc.wantErr && callErr == nil {
				t.Fatalf("Do() expected error, got nil")
			}
			if !tc.wantErr && callErr != nil {
				t.Fatalf("Do() unexpected error: %v", callErr)
			}
			if metadata.Attempts != tc.wantAttempts {
				t.Fatalf("Attempts = %d, want %d", metadata.Attempts, tc.wantAttempts)
			}
			if tc.wantStatus == 0 {
				if resp != nil {
					t.Fatalf("response = %v, want nil", resp)
				}
			} else if resp == nil || resp.StatusCode != tc.wantStatus {
				got := 0
				if resp != nil {
					got = resp.StatusCode
				}
				t.Fatalf("status = %d, want %d", got, tc.wantStatus)
			}
			if sleepCalls != tc.wantSleepCall {
				t.Fatalf("sleepCalls = %d, want %d", sleepCalls, tc.wantSleepCall)
			}
		})
	}
}

type recordingDoer struct {
	bodies    []string
	responses []*http.Response
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	payload := ""
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		payload = string(raw)
	}
	d.bodies = append(d.bodies, payload)
	resp := d.responses[len(d.bodies)-1]
	return resp, nil
}

type countingObserver struct {
	statuses []EndpointStatus
}

func (o *countingObserver) ObserveRequest(status EndpointStatus, _ Decision) {
	o.statuses = append(o.statuses, status)
}

func TestClientDoReplaysRequestBody(t *testing.T) {
	t.Parallel()

	doer := &recordingDoer{
		responses: []*http.Response{
			newResponse(http.StatusBadGateway, map[string]string{}, "bad gateway"),
			newResponse(http.StatusOK, map[string]string{"X-RateLimit-Remaining": "4999"}, `{"data":{}}`),
		},
	}
	observer := &countingObserver{}
	client := NewClient(doer, RetryConfig{MaxAttempts: 2}, RateLimitPolicy{}).WithObserver(observer)
	client.Sleep = func(context.Context, time.Duration) error { return nil }

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		"https://api.github.com/graphql",
		strings.NewReader(`{"query":"{ viewer { login } }"}`),
	)
	if err != nil {
		t.Fatalf("NewRequestWithContext() unexpected error: %v", err)
	}

	resp, err := client.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() unexpected error: %v", err)
	}
	_ = resp.Body.Close()

	if len(doer.bodies) != 2 {
		t.Fatalf("doer calls = %d, want 2", len(doer.bodies))
	}
	for i, body := range doer.bodies {
		if body != `{"query":"{ viewer { login } }"}` {
			t.Fatalf("attempt %d body = %q, want replayed payload", i+1, body)
		}
	}
	if len(observer.statuses) != 2 ||
		observer.statuses[0] != EndpointStatusUnavailable ||
		observer.statuses[1] != EndpointStatusOK {
		t.Fatalf("observed statuses = %v, want [unavailable ok]", observer.statuses)
	}
}

func TestClientDoStopsWaitingWhenContextEnds(t *testing.T) {
	t.Parallel()

	now := time.Now()
	testCases := []struct {
		name        string
		response    func() *http.Response
		retryConfig RetryConfig
		ratePolicy  RateLimitPolicy
	}{
		{
			name: "below_threshold_wait",
			response: func() *http.Response {
				return newResponse(http.StatusOK, map[string]string{
					"X-RateLimit-Remaining": "0",
					"X-RateLimit-Reset":     strconv.FormatInt(now.Add(time.Hour).Unix(), 10),
				}, "ok")
			},
			retryConfig: RetryConfig{MaxAttempts: 3},
			ratePolicy: RateLimitPolicy{
				MinRemainingThreshold: 50,
				MinResetBuffer:        5 * time.Second,
				Now:                   func() time.Time { return now },
			},
		},
		{
			name: "transient_status_backoff",
			response: func() *http.Response {
				return newResponse(http.StatusBadGateway, map[string]string{}, "bad gateway")
			},
			retryConfig: RetryConfig{MaxAttempts: 3, InitialBackoff: time.Hour},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			doer := &fakeDoer{responses: []*http.Response{tc.response(), tc.response(), tc.response()}}
			client := NewClient(doer, tc.retryConfig, tc.ratePolicy)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/repos", nil)
			if err != nil {
				t.Fatalf("NewRequestWithContext() unexpected error: %v", err)
			}

			started := time.Now()
			resp, metadata, callErr := client.Do(req)
			elapsed := time.Since(started)

			if resp != nil {
				t.Fatalf("response = %v, want nil", resp)
			}
			if !errors.Is(callErr, context.DeadlineExceeded) {
				t.Fatalf("Do() error = %v, want context.DeadlineExceeded", callErr)
			}
			if metadata.Attempts != 1 {
				t.Fatalf("Attempts = %d, want 1", metadata.Attempts)
			}
			if elapsed > 5*time.Second {
				t.Fatalf("Do() returned after %s, want prompt return on deadline", elapsed)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("sleepContext() unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext() error = %v, want context.Canceled", err)
	}
	if err := sleepContext(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("sleepContext(0) error = %v, want context.Canceled", err)
	}
}
