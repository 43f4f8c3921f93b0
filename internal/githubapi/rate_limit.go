package githubapi

import (
	"net/http"
	"strconv"
	"time"
)

// Rate-limit decision reasons.
const (
	ReasonSecondaryLimit = "secondary_limit"
	ReasonWithinBudget   = "within_budget"
	ReasonResetElapsed   = "reset_elapsed"
	ReasonBelowThreshold = "remaining_below_threshold"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
	// Present is false when the response carried no X-RateLimit-Remaining header.
	Present bool
}

// Decision says whether the next request may go out now or after WaitFor.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy decides pauses from GitHub's rate-limit headers.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	remainingRaw := header.Get("X-RateLimit-Remaining")
	parsed := RateLimitHeaders{
		Remaining: atoiOrZero(remainingRaw),
		Used:      atoiOrZero(header.Get("X-RateLimit-Used")),
		ResetUnix: parseInt64OrZero(header.Get("X-RateLimit-Reset")),
		Present:   remainingRaw != "",
	}
	if seconds := atoiOrZero(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && parsed.RetryAfter > 0:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && parsed.Present && parsed.Remaining == 0:
		// Primary limit exhausted; Evaluate waits for the reset.
	}
	return parsed
}

// Evaluate decides whether calls may continue or should pause.
// Responses without rate-limit headers are always allowed.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		return Decision{
			Allow:   false,
			WaitFor: max(p.SecondaryLimitBackoff, headers.RetryAfter),
			Reason:  ReasonSecondaryLimit,
		}
	}
	if !headers.Present || headers.Remaining >= p.MinRemainingThreshold {
		return Decision{Allow: true, Reason: ReasonWithinBudget}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{Allow: true, Reason: ReasonResetElapsed}
	}
	return Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  ReasonBelowThreshold,
	}
}

func atoiOrZero(raw string) int {
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64OrZero(raw string) int64 {
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
