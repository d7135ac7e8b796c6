// Package ratelimit reduces independent sliding-window counters into one
// allow/deny decision with HTTP-facing metadata.
package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Result is one axis check as reported by the counter store.
type Result struct {
	Allowed      bool
	CurrentCount int
	LimitMax     int
	ResetAt      time.Time
}

// Checker is the external atomic sliding-window counter. An implementation
// must be safe for concurrent use; each call counts one request against the
// identifier's trailing window.
type Checker interface {
	Check(ctx context.Context, identifier string, maxRequests, windowSeconds int) (Result, error)
}

// CheckRequest names the identity axes of one inbound request. KeyID is empty
// for session-authenticated callers.
type CheckRequest struct {
	KeyID  string
	UserID string
	IP     string
	Plan   string
}

// Decision is the aggregate outcome. Headers always carry the limit,
// remaining count, and reset time of the primary axis; Retry-After is present
// only on denial.
type Decision struct {
	Allowed bool
	Headers map[string]string
	Primary Result
}

type Aggregator struct {
	checker       Checker
	windowSeconds int
	log           zerolog.Logger
}

func NewAggregator(checker Checker, windowSeconds int, log zerolog.Logger) *Aggregator {
	if windowSeconds <= 0 {
		windowSeconds = 60
	}
	return &Aggregator{checker: checker, windowSeconds: windowSeconds, log: log}
}

type axisResult struct {
	axis   string
	result Result
}

// CheckAll runs the applicable axis checks concurrently and reduces them.
// Any axis denial denies the aggregate. A failing counter store never denies:
// the axis is treated as allowed with a zero count and the failure is logged.
func (a *Aggregator) CheckAll(ctx context.Context, req CheckRequest) Decision {
	limits := LimitsFor(req.Plan)

	type axisCheck struct {
		axis       string
		identifier string
		max        int
	}

	axes := make([]axisCheck, 0, 3)
	if req.KeyID != "" {
		axes = append(axes, axisCheck{"key", "key:" + req.KeyID, limits.PerKey})
	}
	axes = append(axes,
		axisCheck{"user", "user:" + req.UserID, limits.PerUser},
		axisCheck{"ip", "ip:" + req.IP, limits.PerIP},
	)

	results := make([]axisResult, len(axes))
	var wg sync.WaitGroup
	for i, ax := range axes {
		wg.Add(1)
		go func(i int, ax axisCheck) {
			defer wg.Done()
			results[i] = axisResult{axis: ax.axis, result: a.checkOne(ctx, ax.identifier, ax.max)}
		}(i, ax)
	}
	wg.Wait()

	var denied *axisResult
	for i := range results {
		if !results[i].result.Allowed {
			denied = &results[i]
			break
		}
	}

	primary := results[0]
	if denied != nil {
		primary = *denied
	}

	// Headers come from the key-level result when present, else user-level.
	headerSource := results[0].result
	for _, r := range results {
		if r.axis == "key" {
			headerSource = r.result
			break
		}
		if r.axis == "user" {
			headerSource = r.result
		}
	}

	remaining := headerSource.LimitMax - headerSource.CurrentCount
	if remaining < 0 {
		remaining = 0
	}
	headers := map[string]string{
		"X-RateLimit-Limit":     strconv.Itoa(headerSource.LimitMax),
		"X-RateLimit-Remaining": strconv.Itoa(remaining),
		"X-RateLimit-Reset":     strconv.FormatInt(headerSource.ResetAt.Unix(), 10),
	}
	if denied != nil {
		headers["Retry-After"] = "60"
	}

	return Decision{
		Allowed: denied == nil,
		Headers: headers,
		Primary: primary.result,
	}
}

// checkOne fails open: counter store errors allow the request.
func (a *Aggregator) checkOne(ctx context.Context, identifier string, max int) Result {
	result, err := a.checker.Check(ctx, identifier, max, a.windowSeconds)
	if err != nil {
		a.log.Error().Err(err).Str("identifier", identifier).Msg("rate limit check failed, allowing request")
		return Result{
			Allowed:      true,
			CurrentCount: 0,
			LimitMax:     max,
			ResetAt:      time.Now().Add(time.Duration(a.windowSeconds) * time.Second),
		}
	}
	return result
}
