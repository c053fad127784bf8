package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crewtui/config"
	"crewtui/model"
)

// ErrorKind classifies provider failures for the human-readable alert. The
// classification never changes control flow beyond retry-vs-switch; it exists
// so the user can tell a quota problem from an outage.
type ErrorKind string

const (
	ErrRateLimit   ErrorKind = "rate-limit/quota"
	ErrCredential  ErrorKind = "invalid-credential"
	ErrUnavailable ErrorKind = "service-unavailable"
	ErrTimeout     ErrorKind = "timeout"
	ErrUnknown     ErrorKind = "unknown"
)

// ClassifyError buckets a provider error by matching substrings and status
// code fragments in its text, case-insensitively.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrUnknown
	}
	text := strings.ToLower(err.Error())

	switch {
	case strings.Contains(text, "429"),
		strings.Contains(text, "rate limit"),
		strings.Contains(text, "rate-limit"),
		strings.Contains(text, "quota"),
		strings.Contains(text, "resource exhausted"):
		return ErrRateLimit
	case strings.Contains(text, "401"),
		strings.Contains(text, "403"),
		strings.Contains(text, "unauthorized"),
		strings.Contains(text, "authentication"),
		strings.Contains(text, "invalid api key"),
		strings.Contains(text, "credential"):
		return ErrCredential
	case strings.Contains(text, "502"),
		strings.Contains(text, "503"),
		strings.Contains(text, "unavailable"),
		strings.Contains(text, "connection refused"),
		strings.Contains(text, "no such host"):
		return ErrUnavailable
	case strings.Contains(text, "timeout"),
		strings.Contains(text, "timed out"),
		strings.Contains(text, "deadline exceeded"):
		return ErrTimeout
	}
	return ErrUnknown
}

// Fallback composes a primary provider and a local secondary into a single
// invoker that degrades instead of failing.
//
// The selection is session-scoped state owned by this struct, not a package
// global: once the primary is abandoned, the session sticks with the
// secondary, and a fresh Fallback starts over on the primary.
type Fallback struct {
	primary   model.Provider
	secondary model.Provider

	retries int
	backoff time.Duration

	// sleep is swappable so tests don't wait out real backoff
	sleep func(time.Duration)

	mu             sync.Mutex
	usingSecondary bool
}

// NewFallback creates a fallback invoker. retries is the number of additional
// attempts after the first failure (reference default 2); backoff grows
// linearly per attempt.
func NewFallback(primary, secondary model.Provider, retries int) *Fallback {
	if retries < 0 {
		retries = 0
	}
	return &Fallback{
		primary:   primary,
		secondary: secondary,
		retries:   retries,
		backoff:   time.Second,
		sleep:     time.Sleep,
	}
}

// UsingSecondary reports whether the session has switched to the fallback
// provider.
func (f *Fallback) UsingSecondary() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingSecondary
}

// CurrentName returns the active provider's identifier.
func (f *Fallback) CurrentName() string {
	return f.current().Name()
}

func (f *Fallback) current() model.Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingSecondary {
		return f.secondary
	}
	return f.primary
}

func (f *Fallback) switchToSecondary() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usingSecondary = true
}

// Invoke runs one model call with retry and fallback. It never returns an
// error: every failure path degrades to a synthetic response, optionally with
// a tagged alert string the caller surfaces as its own message.
//
// The currently selected provider is tried up to 1+retries times with linear
// backoff. If the primary is exhausted, the session switches to the secondary
// permanently and gets exactly one more attempt. If the secondary fails too,
// or was already the active provider, the response itself is a critical
// failure alert.
func (f *Fallback) Invoke(ctx context.Context, req model.ChatRequest, callback model.StreamCallback) (model.Response, string) {
	wasSecondary := f.UsingSecondary()
	active := f.current()

	resp, err := f.attempt(ctx, active, req, callback)
	if err == nil {
		return resp, ""
	}

	kind := ClassifyError(err)

	if wasSecondary {
		// No further fallback target
		return criticalResponse(active.Name(), kind, err), ""
	}

	alert := fmt.Sprintf("%s Provider %q failed (%s): %v. Switching to %q for the rest of the session.",
		model.AlertTag, active.Name(), kind, err, f.secondary.Name())

	if config.DebugLog != nil {
		config.DebugLog.Printf("[Fallback] %s", alert)
	}

	f.switchToSecondary()

	resp = model.Response{}
	if err := f.secondary.Chat(ctx, req, collectAndForward(&resp, callback)); err != nil {
		return criticalResponse(f.secondary.Name(), ClassifyError(err), err), ""
	}

	return resp, alert
}

// attempt calls one provider with retry and linear backoff. The response is
// re-collected from scratch on each attempt so partial output from a failed
// stream never leaks into the result.
func (f *Fallback) attempt(ctx context.Context, p model.Provider, req model.ChatRequest, callback model.StreamCallback) (model.Response, error) {
	var lastErr error

	for i := 0; i <= f.retries; i++ {
		if i > 0 {
			f.sleep(f.backoff * time.Duration(i))
		}

		resp := model.Response{}
		err := p.Chat(ctx, req, collectAndForward(&resp, callback))
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if config.DebugLog != nil {
			config.DebugLog.Printf("[Fallback] %s attempt %d/%d failed: %v", p.Name(), i+1, f.retries+1, err)
		}

		if ctx.Err() != nil {
			break
		}
	}

	return model.Response{}, lastErr
}

// collectAndForward accumulates into resp while forwarding chunks to the
// caller's callback, if any. Callback errors are swallowed so UI hiccups
// don't count as provider failures.
func collectAndForward(resp *model.Response, callback model.StreamCallback) model.StreamCallback {
	collect := model.Collect(resp)
	return func(chunk string, toolCalls []model.ToolCall) error {
		if err := collect(chunk, toolCalls); err != nil {
			return err
		}
		if callback != nil {
			callback(chunk, toolCalls)
		}
		return nil
	}
}

func criticalResponse(providerName string, kind ErrorKind, err error) model.Response {
	return model.Response{
		Text: fmt.Sprintf("%s CRITICAL FAILURE: provider %q failed (%s) and no fallback target remains: %v",
			model.AlertTag, providerName, kind, err),
	}
}
