// Package alert delivers guardian notifications. Alerters are fanned out
// concurrently; one failing channel never blocks the others, and a failed
// alert is logged rather than retried because the advisory that triggered
// it is acked exactly once.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Alerter delivers one alert on one channel.
type Alerter interface {
	Name() string
	SendAlert(ctx context.Context, subject, message string, details map[string]any) error
}

// FromConfig resolves alerter names from the ALERTERS list. Unknown names
// are skipped with a warning; an empty result falls back to logging so an
// alert is never silently dropped.
func FromConfig(names []string, webhookURL string, logger *zap.Logger) []Alerter {
	var out []Alerter
	for _, name := range names {
		switch name {
		case "logging":
			out = append(out, NewLoggingAlerter(logger))
		case "fake_message":
			out = append(out, NewFakeMessageAlerter(webhookURL, logger))
		default:
			logger.Warn("unknown alerter, skipping", zap.String("alerter", name))
		}
	}
	if len(out) == 0 {
		logger.Warn("no alerters configured, falling back to logging")
		out = append(out, NewLoggingAlerter(logger))
	}
	return out
}

// Dispatcher fans one alert out to every configured channel.
type Dispatcher struct {
	alerters []Alerter
	log      *zap.Logger
}

func NewDispatcher(alerters []Alerter, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{alerters: alerters, log: logger}
}

// Dispatch sends the alert on all channels concurrently and waits for all
// of them. Per-channel failures are logged, never returned: the caller has
// already decided the alert must go out.
func (d *Dispatcher) Dispatch(ctx context.Context, subject, message string, details map[string]any) {
	var wg sync.WaitGroup
	for _, a := range d.alerters {
		wg.Add(1)
		go func(a Alerter) {
			defer wg.Done()
			if err := a.SendAlert(ctx, subject, message, details); err != nil {
				d.log.Error("alert delivery failed",
					zap.String("alerter", a.Name()),
					zap.String("subject", subject),
					zap.Error(err),
				)
			}
		}(a)
	}
	wg.Wait()
}

// formatDetails renders the details map with stable key order.
func formatDetails(details map[string]any) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v := details[k]
		if s, ok := v.(string); ok {
			fmt.Fprintf(&b, "  %s: %s\n", k, s)
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			fmt.Fprintf(&b, "  %s: %v\n", k, v)
			continue
		}
		fmt.Fprintf(&b, "  %s: %s\n", k, raw)
	}
	return b.String()
}
