// Package inspector screens ranked events for anomalies. Detectors are
// declared in configuration and evaluated in order with short-circuit
// semantics: the first one that trips marks the event and the rest are
// skipped.
package inspector

import (
	"context"
	"fmt"
	"strings"

	"github.com/gsantopaolo/sentinel-AI/internal/config"
	"github.com/gsantopaolo/sentinel-AI/internal/llm"
)

// Detector evaluates one stored event payload.
type Detector interface {
	Name() string
	Evaluate(ctx context.Context, payload map[string]any) (bool, error)
}

// BuildDetectors turns the configuration into the detector chain. Unknown
// detector types are a configuration error, fatal at startup. The llm
// client may be nil when no llm_anomaly_detector is configured.
func BuildDetectors(cfgs []config.DetectorConfig, model llm.Client) ([]Detector, error) {
	var detectors []Detector
	for _, cfg := range cfgs {
		switch cfg.Type {
		case "keyword_match":
			detectors = append(detectors, &keywordMatchDetector{
				keywords: paramStrings(cfg.Parameters, "keywords"),
			})
		case "content_length":
			detectors = append(detectors, &contentLengthDetector{
				min: paramInt(cfg.Parameters, "min_length"),
				max: paramInt(cfg.Parameters, "max_length"),
			})
		case "missing_fields":
			detectors = append(detectors, &missingFieldsDetector{
				fields: paramStrings(cfg.Parameters, "fields"),
			})
		case "llm_anomaly_detector":
			if model == nil {
				return nil, fmt.Errorf("llm_anomaly_detector configured without an llm client")
			}
			prompt, _ := cfg.Parameters["prompt"].(string)
			if prompt == "" {
				return nil, fmt.Errorf("llm_anomaly_detector requires a prompt")
			}
			detectors = append(detectors, &llmAnomalyDetector{model: model, prompt: prompt})
		default:
			return nil, fmt.Errorf("unknown detector type %q", cfg.Type)
		}
	}
	return detectors, nil
}

// keywordMatchDetector trips when any configured keyword occurs in the
// content, case-insensitive.
type keywordMatchDetector struct {
	keywords []string
}

func (d *keywordMatchDetector) Name() string { return "keyword_match" }

func (d *keywordMatchDetector) Evaluate(_ context.Context, payload map[string]any) (bool, error) {
	content := strings.ToLower(payloadString(payload, "content"))
	for _, kw := range d.keywords {
		if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
			return true, nil
		}
	}
	return false, nil
}

// contentLengthDetector trips when the content length falls outside the
// configured bounds.
type contentLengthDetector struct {
	min int
	max int
}

func (d *contentLengthDetector) Name() string { return "content_length" }

func (d *contentLengthDetector) Evaluate(_ context.Context, payload map[string]any) (bool, error) {
	n := len(payloadString(payload, "content"))
	if n < d.min {
		return true, nil
	}
	if d.max > 0 && n > d.max {
		return true, nil
	}
	return false, nil
}

// missingFieldsDetector trips when any listed field is absent or empty.
type missingFieldsDetector struct {
	fields []string
}

func (d *missingFieldsDetector) Name() string { return "missing_fields" }

func (d *missingFieldsDetector) Evaluate(_ context.Context, payload map[string]any) (bool, error) {
	for _, field := range d.fields {
		v, ok := payload[field]
		if !ok || v == nil {
			return true, nil
		}
		switch value := v.(type) {
		case string:
			if value == "" {
				return true, nil
			}
		case []any:
			if len(value) == 0 {
				return true, nil
			}
		}
	}
	return false, nil
}

// llmAnomalyDetector asks the model; a response containing ANOMALY trips.
type llmAnomalyDetector struct {
	model  llm.Client
	prompt string
}

func (d *llmAnomalyDetector) Name() string { return "llm_anomaly_detector" }

func (d *llmAnomalyDetector) Evaluate(ctx context.Context, payload map[string]any) (bool, error) {
	prompt := strings.ReplaceAll(d.prompt, "{article_content}", payloadString(payload, "content"))
	answer, err := d.model.Complete(ctx, prompt)
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToUpper(answer), "ANOMALY"), nil
}

func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// paramStrings reads a string list parameter; YAML delivers it as []any.
func paramStrings(params map[string]any, key string) []string {
	raw, _ := params[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// paramInt reads a numeric parameter; YAML may deliver int or float64.
func paramInt(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
