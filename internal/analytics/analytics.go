// Package analytics derives label parsing, accuracy and per-day history from
// stored predictions and feedback.
package analytics

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"detectorgo/internal/models"
)

const (
	labelReal = "real"
	labelFake = "fake"
)

// Accuracy returns correct/total clamped to [0, 1], or 0 when there is
// nothing to divide.
func Accuracy(correct, total int) float64 {
	switch {
	case total <= 0 || correct <= 0:
		return 0
	case correct >= total:
		return 1
	}
	return float64(correct) / float64(total)
}

// ParseOutput decodes a stored classifier output into its first object.
// Both JSON and the Python literal form written by older deployments are
// accepted. ok is false when the value cannot be decoded.
func ParseOutput(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		if err := json.Unmarshal([]byte(pythonLiteralToJSON(raw)), &v); err != nil {
			return nil, false
		}
	}
	switch t := v.(type) {
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		// Some endpoints nest one list per input.
		if inner, ok := t[0].([]any); ok {
			if len(inner) == 0 {
				return nil, false
			}
			obj, ok := inner[0].(map[string]any)
			return obj, ok
		}
		obj, ok := t[0].(map[string]any)
		return obj, ok
	case map[string]any:
		return t, true
	default:
		return nil, false
	}
}

// ParseLabel extracts the lowercased label from a stored output.
func ParseLabel(raw string) (string, bool) {
	obj, ok := ParseOutput(raw)
	if !ok {
		return "", false
	}
	label, ok := obj["label"].(string)
	if !ok {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(label)), true
}

func pythonLiteralToJSON(s string) string {
	r := strings.NewReplacer(
		"'", `"`,
		"True", "true",
		"False", "false",
		"None", "null",
	)
	return r.Replace(s)
}

// DailyHistory buckets predictions by UTC calendar date and counts real and
// fake labels. Records with unparseable or other labels are skipped, and
// dates with no counted label are omitted. The result is sorted by date.
func DailyHistory(records []models.Prediction) []models.DailyLabelCount {
	buckets := make(map[string]*models.DailyLabelCount)
	for _, rec := range records {
		label, ok := ParseLabel(rec.OutputData)
		if !ok || (label != labelReal && label != labelFake) {
			continue
		}
		date := rec.CreatedAt.UTC().Format(time.DateOnly)
		b, ok := buckets[date]
		if !ok {
			b = &models.DailyLabelCount{Date: date}
			buckets[date] = b
		}
		if label == labelReal {
			b.Real++
		} else {
			b.Fake++
		}
	}

	out := make([]models.DailyLabelCount, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
