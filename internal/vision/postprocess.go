package vision

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/diagram-analyzer/backend/internal/models"
)

// Model output is free text that usually contains JSON somewhere inside,
// often with small defects: code fences, invalid escape sequences, unquoted
// keys, or the whole payload re-embedded as a string. ExtractJSON tries a few
// progressively repaired candidates before giving up.

var (
	fencedJSONRe  = regexp.MustCompile("(?si)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	badEscapeRe   = regexp.MustCompile(`\\([^"\\/bfnrtu])`)
	unquotedKeyRe = regexp.MustCompile(`([{,\[])\s*(\w+)\s*:`)
)

// fixJSONEscapes doubles backslashes that do not begin a valid JSON escape
// (e.g. \G becomes \\G).
func fixJSONEscapes(text string) string {
	return badEscapeRe.ReplaceAllString(text, `\\$1`)
}

func quoteBareKeys(text string) string {
	return unquotedKeyRe.ReplaceAllString(text, `$1 "$2":`)
}

// ExtractJSON pulls the outermost JSON object out of model output, repairing
// common defects. Returns an empty map when nothing parses.
func ExtractJSON(text string) map[string]any {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return map[string]any{}
	}
	snippet := text[start : end+1]
	candidates := []string{
		snippet,
		fixJSONEscapes(snippet),
		quoteBareKeys(snippet),
		fixJSONEscapes(quoteBareKeys(snippet)),
	}
	for _, cand := range candidates {
		var payload map[string]any
		if err := json.Unmarshal([]byte(cand), &payload); err == nil {
			return payload
		}
	}
	return map[string]any{}
}

// normalizeAction trims and collapses whitespace; truly empty node text is
// allowed.
func normalizeAction(action string) string {
	return strings.Join(strings.Fields(action), " ")
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// stepIDFrom converts a loosely typed model-provided id into a StepID; the
// zero value signals the caller to use its positional default.
func stepIDFrom(v any) models.StepID {
	switch t := v.(type) {
	case float64:
		if t != 0 {
			return models.NumericID(int(t))
		}
	case string:
		if t != "" {
			return models.NamedID(t)
		}
	}
	return models.StepID{}
}

// ToResult converts raw model output into the public analysis payload,
// tolerating the defects the model is known to produce. It never fails: at
// worst the description carries the raw text and a single synthetic step.
func ToResult(raw string) *models.AnalyzeResult {
	payload := ExtractJSON(raw)

	// Sometimes the whole JSON document is embedded as a string inside the
	// description field.
	if desc, ok := payload["description"].(string); ok {
		if strings.Contains(desc, "steps") && strings.Contains(desc, "{") && strings.Contains(desc, "}") {
			if inner := ExtractJSON(desc); len(inner) > 0 {
				payload = inner
			}
		}
	}

	diagramType := stringField(payload, "diagram_type", "type")
	if diagramType == "" {
		diagramType = "unknown"
	}
	description := stringField(payload, "description")
	if description == "" {
		description = strings.TrimSpace(raw)
	}

	rawSteps, _ := payload["steps"].([]any)
	steps := make([]models.Step, 0, len(rawSteps))
	for i, item := range rawSteps {
		idx := i + 1
		step := models.Step{ID: models.NumericID(idx), NextSteps: []models.NextStep{}}
		if m, ok := item.(map[string]any); ok {
			if id := stepIDFrom(m["id"]); !id.IsZero() {
				step.ID = id
			} else if id := stepIDFrom(m["step"]); !id.IsZero() {
				step.ID = id
			}
			step.Action = normalizeAction(stringField(m, "action", "text"))
			step.Type = stringField(m, "type")
			step.Role = stringField(m, "role")
			if rawNext, ok := m["next_steps"].([]any); ok {
				for _, rn := range rawNext {
					nm, ok := rn.(map[string]any)
					if !ok {
						continue
					}
					label, _ := nm["label"].(string)
					step.NextSteps = append(step.NextSteps, models.NextStep{
						To:    stepIDFrom(nm["to"]),
						Label: label,
					})
				}
			}
		} else {
			step.Action = normalizeAction(fmt.Sprintf("%v", item))
		}
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		steps = append(steps, models.Step{
			ID:        models.NumericID(1),
			Action:    truncateRunes(description, 140),
			NextSteps: []models.NextStep{},
		})
	}

	// The model sometimes omits connectivity entirely; assume a linear chain
	// then, but never overwrite partial connectivity.
	if len(steps) > 1 && noneHaveNext(steps) {
		for i := 0; i < len(steps)-1; i++ {
			steps[i].NextSteps = []models.NextStep{{To: steps[i+1].ID}}
		}
	}

	return &models.AnalyzeResult{
		DiagramType: diagramType,
		Description: description,
		Steps:       steps,
	}
}

func noneHaveNext(steps []models.Step) bool {
	for _, s := range steps {
		if len(s.NextSteps) > 0 {
			return false
		}
	}
	return true
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
