package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONFenced(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"diagram_type\": \"bpmn\", \"steps\": []}\n```\nDone."
	payload := ExtractJSON(raw)
	assert.Equal(t, "bpmn", payload["diagram_type"])
}

func TestExtractJSONRepairsBadEscapes(t *testing.T) {
	raw := `{"description": "path \Gamma to \Delta", "steps": []}`
	payload := ExtractJSON(raw)
	assert.Equal(t, `path \Gamma to \Delta`, payload["description"])
}

func TestExtractJSONQuotesBareKeys(t *testing.T) {
	raw := `{diagram_type: "bpmn", description: "x", steps: []}`
	payload := ExtractJSON(raw)
	assert.Equal(t, "bpmn", payload["diagram_type"])
}

func TestExtractJSONGivesUpCleanly(t *testing.T) {
	assert.Empty(t, ExtractJSON("no json here at all"))
	assert.Empty(t, ExtractJSON("{{{{ hopeless"))
}

func TestToResultBasic(t *testing.T) {
	raw := `{
		"diagram_type": "bpmn",
		"description": "процесс",
		"steps": [
			{"step": "start", "action": "Начало", "next_steps": [{"to": 1, "label": ""}]},
			{"step": 1, "action": "Проверка", "role": "Отдел", "next_steps": [{"to": "end", "label": "да"}]},
			{"step": "end", "action": "Конец", "next_steps": []}
		]
	}`
	res := ToResult(raw)
	require.Len(t, res.Steps, 3)
	assert.Equal(t, "bpmn", res.DiagramType)
	assert.Equal(t, "процесс", res.Description)
	assert.Equal(t, "start", res.Steps[0].ID.String())
	assert.Equal(t, "1", res.Steps[1].ID.String())
	assert.Equal(t, "Отдел", res.Steps[1].Role)
	assert.Equal(t, "end", res.Steps[1].NextSteps[0].To.String())
	assert.Equal(t, "да", res.Steps[1].NextSteps[0].Label)
	// Partial connectivity is never overwritten with a linear chain.
	assert.Empty(t, res.Steps[2].NextSteps)
}

func TestToResultUnwrapsNestedDescription(t *testing.T) {
	raw := `{"description": "{\"diagram_type\": \"bpmn\", \"description\": \"внутри\", \"steps\": [{\"step\": 1, \"action\": \"Шаг\"}]}"}`
	res := ToResult(raw)
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "внутри", res.Description)
	assert.Equal(t, "Шаг", res.Steps[0].Action)
}

func TestToResultLinearChainFallback(t *testing.T) {
	raw := `{"diagram_type": "bpmn", "description": "x", "steps": [
		{"step": 1, "action": "A"},
		{"step": 2, "action": "B"},
		{"step": 3, "action": "C"}
	]}`
	res := ToResult(raw)
	require.Len(t, res.Steps, 3)
	require.Len(t, res.Steps[0].NextSteps, 1)
	assert.Equal(t, "2", res.Steps[0].NextSteps[0].To.String())
	require.Len(t, res.Steps[1].NextSteps, 1)
	assert.Equal(t, "3", res.Steps[1].NextSteps[0].To.String())
	assert.Empty(t, res.Steps[2].NextSteps)
}

func TestToResultSyntheticStepOnGarbage(t *testing.T) {
	res := ToResult("the model rambled and produced no JSON")
	require.Len(t, res.Steps, 1)
	assert.Equal(t, "unknown", res.DiagramType)
	assert.Equal(t, "1", res.Steps[0].ID.String())
	assert.NotEmpty(t, res.Steps[0].Action)
}

func TestToResultPositionalIDsWhenMissing(t *testing.T) {
	raw := `{"steps": ["первый шаг", {"action": "второй"}]}`
	res := ToResult(raw)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "1", res.Steps[0].ID.String())
	assert.Equal(t, "первый шаг", res.Steps[0].Action)
	assert.Equal(t, "2", res.Steps[1].ID.String())
	assert.Equal(t, "второй", res.Steps[1].Action)
}
