package vision

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPrompt instructs the model to return the same JSON contract the
// structural extractors produce.
const DefaultPrompt = `You are a BPMN/block-diagram analyzer. Given an input diagram image, describe the algorithm and return structured JSON.
Respond ONLY with JSON using this schema:
{
  "diagram_type": "bpmn|flowchart|other",
  "description": "short overall description",
  "steps": [
    {"step": 1, "action": "text", "role": "optional lane/actor"},
    ...
  ]
}
Keep steps ordered. Include roles only when present in diagram lanes/pools. Be concise but complete.`

// promptFile is the on-disk override format for the analysis prompt.
type promptFile struct {
	Analyze string `yaml:"analyze"`
}

// LoadPrompt reads the analysis prompt from a YAML file, falling back to the
// built-in default when path is empty or the file has no analyze key.
func LoadPrompt(path string) (string, error) {
	if path == "" {
		return DefaultPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return "", fmt.Errorf("parse prompt file: %w", err)
	}
	if pf.Analyze == "" {
		return DefaultPrompt, nil
	}
	return pf.Analyze, nil
}
