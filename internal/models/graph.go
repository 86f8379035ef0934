package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// StepID is a stable, tool-independent step identifier. It serializes either
// as an integer (ordinary steps, numbered from 1) or as one of the literal
// patterns "start", "start_N", "end", "end_N" for terminator steps.
type StepID struct {
	num  int
	name string
}

// NumericID returns a StepID for an ordinary step.
func NumericID(n int) StepID {
	return StepID{num: n}
}

// NamedID returns a StepID with a literal name ("start", "end_2", ...).
func NamedID(name string) StepID {
	return StepID{name: name}
}

// IsZero reports whether the id is unassigned.
func (id StepID) IsZero() bool {
	return id.num == 0 && id.name == ""
}

func (id StepID) String() string {
	if id.name != "" {
		return id.name
	}
	return strconv.Itoa(id.num)
}

func (id StepID) MarshalJSON() ([]byte, error) {
	if id.name != "" {
		return json.Marshal(id.name)
	}
	return json.Marshal(id.num)
}

func (id *StepID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		*id = StepID{name: name}
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("step id must be an integer or string: %w", err)
	}
	*id = StepID{num: n}
	return nil
}

// EncodeMsgpack keeps the msgpack wire shape identical to the JSON contract.
func (id StepID) EncodeMsgpack(enc *msgpack.Encoder) error {
	if id.name != "" {
		return enc.EncodeString(id.name)
	}
	return enc.EncodeInt(int64(id.num))
}

func (id *StepID) DecodeMsgpack(dec *msgpack.Decoder) error {
	v, err := dec.DecodeInterface()
	if err != nil {
		return err
	}
	switch t := v.(type) {
	case string:
		*id = StepID{name: t}
	case int8, int16, int32, int64, uint8, uint16, uint32, uint64:
		n, _ := strconv.Atoi(fmt.Sprintf("%d", t))
		*id = StepID{num: n}
	default:
		return fmt.Errorf("step id must be an integer or string, got %T", v)
	}
	return nil
}

// NextStep is a directed, optionally labeled reference to another step.
type NextStep struct {
	To    StepID `json:"to" msgpack:"to"`
	Label string `json:"label" msgpack:"label"`
}

// Step is one node of the recovered process graph.
type Step struct {
	ID        StepID     `json:"step" msgpack:"step"`
	Action    string     `json:"action" msgpack:"action"`
	Role      string     `json:"role,omitempty" msgpack:"role,omitempty"`
	Type      string     `json:"type,omitempty" msgpack:"type,omitempty"`
	NextSteps []NextStep `json:"next_steps" msgpack:"next_steps"`
}

// AnalyzeResult is the public analysis payload shared by the structural
// extractors and the vision-model fallback.
type AnalyzeResult struct {
	DiagramType string `json:"diagram_type" msgpack:"diagram_type"`
	Description string `json:"description" msgpack:"description"`
	Steps       []Step `json:"steps" msgpack:"steps"`
}

// HealthStatus is the /api/health response body.
type HealthStatus struct {
	Status  string `json:"status"`
	Model   string `json:"model"`
	Backend string `json:"backend"`
	Version string `json:"version"`
}
