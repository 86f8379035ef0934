package models

import (
	"encoding/json"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestStepIDJSONRoundTrip(t *testing.T) {
	step := Step{
		ID:     NamedID("start"),
		Action: "Начало",
		NextSteps: []NextStep{
			{To: NumericID(1), Label: ""},
			{To: NamedID("end_2"), Label: "да"},
		},
	}

	data, err := json.Marshal(step)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"step":"start","action":"Начало","next_steps":[{"to":1,"label":""},{"to":"end_2","label":"да"}]}`
	if string(data) != want {
		t.Errorf("marshal = %s\nwant      %s", data, want)
	}

	var back Step
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID.String() != "start" {
		t.Errorf("round-trip id = %q", back.ID)
	}
	if back.NextSteps[0].To.String() != "1" || back.NextSteps[1].To.String() != "end_2" {
		t.Errorf("round-trip next = %+v", back.NextSteps)
	}
}

func TestStepIDMsgpackMatchesJSONShape(t *testing.T) {
	res := AnalyzeResult{
		DiagramType: "bpmn",
		Description: "d",
		Steps: []Step{
			{ID: NumericID(1), Action: "A", NextSteps: []NextStep{{To: NamedID("end")}}},
			{ID: NamedID("end"), Action: "", NextSteps: []NextStep{}},
		},
	}

	blob, err := msgpack.Marshal(&res)
	if err != nil {
		t.Fatal(err)
	}
	var back AnalyzeResult
	if err := msgpack.Unmarshal(blob, &back); err != nil {
		t.Fatal(err)
	}
	if back.Steps[0].ID.String() != "1" {
		t.Errorf("numeric id decoded as %q", back.Steps[0].ID)
	}
	if back.Steps[1].ID.String() != "end" {
		t.Errorf("named id decoded as %q", back.Steps[1].ID)
	}
	if back.Steps[0].NextSteps[0].To.String() != "end" {
		t.Errorf("next decoded as %+v", back.Steps[0].NextSteps)
	}
}

func TestStepIDRejectsGarbage(t *testing.T) {
	var id StepID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil {
		t.Error("object must not decode into a step id")
	}
	if err := json.Unmarshal([]byte(`1.5`), &id); err == nil {
		t.Error("fraction must not decode into a step id")
	}
}
