package extract

import (
	"fmt"

	"github.com/diagram-analyzer/backend/internal/models"
)

// ShapeKind classifies a diagram node. Containers and swimlanes exist only
// during extraction: containers are resolved to a representative child before
// assembly and swimlanes become step roles, so neither kind ever reaches the
// output graph.
type ShapeKind int

const (
	KindTask ShapeKind = iota
	KindStart
	KindEnd
	KindDecision
	KindContainer
	KindSwimlane
)

func (k ShapeKind) String() string {
	switch k {
	case KindTask:
		return "task"
	case KindStart:
		return "start"
	case KindEnd:
		return "end"
	case KindDecision:
		return "decision"
	case KindContainer:
		return "subprocess"
	case KindSwimlane:
		return "swimlane"
	}
	return "task"
}

// graphNode is a classified shape ready for assembly, keyed by the source
// tool's element id. Order of the node slice is discovery order and drives
// stable id assignment.
type graphNode struct {
	id    string
	kind  ShapeKind
	label string
	lane  string
}

// graphEdge is a directed, optionally labeled connector between element ids.
type graphEdge struct {
	target string
	label  string
}

// assignStepIDs maps element ids to stable step ids in discovery order: the
// first start-kind node gets the literal "start", later ones "start_2",
// "start_3", ...; end-kind nodes follow the same pattern with "end"; every
// other node gets a sequential integer starting at 1.
func assignStepIDs(nodes []graphNode) map[string]models.StepID {
	ids := make(map[string]models.StepID, len(nodes))
	counter := 1
	startCount := 0
	endCount := 0
	for _, n := range nodes {
		switch n.kind {
		case KindStart:
			startCount++
			if startCount == 1 {
				ids[n.id] = models.NamedID("start")
			} else {
				ids[n.id] = models.NamedID(fmt.Sprintf("start_%d", startCount))
			}
		case KindEnd:
			endCount++
			if endCount == 1 {
				ids[n.id] = models.NamedID("end")
			} else {
				ids[n.id] = models.NamedID(fmt.Sprintf("end_%d", endCount))
			}
		default:
			ids[n.id] = models.NumericID(counter)
			counter++
		}
	}
	return ids
}

// assembleSteps converts nodes and the element-id edge map into the final
// step list. Edges whose target has no step id are dropped silently.
func assembleSteps(nodes []graphNode, edges map[string][]graphEdge) []models.Step {
	ids := assignStepIDs(nodes)
	steps := make([]models.Step, 0, len(nodes))
	for _, n := range nodes {
		next := make([]models.NextStep, 0, len(edges[n.id]))
		for _, e := range edges[n.id] {
			to, ok := ids[e.target]
			if !ok {
				continue
			}
			next = append(next, models.NextStep{To: to, Label: e.label})
		}
		steps = append(steps, models.Step{
			ID:        ids[n.id],
			Action:    n.label,
			Role:      n.lane,
			Type:      n.kind.String(),
			NextSteps: next,
		})
	}
	return steps
}
