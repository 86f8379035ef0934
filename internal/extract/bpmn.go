package extract

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/diagram-analyzer/backend/internal/models"
)

// Shapes whose rectangle exceeds this size on both axes are collapsed
// sub-processes, not tasks.
const containerMinDim = 200

var (
	matrixRe      = regexp.MustCompile(`matrix\([^)]*\s+([\d.]+)\s+([\d.]+)\)`)
	strokeWidthRe = regexp.MustCompile(`stroke-width:\s*([\d.]+)`)
	numberRe      = regexp.MustCompile(`[\d.]+`)
)

// BpmnSvgExtractor recovers the process graph from SVG files exported by
// bpmn-js. The export keys every diagram element with a data-element-id
// attribute whose prefix encodes the element role (Participant_, Activity_,
// Event_, Gateway_, Flow_), and flow connectivity survives only as path
// geometry, so endpoints are matched back to shapes spatially.
type BpmnSvgExtractor struct{}

func NewBpmnSvgExtractor() *BpmnSvgExtractor {
	return &BpmnSvgExtractor{}
}

func (e *BpmnSvgExtractor) Name() string {
	return "bpmn-svg"
}

// CanExtract looks for the bpmn-js signature in the file header.
func (e *BpmnSvgExtractor) CanExtract(data []byte) bool {
	head := data
	if len(head) > 500 {
		head = head[:500]
	}
	return bytes.Contains(head, []byte("bpmn-js")) || bytes.Contains(head, []byte("bpmn.io"))
}

type bpmnShape struct {
	id    string
	kind  ShapeKind
	box   rect
	label string
	lane  string
}

type bpmnFlow struct {
	id             string
	startX, startY float64
	endX, endY     float64
	label          string
}

type bpmnLane struct {
	name string
	box  rect
}

// svgElem pairs an element with its data-element-id, preserving document
// order. Discovery order drives stable step id assignment, so a plain map is
// not enough.
type svgElem struct {
	id string
	el *etree.Element
}

func (e *BpmnSvgExtractor) Extract(data []byte) *models.AnalyzeResult {
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(data); err != nil || doc.Root() == nil {
		return nil
	}

	var elems []svgElem
	byID := make(map[string]*etree.Element)
	walkElements(doc.Root(), func(el *etree.Element) {
		if el.Tag != "g" {
			return
		}
		eid := el.SelectAttrValue("data-element-id", "")
		if eid == "" {
			return
		}
		if _, seen := byID[eid]; !seen {
			elems = append(elems, svgElem{id: eid, el: el})
		}
		byID[eid] = el
	})

	lanes := collectLanes(elems)
	shapes, containers := collectShapes(elems, byID)
	assignLanes(shapes, lanes)
	flows := collectFlows(elems, byID)

	edges := matchFlows(flows, shapes, containers)
	resolveContainerExits(edges, shapes, containers)

	nodes := make([]graphNode, 0, len(shapes))
	for _, s := range shapes {
		nodes = append(nodes, graphNode{id: s.id, kind: s.kind, label: s.label, lane: s.lane})
	}
	steps := assembleSteps(nodes, edges)
	if len(steps) == 0 {
		return nil
	}

	var laneNames []string
	for _, l := range lanes {
		if l.name != "" {
			laneNames = append(laneNames, l.name)
		}
	}
	description := "BPMN-диаграмма"
	if len(laneNames) > 0 {
		description += ": " + strings.Join(laneNames, ", ")
	}

	return &models.AnalyzeResult{
		DiagramType: "bpmn",
		Description: description,
		Steps:       steps,
	}
}

// collectLanes turns Participant_ groups with a non-degenerate rectangle into
// lanes.
func collectLanes(elems []svgElem) []bpmnLane {
	var lanes []bpmnLane
	for _, ge := range elems {
		if !strings.HasPrefix(ge.id, "Participant_") {
			continue
		}
		x, y := transformXY(ge.el)
		w, h := firstRectSize(ge.el)
		if w > 0 && h > 0 {
			lanes = append(lanes, bpmnLane{
				name: groupText(ge.el),
				box:  rect{x: x, y: y, w: w, h: h},
			})
		}
	}
	return lanes
}

// collectShapes classifies activities, events and gateways. Activities whose
// rectangle exceeds the container threshold on both axes become containers
// and are kept apart: they participate in endpoint matching but never in the
// output graph.
func collectShapes(elems []svgElem, byID map[string]*etree.Element) (shapes, containers []*bpmnShape) {
	for _, ge := range elems {
		if !strings.HasPrefix(ge.id, "Activity_") || strings.Contains(ge.id, "_label") {
			continue
		}
		x, y := transformXY(ge.el)
		w, h := firstRectSize(ge.el)
		label := shapeLabel(ge.el, ge.id, byID)
		s := &bpmnShape{
			id:    ge.id,
			kind:  KindTask,
			box:   rect{x: x, y: y, w: w, h: h},
			label: label,
		}
		if w > containerMinDim && h > containerMinDim {
			s.kind = KindContainer
			containers = append(containers, s)
		} else {
			shapes = append(shapes, s)
		}
	}

	for _, ge := range elems {
		if !strings.HasPrefix(ge.id, "Event_") || strings.Contains(ge.id, "_label") {
			continue
		}
		x, y := transformXY(ge.el)
		r := circleRadius(ge.el)
		kind := KindStart
		// bpmn-js renders end events with a thicker circle outline; the
		// stroke width is the only distinguishing cue in the export.
		if circleStrokeWidth(ge.el) >= 3 {
			kind = KindEnd
		}
		shapes = append(shapes, &bpmnShape{
			id:   ge.id,
			kind: kind,
			box:  rect{x: x, y: y, w: r * 2, h: r * 2},
		})
	}

	for _, ge := range elems {
		if !strings.HasPrefix(ge.id, "Gateway_") || strings.Contains(ge.id, "_label") {
			continue
		}
		x, y := transformXY(ge.el)
		// Gateway diamonds are a fixed 50x50 in bpmn-js exports.
		shapes = append(shapes, &bpmnShape{
			id:    ge.id,
			kind:  KindDecision,
			box:   rect{x: x, y: y, w: 50, h: 50},
			label: shapeLabel(ge.el, ge.id, byID),
		})
	}
	return shapes, containers
}

// assignLanes gives every shape the first lane whose box contains the shape
// center.
func assignLanes(shapes []*bpmnShape, lanes []bpmnLane) {
	for _, s := range shapes {
		cx, cy := s.box.centerX(), s.box.centerY()
		for _, l := range lanes {
			if l.box.contains(cx, cy) {
				s.lane = l.name
				break
			}
		}
	}
}

// collectFlows reads flow endpoints from path geometry. A start at exactly
// (0,0) means the path could not be read and the flow is skipped.
func collectFlows(elems []svgElem, byID map[string]*etree.Element) []bpmnFlow {
	var flows []bpmnFlow
	for _, ge := range elems {
		if !strings.HasPrefix(ge.id, "Flow_") || strings.Contains(ge.id, "_label") {
			continue
		}
		sx, sy, ex, ey := pathEndpoints(ge.el)
		if sx == 0 && sy == 0 {
			continue
		}
		label := ""
		if labelEl, ok := byID[ge.id+"_label"]; ok {
			label = groupText(labelEl)
		}
		flows = append(flows, bpmnFlow{id: ge.id, startX: sx, startY: sy, endX: ex, endY: ey, label: label})
	}
	return flows
}

// findShapeAt resolves a point to the shape whose tolerance-expanded box
// contains it, preferring the geometrically closest center. Ties keep the
// first-encountered minimum.
func findShapeAt(px, py float64, shapes []*bpmnShape, exclude *bpmnShape) *bpmnShape {
	var best *bpmnShape
	bestDist := 0.0
	for _, s := range shapes {
		if exclude != nil && s.id == exclude.id {
			continue
		}
		if !s.box.near(px, py) {
			continue
		}
		d := s.box.centerDist2(px, py)
		if best == nil || d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best
}

// childrenOf returns the shapes whose center lies inside the container box,
// in discovery order.
func childrenOf(c *bpmnShape, shapes []*bpmnShape) []*bpmnShape {
	var result []*bpmnShape
	for _, s := range shapes {
		if c.box.contains(s.box.centerX(), s.box.centerY()) {
			result = append(result, s)
		}
	}
	return result
}

// matchFlows builds the element-id edge map, treating containers as opaque
// endpoints on the source side; container targets are resolved immediately to
// the child nearest the flow endpoint. Source-side resolution is deferred to
// resolveContainerExits because it needs the full edge topology.
func matchFlows(flows []bpmnFlow, shapes, containers []*bpmnShape) map[string][]graphEdge {
	all := make([]*bpmnShape, 0, len(shapes)+len(containers))
	all = append(all, shapes...)
	all = append(all, containers...)

	containerSet := make(map[string]*bpmnShape, len(containers))
	for _, c := range containers {
		containerSet[c.id] = c
	}

	edges := make(map[string][]graphEdge)
	for _, f := range flows {
		src := findShapeAt(f.startX, f.startY, all, nil)
		if src == nil {
			continue
		}
		dst := findShapeAt(f.endX, f.endY, all, src)
		if dst == nil {
			dst = findShapeAt(f.endX, f.endY, all, nil)
		}
		if dst == nil || src.id == dst.id {
			continue
		}
		// An edge into a container really enters its nearest child.
		if c, ok := containerSet[dst.id]; ok {
			dst = nearestChild(c, shapes, f.endX, f.endY)
		}
		if src == nil || dst == nil || src.id == dst.id {
			continue
		}
		edges[src.id] = append(edges[src.id], graphEdge{target: dst.id, label: f.label})
	}
	return edges
}

// nearestChild picks the container child closest to the flow endpoint, or nil
// for an empty container (the edge is then dropped).
func nearestChild(c *bpmnShape, shapes []*bpmnShape, px, py float64) *bpmnShape {
	var best *bpmnShape
	bestDist := 0.0
	for _, child := range childrenOf(c, shapes) {
		d := child.box.centerDist2(px, py)
		if best == nil || d < bestDist {
			best = child
			bestDist = d
		}
	}
	return best
}

// resolveContainerExits rewrites edges that originate at a container so they
// originate at the container's exit child instead. The exit child is an
// end-kind child if one exists, else a child with no outgoing edge to a
// sibling, else the last child in discovery order.
func resolveContainerExits(edges map[string][]graphEdge, shapes, containers []*bpmnShape) {
	for _, c := range containers {
		outgoing, ok := edges[c.id]
		if !ok {
			continue
		}
		exit := containerExit(c, shapes, edges)
		if exit == nil {
			continue
		}
		delete(edges, c.id)
		edges[exit.id] = append(edges[exit.id], outgoing...)
	}
}

func containerExit(c *bpmnShape, shapes []*bpmnShape, edges map[string][]graphEdge) *bpmnShape {
	children := childrenOf(c, shapes)
	if len(children) == 0 {
		return nil
	}
	for _, child := range children {
		if child.kind == KindEnd {
			return child
		}
	}
	childIDs := make(map[string]struct{}, len(children))
	for _, child := range children {
		childIDs[child.id] = struct{}{}
	}
	for _, child := range children {
		sink := true
		for _, e := range edges[child.id] {
			if _, sibling := childIDs[e.target]; sibling {
				sink = false
				break
			}
		}
		if sink {
			return child
		}
	}
	return children[len(children)-1]
}

// --- SVG DOM helpers ---

func walkElements(el *etree.Element, fn func(*etree.Element)) {
	fn(el)
	for _, child := range el.ChildElements() {
		walkElements(child, fn)
	}
}

// findFirstTag returns the first descendant (or the element itself) with the
// given local tag name, ignoring namespace prefixes.
func findFirstTag(el *etree.Element, tag string) *etree.Element {
	var found *etree.Element
	walkElements(el, func(e *etree.Element) {
		if found == nil && e.Tag == tag {
			found = e
		}
	})
	return found
}

// transformXY reads the translation offset from a matrix(...) transform: the
// last two numeric components are the x/y shift.
func transformXY(el *etree.Element) (float64, float64) {
	m := matrixRe.FindStringSubmatch(el.SelectAttrValue("transform", ""))
	if m == nil {
		return 0, 0
	}
	x, _ := strconv.ParseFloat(m[1], 64)
	y, _ := strconv.ParseFloat(m[2], 64)
	return x, y
}

// firstRectSize returns the width/height of the first embedded <rect>.
func firstRectSize(el *etree.Element) (float64, float64) {
	r := findFirstTag(el, "rect")
	if r == nil {
		return 0, 0
	}
	w, _ := strconv.ParseFloat(r.SelectAttrValue("width", "0"), 64)
	h, _ := strconv.ParseFloat(r.SelectAttrValue("height", "0"), 64)
	return w, h
}

func circleRadius(el *etree.Element) float64 {
	c := findFirstTag(el, "circle")
	if c == nil {
		return 18
	}
	r, err := strconv.ParseFloat(c.SelectAttrValue("r", "18"), 64)
	if err != nil {
		return 18
	}
	return r
}

// circleStrokeWidth reads the stroke width from the circle's inline style,
// falling back to the radius when the style is unreadable.
func circleStrokeWidth(el *etree.Element) float64 {
	c := findFirstTag(el, "circle")
	if c == nil {
		return 0
	}
	if m := strokeWidthRe.FindStringSubmatch(c.SelectAttrValue("style", "")); m != nil {
		if sw, err := strconv.ParseFloat(m[1], 64); err == nil {
			return sw
		}
	}
	r, _ := strconv.ParseFloat(c.SelectAttrValue("r", "0"), 64)
	return r
}

// pathEndpoints takes the overall first and last coordinate pairs of the
// first usable <path>, which stays robust for multi-segment curved paths
// without interpreting path commands.
func pathEndpoints(el *etree.Element) (sx, sy, ex, ey float64) {
	var paths []*etree.Element
	walkElements(el, func(e *etree.Element) {
		if e.Tag == "path" {
			paths = append(paths, e)
		}
	})
	for _, p := range paths {
		d := p.SelectAttrValue("d", "")
		if d == "" || !strings.Contains(d, "M") {
			continue
		}
		coords := numberRe.FindAllString(d, -1)
		if len(coords) < 4 {
			continue
		}
		sx, _ = strconv.ParseFloat(coords[0], 64)
		sy, _ = strconv.ParseFloat(coords[1], 64)
		ex, _ = strconv.ParseFloat(coords[len(coords)-2], 64)
		ey, _ = strconv.ParseFloat(coords[len(coords)-1], 64)
		return sx, sy, ex, ey
	}
	return 0, 0, 0, 0
}

// groupText joins the first <text> element's own text with its <tspan> runs
// and repairs words the exporter broke across runs.
func groupText(el *etree.Element) string {
	textEl := findFirstTag(el, "text")
	if textEl == nil {
		return ""
	}
	var parts []string
	if t := strings.TrimSpace(textEl.Text()); t != "" {
		parts = append(parts, t)
	}
	for _, child := range textEl.ChildElements() {
		if child.Tag != "tspan" {
			continue
		}
		if t := strings.TrimSpace(child.Text()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return RepairBrokenWords(strings.Join(parts, " "))
}

// shapeLabel reads the shape's own text, consulting the sibling _label group
// when the shape carries none.
func shapeLabel(el *etree.Element, eid string, byID map[string]*etree.Element) string {
	label := groupText(el)
	if label == "" {
		if labelEl, ok := byID[eid+"_label"]; ok {
			label = groupText(labelEl)
		}
	}
	return label
}
