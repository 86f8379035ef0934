package extract

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"encoding/base64"
	"io"
	"net/url"
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/diagram-analyzer/backend/internal/models"
)

var (
	mxModelRe = regexp.MustCompile(`(?s)<mxGraphModel[\s>].*?</mxGraphModel>`)
	diagramRe = regexp.MustCompile(`(?s)<diagram[^>]*>(.*?)</diagram>`)
)

// DrawioExtractor recovers the process graph from SVG files exported by
// draw.io / diagrams.net. The export embeds the full mxGraphModel document in
// the SVG — as plain XML, as a base64+deflate payload inside <diagram>, or
// HTML-escaped in a content attribute — so connectivity is explicit and no
// geometric matching is needed.
type DrawioExtractor struct{}

func NewDrawioExtractor() *DrawioExtractor {
	return &DrawioExtractor{}
}

func (e *DrawioExtractor) Name() string {
	return "drawio-svg"
}

// CanExtract looks for draw.io markers in the file header: the model element
// name, the container file name, or the vendor domains.
func (e *DrawioExtractor) CanExtract(data []byte) bool {
	head := data
	if len(head) > 2000 {
		head = head[:2000]
	}
	head = bytes.ToLower(head)
	return bytes.Contains(head, []byte("mxgraphmodel")) ||
		bytes.Contains(head, []byte("mxfile")) ||
		bytes.Contains(head, []byte("draw.io")) ||
		bytes.Contains(head, []byte("diagrams.net"))
}

// drawioKind is the provisional classification from the cell style string.
// startend cells are split into start/end/task later, once edge degrees are
// known.
type drawioKind int

const (
	drawioTask drawioKind = iota
	drawioStartEnd
	drawioDecision
	drawioSwimlane
)

type drawioNode struct {
	id     string
	label  string
	kind   ShapeKind
	parent string
}

type drawioEdge struct {
	source, target, label string
}

func (e *DrawioExtractor) Extract(data []byte) *models.AnalyzeResult {
	model := findGraphModel(data)
	if model == nil {
		return nil
	}

	cells := collectCells(model)
	if len(cells) == 0 {
		return nil
	}

	var (
		laneOrder []string
		laneNames = make(map[string]string)
		nodeOrder []*drawioNode
		nodeByID  = make(map[string]*drawioNode)
		edges     []drawioEdge
	)

	for _, c := range cells {
		cell := c.el
		if cell.SelectAttrValue("vertex", "") == "1" {
			label := CleanHTMLLabel(cell.SelectAttrValue("value", ""))
			switch classifyStyle(cell.SelectAttrValue("style", "")) {
			case drawioSwimlane:
				if _, seen := laneNames[c.id]; !seen {
					laneOrder = append(laneOrder, c.id)
				}
				laneNames[c.id] = label
			case drawioStartEnd:
				addNode(&nodeOrder, nodeByID, &drawioNode{id: c.id, label: label, kind: kindStartEnd, parent: cell.SelectAttrValue("parent", "")})
			case drawioDecision:
				addNode(&nodeOrder, nodeByID, &drawioNode{id: c.id, label: label, kind: KindDecision, parent: cell.SelectAttrValue("parent", "")})
			default:
				addNode(&nodeOrder, nodeByID, &drawioNode{id: c.id, label: label, kind: KindTask, parent: cell.SelectAttrValue("parent", "")})
			}
		} else if cell.SelectAttrValue("edge", "") == "1" {
			source := cell.SelectAttrValue("source", "")
			target := cell.SelectAttrValue("target", "")
			if source != "" && target != "" {
				edges = append(edges, drawioEdge{
					source: source,
					target: target,
					label:  CleanHTMLLabel(cell.SelectAttrValue("value", "")),
				})
			}
		}
	}

	if len(nodeOrder) == 0 {
		return nil
	}

	resolveTerminators(nodeOrder, nodeByID, edges)

	edgeMap := make(map[string][]graphEdge)
	for _, ed := range edges {
		if _, okS := nodeByID[ed.source]; !okS {
			continue
		}
		if _, okT := nodeByID[ed.target]; !okT {
			continue
		}
		edgeMap[ed.source] = append(edgeMap[ed.source], graphEdge{target: ed.target, label: ed.label})
	}

	nodes := make([]graphNode, 0, len(nodeOrder))
	for _, n := range nodeOrder {
		nodes = append(nodes, graphNode{
			id:    n.id,
			kind:  n.kind,
			label: n.label,
			lane:  resolveLane(n, nodeByID, laneNames),
		})
	}

	steps := assembleSteps(nodes, edgeMap)
	if len(steps) == 0 {
		return nil
	}

	var names []string
	for _, id := range laneOrder {
		if laneNames[id] != "" {
			names = append(names, laneNames[id])
		}
	}
	description := "Draw.io диаграмма"
	if len(names) > 0 {
		description += ": " + strings.Join(names, ", ")
	}

	return &models.AnalyzeResult{
		DiagramType: "bpmn",
		Description: description,
		Steps:       steps,
	}
}

// kindStartEnd marks a terminator cell awaiting degree-based disambiguation.
// It never survives into assembled steps.
const kindStartEnd = ShapeKind(-1)

func addNode(order *[]*drawioNode, byID map[string]*drawioNode, n *drawioNode) {
	if existing, ok := byID[n.id]; ok {
		*existing = *n
		return
	}
	*order = append(*order, n)
	byID[n.id] = n
}

// resolveTerminators splits provisional terminators by connectivity: incoming
// only means end, outgoing only means start, isolated defaults to start, and
// both directions means the ellipse is a pass-through task.
func resolveTerminators(order []*drawioNode, byID map[string]*drawioNode, edges []drawioEdge) {
	incoming := make(map[string]int, len(order))
	outgoing := make(map[string]int, len(order))
	for _, e := range edges {
		if _, ok := byID[e.target]; ok {
			incoming[e.target]++
		}
		if _, ok := byID[e.source]; ok {
			outgoing[e.source]++
		}
	}
	for _, n := range order {
		if n.kind != kindStartEnd {
			continue
		}
		hasIn := incoming[n.id] > 0
		hasOut := outgoing[n.id] > 0
		switch {
		case hasIn && !hasOut:
			n.kind = KindEnd
		case hasOut && !hasIn:
			n.kind = KindStart
		case !hasIn && !hasOut:
			n.kind = KindStart
		default:
			n.kind = KindTask
		}
	}
}

// resolveLane walks at most two parent levels: the node's direct parent lane,
// or the lane of a non-lane parent node.
func resolveLane(n *drawioNode, byID map[string]*drawioNode, lanes map[string]string) string {
	if name, ok := lanes[n.parent]; ok {
		return name
	}
	if parent, ok := byID[n.parent]; ok {
		if name, ok := lanes[parent.parent]; ok {
			return name
		}
	}
	return ""
}

// classifyStyle maps a semicolon-delimited draw.io style string to a
// provisional kind.
func classifyStyle(styleStr string) drawioKind {
	style := parseStyle(strings.ToLower(styleStr))
	if _, ok := style["swimlane"]; ok {
		return drawioSwimlane
	}
	shape := style["shape"]
	if _, ok := style["ellipse"]; ok || shape == "mxgraph.flowchart.terminator" || shape == "mxgraph.bpmn.shape" {
		return drawioStartEnd
	}
	if _, ok := style["rhombus"]; ok || shape == "mxgraph.flowchart.decision" {
		return drawioDecision
	}
	return drawioTask
}

// parseStyle splits "key1=val1;key2=val2;bare;" into key/value pairs; bare
// tokens map to the empty string.
func parseStyle(style string) map[string]string {
	result := make(map[string]string)
	for _, part := range strings.Split(style, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if k, v, found := strings.Cut(part, "="); found {
			result[strings.TrimSpace(k)] = strings.TrimSpace(v)
		} else {
			result[part] = ""
		}
	}
	return result
}

type cellEntry struct {
	id string
	el *etree.Element
}

// collectCells gathers mxCell elements by id and unwraps object/UserObject
// wrappers, promoting the wrapped cell to the wrapper's id and backfilling a
// missing label from the wrapper's label/value attribute.
func collectCells(model *etree.Element) []cellEntry {
	var order []cellEntry
	index := make(map[string]int)

	add := func(id string, el *etree.Element) {
		if id == "" {
			return
		}
		if i, ok := index[id]; ok {
			order[i].el = el
			return
		}
		index[id] = len(order)
		order = append(order, cellEntry{id: id, el: el})
	}

	walkElements(model, func(el *etree.Element) {
		if el.Tag == "mxCell" {
			add(el.SelectAttrValue("id", ""), el)
		}
	})

	for _, wrapperTag := range []string{"UserObject", "object"} {
		walkElements(model, func(el *etree.Element) {
			if el.Tag != wrapperTag {
				return
			}
			inner := el.SelectElement("mxCell")
			if inner == nil {
				return
			}
			cid := el.SelectAttrValue("id", "")
			if cid == "" {
				return
			}
			if inner.SelectAttrValue("value", "") == "" {
				label := el.SelectAttrValue("label", "")
				if label == "" {
					label = el.SelectAttrValue("value", "")
				}
				inner.CreateAttr("value", label)
			}
			inner.CreateAttr("id", cid)
			add(cid, inner)
		})
	}

	return order
}

// findGraphModel locates the embedded mxGraphModel document, trying the three
// known packagings in order.
func findGraphModel(data []byte) *etree.Element {
	text := string(data)

	// Plain XML directly in the file.
	if m := mxModelRe.FindString(text); m != "" {
		if el := parseXMLFragment(m); el != nil {
			return el
		}
	}

	// Encoded payload inside a <diagram> wrapper.
	if m := diagramRe.FindStringSubmatch(text); m != nil {
		encoded := strings.TrimSpace(m[1])
		if encoded != "" {
			if el := parseXMLFragment(decodeDiagramPayload(encoded)); el != nil {
				return el
			}
		}
	}

	// HTML-escaped model in a content attribute.
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(data); err == nil && doc.Root() != nil {
		content := doc.Root().SelectAttrValue("content", "")
		if !strings.Contains(content, "mxGraphModel") {
			walkElements(doc.Root(), func(el *etree.Element) {
				if strings.Contains(content, "mxGraphModel") {
					return
				}
				if c := el.SelectAttrValue("content", ""); strings.Contains(c, "mxGraphModel") {
					content = c
				}
			})
		}
		if strings.Contains(content, "mxGraphModel") {
			if el := parseXMLFragment(content); el != nil {
				return el
			}
		}
	}

	return nil
}

func parseXMLFragment(s string) *etree.Element {
	if s == "" {
		return nil
	}
	doc := etree.NewDocument()
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromString(s); err != nil {
		return nil
	}
	return doc.Root()
}

// decodeDiagramPayload reverses the draw.io diagram encoding: base64, then
// raw deflate (falling back to zlib, then to the bytes as-is), then percent
// escapes.
func decodeDiagramPayload(encoded string) string {
	encoded = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || r == ' ' {
			return -1
		}
		return r
	}, encoded)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	xmlBytes, err := io.ReadAll(flate.NewReader(bytes.NewReader(raw)))
	if err != nil {
		if zr, zerr := zlib.NewReader(bytes.NewReader(raw)); zerr == nil {
			if b, rerr := io.ReadAll(zr); rerr == nil {
				xmlBytes = b
			} else {
				xmlBytes = raw
			}
			zr.Close()
		} else {
			xmlBytes = raw
		}
	}
	decoded, err := url.PathUnescape(string(xmlBytes))
	if err != nil {
		return string(xmlBytes)
	}
	return decoded
}
