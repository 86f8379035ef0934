package extract

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Russian prepositions, conjunctions and particles of one or two letters.
// A short trailing fragment that is one of these words keeps its preceding
// space; anything else is assumed to be a word broken by the exporting tool.
var ruShortWords = map[string]struct{}{
	"и": {}, "в": {}, "с": {}, "к": {}, "о": {}, "у": {}, "а": {}, "я": {},
	"на": {}, "не": {}, "но": {}, "по": {}, "до": {}, "за": {}, "из": {},
	"от": {}, "ли": {}, "ни": {}, "же": {}, "бы": {}, "во": {}, "ко": {},
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// isWordFragment reports whether s consists of 1..max word runes.
func isWordFragment(s string, max int) bool {
	n := 0
	for _, r := range s {
		if !isWordRune(r) {
			return false
		}
		n++
	}
	return n >= 1 && n <= max
}

// trailingWordRunes counts the run of word runes at the end of s.
func trailingWordRunes(s string) int {
	rs := []rune(s)
	n := 0
	for i := len(rs) - 1; i >= 0; i-- {
		if !isWordRune(rs[i]) {
			break
		}
		n++
	}
	return n
}

// RepairBrokenWords closes accidental spaces inserted mid-word by the
// exporting tool: "Подтверждени е" becomes "Подтверждение", while
// "операции и" stays untouched because "и" is a genuine short word.
// The heuristic is approximate; mis-joins on unusual text are a known
// limitation, not a defect.
func RepairBrokenWords(s string) string {
	tokens := strings.Split(s, " ")
	if len(tokens) < 2 {
		return s
	}
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		if i+1 < len(tokens) {
			next := tokens[i+1]
			if trailingWordRunes(tok) >= 2 && isWordFragment(next, 2) {
				if _, genuine := ruShortWords[strings.ToLower(next)]; !genuine {
					out = append(out, tok+next)
					i++
					continue
				}
			}
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

// CleanHTMLLabel strips markup from a draw.io cell value. Labels are often
// wrapped in <div>, <b>, <br> and carry HTML entities; only the visible text
// survives, with whitespace collapsed.
func CleanHTMLLabel(value string) string {
	if value == "" {
		return ""
	}
	if !strings.ContainsAny(value, "<&") {
		return collapseSpaces(value)
	}
	node, err := html.Parse(strings.NewReader(value))
	if err != nil || node == nil {
		return collapseSpaces(value)
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return collapseSpaces(b.String())
}

// collapseSpaces folds all whitespace runs (including NBSP from decoded
// entities) into single spaces and trims the ends.
func collapseSpaces(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
