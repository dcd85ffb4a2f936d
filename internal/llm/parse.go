package llm

import (
	"fmt"
	"regexp"
	"strings"
)

// Collaborator replies carry their payloads in dash-delimited blocks:
//
//	----SPEC----
//	{ ... corrected mapping json ... }
//	----END SPEC----
//
// Block names in use: SPEC, CODE, FILL. Anything outside the blocks is
// commentary and ignored.

// The patterns are compiled once up front; ExtractBlock runs from the
// pipeline's worker goroutines and must not mutate shared state.
var blockPatterns = map[string]*regexp.Regexp{
	"SPEC": compileBlockPattern("SPEC"),
	"CODE": compileBlockPattern("CODE"),
	"FILL": compileBlockPattern("FILL"),
}

func compileBlockPattern(tag string) *regexp.Regexp {
	return regexp.MustCompile(
		`(?s)-{2,}\s*` + regexp.QuoteMeta(tag) + `\s*-{2,}\s*\n(.*?)\n-{2,}\s*END ` +
			regexp.QuoteMeta(tag) + `\s*-{2,}`)
}

func blockPattern(tag string) *regexp.Regexp {
	if re, ok := blockPatterns[tag]; ok {
		return re
	}
	return compileBlockPattern(tag)
}

// ExtractBlock returns the body of the named block, trimmed, and whether it
// was present.
func ExtractBlock(reply, tag string) (string, bool) {
	m := blockPattern(tag).FindStringSubmatch(reply)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(stripFences(m[1])), true
}

// ExtractFill returns the FILL block as individual non-empty lines.
func ExtractFill(reply string) []string {
	body, ok := ExtractBlock(reply, "FILL")
	if !ok {
		return nil
	}
	var lines []string
	for _, l := range strings.Split(body, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// CheckBalanced is a cheap structural sanity check on a CODE block before it
// is spliced into a harness: brace, bracket and paren counts must balance.
// It does not parse Rust; it only rejects obviously truncated replies.
func CheckBalanced(code string) error {
	pairs := []struct {
		open, close rune
		name        string
	}{
		{'{', '}', "brace"},
		{'(', ')', "paren"},
		{'[', ']', "bracket"},
	}
	for _, p := range pairs {
		depth := 0
		for _, r := range code {
			switch r {
			case p.open:
				depth++
			case p.close:
				depth--
			}
		}
		if depth != 0 {
			return fmt.Errorf("llm: unbalanced %ss in code block (%+d)", p.name, depth)
		}
	}
	return nil
}

// stripFences removes a surrounding markdown code fence if the block body
// was wrapped in one.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		return strings.Join(lines[1:len(lines)-1], "\n")
	}
	return s
}
