package dash

import (
	"fmt"
	"regexp"
	"strings"
)

// TemplateValues are the live values substituted into a segment URL
// template for one fragment.
type TemplateValues struct {
	Number    int64
	Time      int64
	Bandwidth int64
}

type templateToken struct {
	literal string
	// ident is one of Number, Time, Bandwidth; empty for literal tokens.
	ident string
	width int
}

// Template is a compiled segment URL template. Literal text, including any
// % characters outside $...$ spans, passes through expansion unchanged.
type Template struct {
	tokens []templateToken
}

var identifierRe = regexp.MustCompile(`^(Number|Time|Bandwidth)(?:%0(\d+)d)?$`)

// PrepareTemplate compiles a SegmentTemplate media/initialization string.
// $RepresentationID$ is substituted immediately since it is constant for a
// representation; $Number$, $Time$ and $Bandwidth$ become placeholders,
// optionally with a $...%0Nd$ zero-padding width. $$ is a literal dollar,
// and unknown identifiers are kept verbatim. identifiers restricts which
// placeholders are allowed (initialization templates may only use
// Bandwidth).
func PrepareTemplate(tmpl, representationID string, identifiers ...string) *Template {
	if representationID != "" {
		tmpl = strings.ReplaceAll(tmpl, "$RepresentationID$", representationID)
	}
	allowed := func(ident string) bool {
		for _, id := range identifiers {
			if id == ident {
				return true
			}
		}
		return false
	}

	var t Template
	var literal strings.Builder
	rest := tmpl
	for {
		dollar := strings.IndexByte(rest, '$')
		if dollar < 0 {
			literal.WriteString(rest)
			break
		}
		literal.WriteString(rest[:dollar])
		rest = rest[dollar+1:]
		end := strings.IndexByte(rest, '$')
		if end < 0 {
			// Unterminated span; keep it as literal text.
			literal.WriteString("$" + rest)
			break
		}
		span := rest[:end]
		rest = rest[end+1:]
		if span == "" {
			literal.WriteString("$")
			continue
		}
		m := identifierRe.FindStringSubmatch(span)
		if m == nil || !allowed(m[1]) {
			literal.WriteString("$" + span + "$")
			continue
		}
		width := 0
		if m[2] != "" {
			fmt.Sscanf(m[2], "%d", &width)
		}
		t.tokens = append(t.tokens, templateToken{literal: literal.String()})
		literal.Reset()
		t.tokens = append(t.tokens, templateToken{ident: m[1], width: width})
	}
	if literal.Len() > 0 {
		t.tokens = append(t.tokens, templateToken{literal: literal.String()})
	}
	return &t
}

// UsesNumber reports whether expansion substitutes $Number$; that decides
// between count-based and timeline-based fragment enumeration.
func (t *Template) UsesNumber() bool {
	for _, tok := range t.tokens {
		if tok.ident == "Number" {
			return true
		}
	}
	return false
}

// Expand renders the template with the given values.
func (t *Template) Expand(vals TemplateValues) string {
	var sb strings.Builder
	for _, tok := range t.tokens {
		if tok.ident == "" {
			sb.WriteString(tok.literal)
			continue
		}
		var v int64
		switch tok.ident {
		case "Number":
			v = vals.Number
		case "Time":
			v = vals.Time
		case "Bandwidth":
			v = vals.Bandwidth
		}
		if tok.width > 0 {
			fmt.Fprintf(&sb, "%0*d", tok.width, v)
		} else {
			fmt.Fprintf(&sb, "%d", v)
		}
	}
	return sb.String()
}
