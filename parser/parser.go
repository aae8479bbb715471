package parser

import (
	"regexp"
	"strings"
)

// Response contains structured data extracted from a model response.
type Response struct {
	// Raw is the original response text.
	Raw string

	// Sections maps markdown header titles to their content.
	Sections map[string]string

	// Fields maps labelled lines ("**Decision:** ship it", "Risks: none")
	// to their values.
	Fields map[string]string

	// Verdict is the recommendation token found in the text.
	Verdict Verdict
}

// Parser extracts structured content from model responses.
// It is safe for concurrent use.
type Parser struct {
	// codeBlockRegex matches fenced code blocks.
	codeBlockRegex *regexp.Regexp

	// sectionRegex matches markdown headers.
	sectionRegex *regexp.Regexp

	// fieldRegex matches "Label: value" lines, optionally bolded.
	fieldRegex *regexp.Regexp

	numberedRegex *regexp.Regexp
	bulletRegex   *regexp.Regexp
	inlineArray   *regexp.Regexp
}

// NewParser creates a new response parser with compiled regexes.
func NewParser() *Parser {
	return &Parser{
		codeBlockRegex: regexp.MustCompile("(?s)```(\\w*)\\n(.*?)```"),
		sectionRegex:   regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`),
		fieldRegex:     regexp.MustCompile(`(?m)^\s*(?:[-*]\s+)?\*{0,2}([A-Za-z][A-Za-z _/-]{1,40}?)\*{0,2}:\*{0,2}[ \t]+(\S.*)$`),
		numberedRegex:  regexp.MustCompile(`(?m)^\s*\d+[.)]\s+(.+)$`),
		bulletRegex:    regexp.MustCompile(`(?m)^\s*[-*]\s+(.+)$`),
		inlineArray:    regexp.MustCompile(`(?s)^\[.*\]$`),
	}
}

// Parse extracts sections, labelled fields and the verdict from text.
func (p *Parser) Parse(text string) *Response {
	return &Response{
		Raw:      text,
		Sections: p.extractSections(text),
		Fields:   p.extractFields(text),
		Verdict:  ExtractVerdict(text),
	}
}

// extractSections extracts markdown sections and their content.
func (p *Parser) extractSections(text string) map[string]string {
	sections := make(map[string]string)

	matches := p.sectionRegex.FindAllStringSubmatchIndex(text, -1)
	for i, match := range matches {
		if len(match) < 6 {
			continue
		}

		title := cleanTitle(text[match[4]:match[5]])

		contentStart := match[1]
		contentEnd := len(text)
		if i+1 < len(matches) {
			contentEnd = matches[i+1][0]
		}

		sections[title] = strings.TrimSpace(text[contentStart:contentEnd])
	}

	return sections
}

// extractFields collects "Label: value" lines outside code blocks. The first
// occurrence of a label wins.
func (p *Parser) extractFields(text string) map[string]string {
	fields := make(map[string]string)
	for _, match := range p.fieldRegex.FindAllStringSubmatch(p.removeCodeBlocks(text), -1) {
		label := cleanTitle(match[1])
		if _, ok := fields[label]; ok {
			continue
		}
		fields[label] = strings.TrimSpace(strings.Trim(match[2], "* "))
	}
	return fields
}

// removeCodeBlocks removes all code blocks from the text.
func (p *Parser) removeCodeBlocks(text string) string {
	return p.codeBlockRegex.ReplaceAllString(text, "")
}

// submatches returns the trimmed first capture group of every match,
// skipping empty ones.
func submatches(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		if len(m) < 2 {
			continue
		}
		if s := strings.TrimSpace(m[1]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// cleanTitle strips markdown emphasis, numbering and trailing colons.
func cleanTitle(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "*_# ")
	s = strings.TrimSuffix(s, ":")
	return strings.TrimSpace(s)
}

// Parse is a convenience function using the default parser.
func Parse(text string) *Response {
	return NewParser().Parse(text)
}
