package parser

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"
)

// ideaKeys are object keys that hold an idea's text, in preference order.
var ideaKeys = []string{"idea", "title", "name", "summary", "description", "text"}

// ExtractSection returns the content of a section by title. Matching is
// exact first, then case-insensitive, then by case-insensitive prefix, then
// against labelled fields. Returns "" when nothing matches.
func (p *Parser) ExtractSection(text, title string) string {
	sections := p.extractSections(text)

	if content, ok := sections[title]; ok {
		return content
	}
	for sectionTitle, content := range sections {
		if strings.EqualFold(sectionTitle, title) {
			return content
		}
	}
	lower := strings.ToLower(title)
	for sectionTitle, content := range sections {
		if strings.HasPrefix(strings.ToLower(sectionTitle), lower) {
			return content
		}
	}

	for label, value := range p.extractFields(text) {
		if strings.EqualFold(label, title) {
			return value
		}
	}
	return ""
}

// ExtractList extracts "-" and "*" bullet items.
func (p *Parser) ExtractList(text string) []string {
	return submatches(p.bulletRegex, p.removeCodeBlocks(text))
}

// ExtractNumberedList extracts numbered list items ("1." or "1)").
func (p *Parser) ExtractNumberedList(text string) []string {
	return submatches(p.numberedRegex, p.removeCodeBlocks(text))
}

// ExtractStringArray extracts items of JSON arrays found in code blocks or on
// their own line. String elements are kept as-is; object elements contribute
// their first non-empty idea key.
func (p *Parser) ExtractStringArray(text string) []string {
	var candidates []string
	for _, match := range p.codeBlockRegex.FindAllStringSubmatch(text, -1) {
		if match[1] == "json" || match[1] == "" {
			candidates = append(candidates, strings.TrimSpace(match[2]))
		}
	}
	for _, line := range strings.Split(p.removeCodeBlocks(text), "\n") {
		line = strings.TrimSpace(line)
		if p.inlineArray.MatchString(line) {
			candidates = append(candidates, line)
		}
	}

	var items []string
	for _, c := range candidates {
		var arr []any
		if err := json.Unmarshal([]byte(c), &arr); err != nil {
			continue
		}
		items = append(items, flattenItems(arr)...)
	}
	return items
}

// ExtractYAMLList extracts items from yaml code blocks holding either a list
// or a map with an "ideas" list.
func (p *Parser) ExtractYAMLList(text string) []string {
	var items []string
	for _, match := range p.codeBlockRegex.FindAllStringSubmatch(text, -1) {
		if match[1] != "yaml" && match[1] != "yml" {
			continue
		}

		var list []any
		if err := yaml.Unmarshal([]byte(match[2]), &list); err == nil {
			items = append(items, flattenItems(list)...)
			continue
		}

		var doc map[string]any
		if err := yaml.Unmarshal([]byte(match[2]), &doc); err == nil {
			if ideas, ok := doc["ideas"].([]any); ok {
				items = append(items, flattenItems(ideas)...)
			}
		}
	}
	return items
}

// ExtractIdeas returns list items from text, trying in order JSON arrays,
// YAML lists, numbered lists and bullet lists. The first format that yields
// anything wins. Duplicates are removed, preserving order.
func (p *Parser) ExtractIdeas(text string) []string {
	extractors := []func(string) []string{
		p.ExtractStringArray,
		p.ExtractYAMLList,
		p.ExtractNumberedList,
		p.ExtractList,
	}
	for _, extract := range extractors {
		if items := dedupe(extract(text)); len(items) > 0 {
			return items
		}
	}
	return nil
}

// ExtractSection is a convenience function for section extraction.
func ExtractSection(text, title string) string {
	return NewParser().ExtractSection(text, title)
}

// ExtractIdeas is a convenience function for idea extraction.
func ExtractIdeas(text string) []string {
	return NewParser().ExtractIdeas(text)
}

func flattenItems(arr []any) []string {
	items := make([]string, 0, len(arr))
	for _, el := range arr {
		switch v := el.(type) {
		case string:
			items = append(items, strings.TrimSpace(v))
		case map[string]any:
			for _, key := range ideaKeys {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					items = append(items, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return items
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
