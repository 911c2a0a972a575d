// internal/chat/filter.go
package chat

import (
	"regexp"
	"strings"
)

// Text extracted from the page carries UI residue: copy-button labels glued
// to code blocks, escaped entities, stray line numbers. The filter pipeline
// strips those so the relayed reply is usable as plain text. Applied when
// chat.filter_response is set.

// codeBlockLanguages are the labels the UI glues onto code block chrome.
var codeBlockLanguages = []string{
	"python", "javascript", "typescript", "java", "c", "cpp", "csharp", "cs",
	"go", "rust", "ruby", "php", "swift", "kotlin", "scala", "perl",
	"bash", "shell", "sh", "zsh", "powershell", "ps1", "cmd", "batch",
	"sql", "mysql", "postgresql", "sqlite", "mongodb",
	"html", "css", "scss", "sass", "less",
	"json", "yaml", "yml", "xml", "toml", "ini", "conf",
	"markdown", "md", "txt", "text", "plaintext",
	"dockerfile", "docker", "makefile", "cmake",
	"r", "matlab", "julia", "lua", "elixir", "erlang", "haskell",
	"vim", "awk", "sed", "grep",
}

func languageAlternation() string {
	quoted := make([]string, len(codeBlockLanguages))
	for i, lang := range codeBlockLanguages {
		quoted[i] = regexp.QuoteMeta(lang)
	}
	return strings.Join(quoted, "|")
}

var (
	langCopyCodeRe   = regexp.MustCompile(`(?i)(` + languageAlternation() + `)Copy code`)
	standaloneCopyRe = regexp.MustCompile(`\bCopy code\b`)
	editCodeRe       = regexp.MustCompile(`(?i)(` + languageAlternation() + `)?Edit code`)
	thinkBlockRe     = regexp.MustCompile(`(?is)<think>.*?</think>`)
	blankLineRunRe   = regexp.MustCompile(`\n{4,}`)
	uiLabelLineRes   = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^[ \t]*Copy[ \t]*$`),
		regexp.MustCompile(`(?m)^[ \t]*Copied![ \t]*$`),
		regexp.MustCompile(`(?m)^[ \t]*Run[ \t]*$`),
		// Standalone line numbers from gutter extraction.
		regexp.MustCompile(`(?m)^[ \t]*[0-9]+[ \t]*$`),
	}
)

// htmlEntityReplacements is ordered: each pass unescapes one level, so
// "&amp;lt;" comes out as "&lt;" rather than "<".
var htmlEntityReplacements = [][2]string{
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&amp;", "&"},
	{"&quot;", `"`},
	{"&#39;", "'"},
	{"&nbsp;", " "},
}

// TextFilter transforms extracted reply text.
type TextFilter func(string) string

func removeCopyCodeArtifacts(text string) string {
	text = langCopyCodeRe.ReplaceAllString(text, "")
	return standaloneCopyRe.ReplaceAllString(text, "")
}

func removeEditCodeArtifacts(text string) string {
	return editCodeRe.ReplaceAllString(text, "")
}

func decodeHTMLEntities(text string) string {
	for _, pair := range htmlEntityReplacements {
		text = strings.ReplaceAll(text, pair[0], pair[1])
	}
	return text
}

func removeUIButtonLines(text string) string {
	for _, re := range uiLabelLineRes {
		text = re.ReplaceAllString(text, "")
	}
	return text
}

func removeThinkingBlocks(text string) string {
	return thinkBlockRe.ReplaceAllString(text, "")
}

func normalizeWhitespace(text string) string {
	text = blankLineRunRe.ReplaceAllString(text, "\n\n\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// DefaultFilters returns the standard cleanup pipeline, in application order.
func DefaultFilters() []TextFilter {
	return []TextFilter{
		removeCopyCodeArtifacts,
		removeEditCodeArtifacts,
		decodeHTMLEntities,
		removeUIButtonLines,
		removeThinkingBlocks,
		normalizeWhitespace,
	}
}

// FilterResponse runs text through the given filters, or through
// DefaultFilters when none are passed.
func FilterResponse(text string, filters ...TextFilter) string {
	if len(filters) == 0 {
		filters = DefaultFilters()
	}
	for _, f := range filters {
		text = f(text)
	}
	return text
}

// AnalyzeResponse counts residue patterns still present in text. A debugging
// aid for spotting new artifact shapes before they get a filter.
func AnalyzeResponse(text string) map[string]int {
	issues := make(map[string]int)
	if n := len(langCopyCodeRe.FindAllString(text, -1)); n > 0 {
		issues["language_copy_code"] = n
	}
	if n := len(standaloneCopyRe.FindAllString(text, -1)); n > 0 {
		issues["standalone_copy_code"] = n
	}
	for _, pair := range htmlEntityReplacements {
		if n := strings.Count(text, pair[0]); n > 0 {
			issues["html_entity_"+pair[0]] = n
		}
	}
	return issues
}
