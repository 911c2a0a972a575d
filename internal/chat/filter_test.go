// internal/chat/filter_test.go
package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterResponse(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "LanguageCopyCodeGlue",
			in:   "pythonCopy codedef hello():\n    print('Hello')",
			want: "def hello():\n    print('Hello')",
		},
		{
			name: "CopyCodeAfterProse",
			in:   "Here's the code:\nbashCopy code#!/bin/bash\necho 'test'",
			want: "Here's the code:\n#!/bin/bash\necho 'test'",
		},
		{
			name: "CaseInsensitiveLanguageGlue",
			in:   "PYTHONCopy codex = 1",
			want: "x = 1",
		},
		{
			name: "StandaloneCopyCode",
			in:   "Copy code\nresult",
			want: "result",
		},
		{
			name: "StandaloneCopyCodeIsCaseSensitive",
			in:   "copy code is a phrase",
			want: "copy code is a phrase",
		},
		{
			name: "CopyCodeInsideWordKept",
			in:   "PhotocopyCopy codes everywhere",
			want: "PhotocopyCopy codes everywhere",
		},
		{
			name: "EditCodeArtifacts",
			in:   "pythonEdit codeprint(1)\nEdit code",
			want: "print(1)",
		},
		{
			name: "HTMLEntities",
			in:   "Use &lt;div&gt; for containers",
			want: "Use <div> for containers",
		},
		{
			name: "DoubleEscapedEntityUnescapesOneLevel",
			in:   "escaped: &amp;lt;tag&amp;gt;",
			want: "escaped: &lt;tag&gt;",
		},
		{
			name: "QuoteEntities",
			in:   "say &quot;hi&quot; and &#39;bye&#39;",
			want: `say "hi" and 'bye'`,
		},
		{
			name: "FullLineUILabels",
			in:   "keep this\nCopy\nCopied!\nRun\n42\nand this",
			want: "keep this\n\n\nand this",
		},
		{
			name: "InlineUIWordsKept",
			in:   "Run the tests and Copy the output",
			want: "Run the tests and Copy the output",
		},
		{
			name: "ThinkBlocksRemoved",
			in:   "before <think>internal\nreasoning</think> after",
			want: "before  after",
		},
		{
			name: "ThinkBlockCaseInsensitive",
			in:   "<THINK>gone</THINK>kept",
			want: "kept",
		},
		{
			name: "NewlineRunsCollapsed",
			in:   "a\n\n\n\n\n\nb",
			want: "a\n\n\nb",
		},
		{
			name: "TrailingWhitespaceTrimmed",
			in:   "  line one   \nline two\t\n",
			want: "line one\nline two",
		},
		{
			name: "CleanTextUntouched",
			in:   "Simple text without issues",
			want: "Simple text without issues",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, FilterResponse(tc.in))
		})
	}
}

func TestFilterResponseCustomFilters(t *testing.T) {
	upper := func(s string) string { return strings.ToUpper(s) }
	assert.Equal(t, "HELLO", FilterResponse("hello", upper))

	// Custom filters replace the default pipeline entirely.
	assert.Equal(t, "PYTHONCOPY CODEX", FilterResponse("pythonCopy codex", upper))
}

func TestAnalyzeResponse(t *testing.T) {
	t.Run("CountsArtifacts", func(t *testing.T) {
		issues := AnalyzeResponse("pythonCopy codex\nCopy code\n&lt;div&gt; &lt;span&gt;")
		assert.Equal(t, 1, issues["language_copy_code"])
		assert.Equal(t, 1, issues["standalone_copy_code"])
		assert.Equal(t, 2, issues["html_entity_&lt;"])
		assert.Equal(t, 2, issues["html_entity_&gt;"])
	})

	t.Run("CleanTextHasNoIssues", func(t *testing.T) {
		assert.Empty(t, AnalyzeResponse("all good here"))
	})
}
