package conv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarkdownToTelegramHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty", input: "", expected: ""},
		{name: "plain answer", input: "No products matched", expected: "No products matched\n"},
		{
			name:     "product line",
			input:    "**Trail Runner** - Nike, 89.99 USD",
			expected: "<strong>Trail Runner</strong> - Nike, 89.99 USD\n",
		},
		{
			name:     "rationale note",
			input:    "_matches what you liked before_",
			expected: "<em>matches what you liked before</em>\n",
		},
		{name: "old price", input: "~~120 USD~~", expected: "<del>120 USD</del>\n"},
		{name: "product id", input: "`p-42`", expected: "<code>p-42</code>\n"},
		{
			name:     "product link",
			input:    "[Trail Runner](https://shop.example.com/p/42)",
			expected: "<a href=\"https://shop.example.com/p/42\">Trail Runner</a>\n",
		},
		{name: "review quote", input: "> runs a bit small", expected: "<blockquote>\nruns a bit small\n</blockquote>\n"},
		{name: "header stripped", input: "# Top picks", expected: "Top picks\n"},
		{name: "script sanitized", input: "<script>alert('xss')</script>", expected: "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MarkdownToTelegramHTML([]byte(tt.input)))
		})
	}
}

func TestMarkdownToTelegramHTML_List(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{
			name:     "ranked picks",
			input:    "Here are my top picks:\n\n1. **Trail Runner** - Nike\n2. **Road Glide** - Asics\n",
			contains: []string{"1. <strong>Trail Runner</strong> - Nike\n", "2. <strong>Road Glide</strong> - Asics\n"},
		},
		{
			name:     "comparison table",
			input:    "| Product | Brand |\n|---|---|\n| **Trail Runner** | Nike |\n| Road Glide | Asics |\n",
			contains: []string{"Product | Brand\n", "<strong>Trail Runner</strong> | Nike\n", "Road Glide | Asics\n"},
		},
		{
			name:     "commands",
			input:    "- /help\n- /profile\n",
			contains: []string{"• /help\n", "• /profile\n"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MarkdownToTelegramHTML([]byte(tt.input))
			for _, want := range tt.contains {
				assert.Contains(t, got, want)
			}
			for _, tag := range []string{"<ol>", "<ul>", "<li>", "<p>", "<table>", "<tr>", "<td>", "<th>"} {
				assert.NotContains(t, got, tag)
			}
		})
	}
}

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{name: "fits", text: "hello", maxLen: 10, want: []string{"hello"}},
		{
			name:   "newline boundary",
			text:   strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8),
			maxLen: 10,
			want:   []string{strings.Repeat("a", 8), strings.Repeat("b", 8)},
		},
		{
			name:   "hard cut",
			text:   strings.Repeat("x", 25),
			maxLen: 10,
			want:   []string{strings.Repeat("x", 10), strings.Repeat("x", 10), strings.Repeat("x", 5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitMessage(tt.text, tt.maxLen)
			assert.Equal(t, tt.want, got)
			for _, chunk := range got {
				assert.LessOrEqual(t, len(chunk), tt.maxLen)
			}
		})
	}
}
