package conv

import (
	"fmt"
	"io"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

var (
	extensions = parser.CommonExtensions | parser.NoEmptyLineBeforeBlock
	htmlFlags  = html.CommonFlags | html.HrefTargetBlank
	tgPolicy   = bluemonday.NewPolicy()
)

func init() {
	// Allowed tags https://core.telegram.org/bots/api#html-style
	tgPolicy.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote")
	tgPolicy.AllowAttrs("href").OnElements("a")
	tgPolicy.AllowAttrs("class").OnElements("code")
}

// MarkdownToTelegramHTML renders md and keeps only the tags Telegram accepts.
// Lists and tables have no Telegram tag, so list items are written as "1. "
// or "• " lines to keep the ranking visible and table rows as "a | b" lines.
func MarkdownToTelegramHTML(md []byte) string {
	p := parser.NewWithExtensions(extensions)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags:          htmlFlags,
		RenderNodeHook: renderPlain,
	})
	unsafeHTML := markdown.Render(p.Parse(md), renderer)

	return string(tgPolicy.SanitizeBytes(unsafeHTML))
}

func renderPlain(w io.Writer, node ast.Node, entering bool) (ast.WalkStatus, bool) {
	switch n := node.(type) {
	case *ast.List, *ast.Table, *ast.TableHeader, *ast.TableBody:
		return ast.GoToNext, true
	case *ast.TableRow:
		if !entering {
			_, _ = io.WriteString(w, "\n")
		}
		return ast.GoToNext, true
	case *ast.TableCell:
		if entering && n.GetParent().GetChildren()[0] != ast.Node(n) {
			_, _ = io.WriteString(w, " | ")
		}
		return ast.GoToNext, true
	case *ast.ListItem:
		if entering {
			_, _ = io.WriteString(w, listMarker(n))
		} else {
			_, _ = io.WriteString(w, "\n")
		}
		return ast.GoToNext, true
	}
	return ast.GoToNext, false
}

func listMarker(item *ast.ListItem) string {
	if item.ListFlags&ast.ListTypeOrdered == 0 {
		return "• "
	}
	list, ok := item.GetParent().(*ast.List)
	if !ok {
		return "1. "
	}
	start := max(list.Start, 1)
	for i, child := range list.GetChildren() {
		if child == ast.Node(item) {
			return fmt.Sprintf("%d. ", start+i)
		}
	}
	return fmt.Sprintf("%d. ", start)
}

// SplitMessage splits text into chunks of at most maxLen bytes, preferring
// newline boundaries in the latter two thirds of a chunk.
func SplitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cut := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/3 {
			cut = idx
		}

		chunks = append(chunks, text[:cut])
		text = strings.TrimSpace(text[cut:])
	}
	return chunks
}
