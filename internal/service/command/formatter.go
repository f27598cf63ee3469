package command

import (
	"fmt"
	"math"
	"strings"

	"github.com/sandevgo/recomate/internal/core"
)

const barCells = 5

// ResponseFormatter renders command replies as Markdown; transports convert
// it for their channel.
type ResponseFormatter struct{}

func NewResponseFormatter() *ResponseFormatter {
	return &ResponseFormatter{}
}

func (f *ResponseFormatter) Heading(title string) string {
	return fmt.Sprintf("**%s**\n", title)
}

func (f *ResponseFormatter) Usage(command string) string {
	return fmt.Sprintf("**Usage**: `%s`\n", command)
}

func (f *ResponseFormatter) Hint(text string) string {
	return fmt.Sprintf("_%s_\n", text)
}

func (f *ResponseFormatter) List(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("› ")
		sb.WriteString(item)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Preference renders one profile entry with a weight bar:
// "▰▰▰▰▱ brand: new balance `0.80`".
func (f *ResponseFormatter) Preference(wt core.WeightedTag) string {
	w := math.Max(0, math.Min(1, wt.Weight))
	filled := int(math.Round(w * barCells))
	bar := strings.Repeat("▰", filled) + strings.Repeat("▱", barCells-filled)
	return fmt.Sprintf("%s %s `%.2f`\n", bar, displayTag(wt.Tag), wt.Weight)
}

// Turn renders one history entry: the input and what came of it.
func (f *ResponseFormatter) Turn(t core.Turn) string {
	outcome := strings.Join(t.Recommendations.ProductIDs(), ", ")
	switch {
	case t.Status == core.TurnFailed:
		outcome = "failed"
	case len(t.Recommendations) == 0:
		outcome = "no matches"
	}
	return fmt.Sprintf("#%d %q › %s", t.Seq, t.Input, outcome)
}

func (f *ResponseFormatter) Combine(sections ...string) string {
	return strings.Join(sections, "\n")
}

// displayTag turns "brand:new_balance" into "brand: new balance".
func displayTag(tag string) string {
	tag = strings.ReplaceAll(tag, "_", " ")
	if kind, value, ok := strings.Cut(tag, ":"); ok {
		return kind + ": " + value
	}
	return tag
}
