package conv

import (
	"strings"

	"github.com/inbucket/html2text"
)

// HTMLToText flattens review or description markup into plain text. Input
// without tags is returned with whitespace collapsed.
func HTMLToText(s string) (string, error) {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpaces(s), nil
	}
	text, err := html2text.FromString(s, html2text.Options{
		OmitLinks: true,
	})
	if err != nil {
		return "", err
	}
	return collapseSpaces(text), nil
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
