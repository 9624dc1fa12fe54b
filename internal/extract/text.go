package extract

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// blockElements end a line of visible text
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "section": true, "article": true,
}

// VisibleText returns the text a reader would see in htmlContent, one line
// per block element. Scripts, styles and embedded frames are skipped.
func VisibleText(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var (
		buf  strings.Builder
		line strings.Builder
	)
	flush := func() {
		text := strings.Join(strings.Fields(line.String()), " ")
		if text != "" {
			buf.WriteString(text)
			buf.WriteString("\n")
		}
		line.Reset()
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			}
		}

		if n.Type == html.TextNode {
			line.WriteString(n.Data)
			line.WriteString(" ")
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}

	walk(doc)
	flush()
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// SplitMessages splits text into one message per non-blank line.
// Surrounding whitespace is trimmed; duplicates are kept.
func SplitMessages(text string) []string {
	var messages []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			messages = append(messages, line)
		}
	}
	return messages
}

// Messages extracts one message per block element of htmlContent
func Messages(htmlContent string) ([]string, error) {
	text, err := VisibleText(htmlContent)
	if err != nil {
		return nil, err
	}
	return SplitMessages(text), nil
}
