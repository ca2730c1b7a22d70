package renderer

import (
	"bytes"
	"fmt"
	"html"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Terminal renders md for a terminal wrapping at width columns.
func Terminal(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}
	return r.Render(md)
}

// HTML converts md into an HTML fragment.
func HTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

const pageStyle = `body{font-family:sans-serif;max-width:60em;margin:2em auto}` +
	`table{border-collapse:collapse}th,td{padding:.25em .75em;border-bottom:1px solid #ddd}`

// Page converts md into a standalone HTML page.
func Page(title, md string) (string, error) {
	body, err := HTML(md)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title><style>%s</style></head>\n<body>\n%s</body></html>\n",
		html.EscapeString(title), pageStyle, body), nil
}
