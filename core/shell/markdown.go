package shell

import (
	"fmt"
	"html"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/offlineai/localchat/core/types"
)

// MarkdownToHTML renders model output. Raw HTML in the input is escaped.
func MarkdownToHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	r := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank | mdhtml.SkipHTML,
	})
	return string(markdown.ToHTML([]byte(md), p, r))
}

// HTMLToMarkdown turns HTML pasted into the composer into prompt text.
func HTMLToMarkdown(src string) (string, error) {
	md, err := htmltomarkdown.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("failed to convert html: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Transcript renders a saved chat as a standalone HTML page.
func Transcript(agent types.Agent, record types.ChatRecord) string {
	var sb strings.Builder

	title := html.EscapeString(record.Title)
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&sb, "<title>%s</title>", title)
	sb.WriteString("<style>body{font-family:sans-serif;max-width:48rem;margin:2rem auto;}" +
		".msg{padding:.5rem 1rem;margin:.5rem 0;border-radius:.5rem;}" +
		".user{background:#eef2ff;}.assistant{background:#f9fafb;}" +
		"details{color:#6b7280;margin-bottom:.5rem;}</style></head><body>\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n", title)
	fmt.Fprintf(&sb, "<p>%s &middot; %s</p>\n",
		html.EscapeString(agent.Name), record.Timestamp.Format("2006-01-02 15:04"))

	for _, m := range record.History {
		if m.Role == types.RoleSystem {
			continue
		}
		fmt.Fprintf(&sb, "<div class=\"msg %s\">\n", m.Role)
		for _, p := range m.Parts {
			if p.Thinking != "" {
				sb.WriteString("<details><summary>View reasoning</summary>\n")
				sb.WriteString(MarkdownToHTML(p.Thinking))
				sb.WriteString("</details>\n")
			}
			for _, img := range p.Images {
				fmt.Fprintf(&sb, "<img src=\"%s\" style=\"max-width:100%%\">\n", html.EscapeString(img))
			}
			if m.Role == types.RoleUser {
				fmt.Fprintf(&sb, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(p.Text), "\n", "<br>"))
				continue
			}
			sb.WriteString(MarkdownToHTML(p.Text))
		}
		sb.WriteString("</div>\n")
	}

	sb.WriteString("</body></html>\n")
	return sb.String()
}
