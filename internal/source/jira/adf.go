package jira

import (
	"fmt"
	"strings"

	"github.com/ctreminiom/go-atlassian/v2/pkg/infra/models"
)

// adfDocument wraps plain text in the minimal Atlassian Document Format tree
// the v3 API accepts: one paragraph per line.
func adfDocument(text string) *models.CommentNodeScheme {
	doc := &models.CommentNodeScheme{Version: 1, Type: "doc"}
	for _, line := range strings.Split(text, "\n") {
		para := &models.CommentNodeScheme{Type: "paragraph"}
		if line != "" {
			para.Content = []*models.CommentNodeScheme{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, para)
	}
	return doc
}

// adfToMarkdown renders an ADF node tree as Markdown. Nil input renders as
// "". Unsupported node types produce [unsupported: type] placeholders rather
// than silently dropping content.
func adfToMarkdown(node *models.CommentNodeScheme) string {
	if node == nil {
		return ""
	}
	var b strings.Builder
	renderADF(&b, node, 0, false)
	return strings.TrimRight(b.String(), "\n")
}

func renderADF(b *strings.Builder, node *models.CommentNodeScheme, depth int, inList bool) {
	if node == nil {
		return
	}

	switch node.Type {
	case "doc":
		renderADFChildren(b, node, depth, false)

	case "paragraph":
		renderADFChildren(b, node, depth, false)
		if inList {
			b.WriteString("\n")
		} else {
			b.WriteString("\n\n")
		}

	case "heading":
		b.WriteString(strings.Repeat("#", adfAttrInt(node.Attrs, "level", 1)))
		b.WriteString(" ")
		renderADFChildren(b, node, depth, false)
		b.WriteString("\n\n")

	case "text":
		b.WriteString(applyMarks(node.Text, node.Marks))

	case "hardBreak":
		b.WriteString("  \n")

	case "bulletList":
		for _, item := range node.Content {
			b.WriteString(strings.Repeat("  ", depth))
			b.WriteString("- ")
			renderListItem(b, item, depth+1)
		}

	case "orderedList":
		for i, item := range node.Content {
			b.WriteString(strings.Repeat("  ", depth))
			fmt.Fprintf(b, "%d. ", i+1)
			renderListItem(b, item, depth+1)
		}

	case "listItem":
		renderADFChildren(b, node, depth, true)

	case "codeBlock":
		b.WriteString("```")
		b.WriteString(adfAttrString(node.Attrs, "language"))
		b.WriteString("\n")
		renderADFChildren(b, node, depth, false)
		b.WriteString("\n```\n\n")

	case "blockquote":
		var inner strings.Builder
		renderADFChildren(&inner, node, depth, false)
		for _, line := range strings.Split(strings.TrimRight(inner.String(), "\n"), "\n") {
			b.WriteString("> ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")

	case "rule":
		b.WriteString("---\n\n")

	case "mention":
		name := adfAttrString(node.Attrs, "text")
		if name == "" {
			name = "@mention"
		}
		b.WriteString(name)

	case "emoji":
		b.WriteString(adfAttrString(node.Attrs, "shortName"))

	case "inlineCard":
		b.WriteString(adfAttrString(node.Attrs, "url"))

	case "mediaSingle", "mediaGroup":
		b.WriteString("[media]\n\n")

	default:
		fmt.Fprintf(b, "[unsupported: %s]", node.Type)
		renderADFChildren(b, node, depth, false)
	}
}

func renderADFChildren(b *strings.Builder, node *models.CommentNodeScheme, depth int, inList bool) {
	for _, child := range node.Content {
		renderADF(b, child, depth, inList)
	}
}

// renderListItem inlines the item's first paragraph with its bullet prefix.
func renderListItem(b *strings.Builder, item *models.CommentNodeScheme, depth int) {
	if item == nil {
		b.WriteString("\n")
		return
	}
	for i, child := range item.Content {
		if i == 0 && child.Type == "paragraph" {
			renderADFChildren(b, child, depth, true)
			b.WriteString("\n")
			continue
		}
		renderADF(b, child, depth, true)
	}
}

func applyMarks(text string, marks []*models.MarkScheme) string {
	for _, mark := range marks {
		switch mark.Type {
		case "strong":
			text = "**" + text + "**"
		case "em":
			text = "*" + text + "*"
		case "code":
			text = "`" + text + "`"
		case "strike":
			text = "~~" + text + "~~"
		case "underline":
			text = "_" + text + "_"
		case "link":
			if href, ok := mark.Attrs["href"].(string); ok && href != "" {
				text = "[" + text + "](" + href + ")"
			}
		}
	}
	return text
}

func adfAttrString(attrs map[string]interface{}, key string) string {
	s, _ := attrs[key].(string)
	return s
}

func adfAttrInt(attrs map[string]interface{}, key string, fallback int) int {
	switch n := attrs[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return fallback
	}
}
