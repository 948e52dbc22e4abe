package dockind

import (
	"context"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/xxxsen/coscribe/internal/model"
)

// TextHandler stores markdown prose. Content is normalized to unix line
// endings with a single trailing newline; goldmark parses the document so
// structurally broken markdown is still accepted as plain text.
type TextHandler struct {
	md goldmark.Markdown
}

func NewTextHandler() *TextHandler {
	return &TextHandler{md: goldmark.New()}
}

func (h *TextHandler) Kind() string {
	return model.KindText
}

func (h *TextHandler) OnCreate(ctx context.Context, id, title, draft string) (string, error) {
	_ = ctx
	_ = id
	_ = title
	return h.normalize(draft), nil
}

func (h *TextHandler) OnUpdate(ctx context.Context, doc *model.Document, draft string) (string, error) {
	_ = ctx
	_ = doc
	return h.normalize(draft), nil
}

// FirstHeading extracts the text of the first markdown heading. Freshly
// generated text documents take their title from it when present.
func (h *TextHandler) FirstHeading(content string) string {
	source := []byte(content)
	doc := h.md.Parser().Parse(text.NewReader(source))
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if heading, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(string(heading.Text(source)))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

func (h *TextHandler) normalize(draft string) string {
	normalized := strings.ReplaceAll(draft, "\r\n", "\n")
	normalized = strings.TrimRight(normalized, "\n")
	if normalized == "" {
		return ""
	}
	return normalized + "\n"
}
