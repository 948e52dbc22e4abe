package dockind

import (
	"context"
	"strings"

	"github.com/xxxsen/coscribe/internal/model"
)

// CodeHandler stores source code. Trailing whitespace is stripped per line
// and the file ends with exactly one newline; the payload is otherwise kept
// byte-for-byte.
type CodeHandler struct{}

func NewCodeHandler() *CodeHandler {
	return &CodeHandler{}
}

func (h *CodeHandler) Kind() string {
	return model.KindCode
}

func (h *CodeHandler) OnCreate(ctx context.Context, id, title, draft string) (string, error) {
	_ = ctx
	_ = id
	_ = title
	return normalizeCode(draft), nil
}

func (h *CodeHandler) OnUpdate(ctx context.Context, doc *model.Document, draft string) (string, error) {
	_ = ctx
	_ = doc
	return normalizeCode(draft), nil
}

func normalizeCode(draft string) string {
	if draft == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(draft, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	normalized := strings.TrimRight(strings.Join(lines, "\n"), "\n")
	if normalized == "" {
		return ""
	}
	return normalized + "\n"
}
