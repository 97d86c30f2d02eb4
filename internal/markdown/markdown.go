// ABOUTME: Renders agent markdown as plain terminal text by walking the goldmark AST
// ABOUTME: Keeps list markers, code and link targets; drops emphasis markers and raw HTML

package markdown

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	parserInstance goldmark.Markdown
	parserOnce     sync.Once

	blankRuns = regexp.MustCompile(`\n{3,}`)
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		parserInstance = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parserInstance
}

// ToPlain converts markdown to plain text suitable for a terminal line view.
func ToPlain(input string) string {
	if strings.TrimSpace(input) == "" {
		return ""
	}

	source := []byte(input)
	document := parser().Parser().Parse(text.NewReader(source))

	r := &plainRenderer{source: source}
	_ = ast.Walk(document, r.walk)

	out := blankRuns.ReplaceAllString(r.out.String(), "\n\n")
	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

type plainRenderer struct {
	source []byte
	out    strings.Builder
}

func (r *plainRenderer) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Text:
		if entering {
			r.out.Write(node.Segment.Value(r.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				r.out.WriteString("\n")
			}
		}

	case *ast.String:
		if entering {
			r.out.Write(node.Value)
		}

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		if entering {
			r.lineStart()
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				r.out.Write(seg.Value(r.source))
			}
			r.out.WriteString("\n\n")
		}
		return ast.WalkSkipChildren, nil

	case *ast.AutoLink:
		if entering {
			r.out.Write(node.URL(r.source))
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if !entering && len(node.Destination) > 0 {
			fmt.Fprintf(&r.out, " (%s)", node.Destination)
		}

	case *ast.HTMLBlock, *ast.RawHTML:
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			r.lineStart()
			r.out.WriteString("---\n\n")
		}

	case *ast.ListItem:
		if entering {
			r.lineStart()
			r.out.WriteString(strings.Repeat("  ", listDepth(node)))
			r.out.WriteString(listMarker(node))
		}

	case *ast.List:
		if !entering {
			r.out.WriteString("\n")
		}

	case *ast.TextBlock:
		if !entering {
			r.out.WriteString("\n")
		}

	case *ast.Paragraph, *ast.Heading:
		if !entering {
			if inList(n) {
				r.out.WriteString("\n")
			} else {
				r.out.WriteString("\n\n")
			}
		}

	case *extast.TaskCheckBox:
		if entering {
			if node.IsChecked {
				r.out.WriteString("[x] ")
			} else {
				r.out.WriteString("[ ] ")
			}
		}

	case *extast.TableCell:
		if !entering && n.NextSibling() != nil {
			r.out.WriteString(" | ")
		}

	case *extast.TableHeader, *extast.TableRow:
		if !entering {
			r.out.WriteString("\n")
		}

	case *extast.Table:
		if !entering {
			r.out.WriteString("\n")
		}
	}

	return ast.WalkContinue, nil
}

// lineStart ends the current line if something is already on it.
func (r *plainRenderer) lineStart() {
	s := r.out.String()
	if s != "" && !strings.HasSuffix(s, "\n") {
		r.out.WriteString("\n")
	}
}

func listDepth(item ast.Node) int {
	depth := -1
	for p := item.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.List); ok {
			depth++
		}
	}
	return max(depth, 0)
}

func listMarker(item *ast.ListItem) string {
	list, ok := item.Parent().(*ast.List)
	if !ok || !list.IsOrdered() {
		return "- "
	}
	index := 0
	for s := item.PreviousSibling(); s != nil; s = s.PreviousSibling() {
		index++
	}
	return fmt.Sprintf("%d. ", list.Start+index)
}

func inList(n ast.Node) bool {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := p.(*ast.ListItem); ok {
			return true
		}
	}
	return false
}
