// ABOUTME: Markdown rendering for assistant messages via goldmark
// ABOUTME: HTML output for embedding hosts, colored plain text for the terminal host

package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// Option configures a Renderer.
type Option func(*Renderer)

// WithColor enables ANSI styling in Terminal output. Off by default.
func WithColor(v bool) Option {
	return func(r *Renderer) { r.colorize = v }
}

// WithAccent sets the color used for links and quote bars from a "#rrggbb"
// hex string. Invalid values are ignored.
func WithAccent(hex string) Option {
	return func(r *Renderer) {
		if rgb, ok := parseHex(hex); ok {
			r.accent = color.RGB(rgb[0], rgb[1], rgb[2])
		}
	}
}

// Renderer converts markdown. Safe for concurrent use.
type Renderer struct {
	md       goldmark.Markdown
	colorize bool

	accent *color.Color
	bold   *color.Color
	italic *color.Color
	code   *color.Color
	faint  *color.Color
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithASTTransformers(util.Prioritized(linkTargets{}, 100)),
			),
		),
		accent: color.New(color.FgBlue),
		bold:   color.New(color.Bold),
		italic: color.New(color.Italic),
		code:   color.New(color.FgYellow),
		faint:  color.New(color.Faint),
	}
	for _, opt := range opts {
		opt(r)
	}
	for _, c := range []*color.Color{r.accent, r.bold, r.italic, r.code, r.faint} {
		if r.colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// HTML converts markdown to HTML. Raw HTML in the source is omitted.
func (r *Renderer) HTML(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

// Terminal converts markdown to plain text lines for a terminal.
func (r *Renderer) Terminal(src string) string {
	source := []byte(src)
	doc := r.md.Parser().Parse(text.NewReader(source))
	return strings.Join(r.blocks(doc, source, true), "\n")
}

// blocks renders the block children of parent. Loose separation puts a blank
// line between blocks.
func (r *Renderer) blocks(parent ast.Node, src []byte, loose bool) []string {
	var out []string
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		lines := r.block(c, src)
		if len(lines) == 0 {
			continue
		}
		if loose && len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, lines...)
	}
	return out
}

func (r *Renderer) block(n ast.Node, src []byte) []string {
	switch node := n.(type) {
	case *ast.Heading:
		return []string{r.bold.Sprint(r.inline(node, src))}

	case *ast.Paragraph, *ast.TextBlock:
		return strings.Split(r.inline(node, src), "\n")

	case *ast.List:
		var out []string
		num := node.Start
		for item := node.FirstChild(); item != nil; item = item.NextSibling() {
			marker := "• "
			if node.IsOrdered() {
				marker = strconv.Itoa(num) + ". "
				num++
			}
			pad := strings.Repeat(" ", len([]rune(marker)))
			for i, line := range r.blocks(item, src, !node.IsTight) {
				if i == 0 {
					out = append(out, marker+line)
				} else if line == "" {
					out = append(out, "")
				} else {
					out = append(out, pad+line)
				}
			}
		}
		return out

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var out []string
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			out = append(out, "    "+r.code.Sprint(strings.TrimRight(string(seg.Value(src)), "\r\n")))
		}
		return out

	case *ast.Blockquote:
		bar := r.accent.Sprint("│") + " "
		inner := r.blocks(node, src, true)
		out := make([]string, len(inner))
		for i, line := range inner {
			out[i] = bar + line
		}
		return out

	case *ast.ThematicBreak:
		return []string{r.faint.Sprint(strings.Repeat("─", 20))}

	case *ast.HTMLBlock:
		return nil

	default:
		return r.blocks(node, src, true)
	}
}

func (r *Renderer) inline(parent ast.Node, src []byte) string {
	var b strings.Builder
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		switch node := c.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(src))
			switch {
			case node.HardLineBreak():
				b.WriteByte('\n')
			case node.SoftLineBreak():
				b.WriteByte(' ')
			}

		case *ast.String:
			b.Write(node.Value)

		case *ast.CodeSpan:
			b.WriteString(r.code.Sprint(r.inline(node, src)))

		case *ast.Emphasis:
			inner := r.inline(node, src)
			if node.Level >= 2 {
				b.WriteString(r.bold.Sprint(inner))
			} else {
				b.WriteString(r.italic.Sprint(inner))
			}

		case *ast.Link:
			label := r.inline(node, src)
			dest := string(node.Destination)
			b.WriteString(r.accent.Sprint(label))
			if label != dest {
				b.WriteString(" (" + dest + ")")
			}

		case *ast.AutoLink:
			b.WriteString(r.accent.Sprint(string(node.URL(src))))

		case *ast.Image:
			b.WriteString("[" + r.inline(node, src) + "]")

		case *ast.RawHTML:
			// omitted, as in HTML output

		default:
			b.WriteString(r.inline(node, src))
		}
	}
	return b.String()
}

// linkTargets makes rendered links open in a new tab without leaking the
// opener.
type linkTargets struct{}

func (linkTargets) Transform(doc *ast.Document, _ text.Reader, _ parser.Context) {
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Link, *ast.AutoLink:
			n.SetAttributeString("target", []byte("_blank"))
			n.SetAttributeString("rel", []byte("noopener noreferrer"))
		}
		return ast.WalkContinue, nil
	})
}

func parseHex(s string) ([3]int, bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return [3]int{}, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return [3]int{}, false
	}
	return [3]int{int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)}, true
}
