package render

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html"
	"path/filepath"
	"strconv"
	"strings"

	chromahtml "github.com/alecthomas/chroma/formatters/html"
	"github.com/gosimple/slug"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extensionast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/parser"
	goldhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
	alertcallouts "github.com/zmtcreative/gm-alert-callouts"
	"go.uber.org/zap"

	"go-live-slides/internal/annotate"
)

const mdLineAttribute = annotate.AttrSourceLine

// Renderer turns a markdown deck into slide markup: one
// <div class="step"> per slide, code blocks highlighted with line numbers.
type Renderer struct {
	md         goldmark.Markdown
	slideClass string
	log        *zap.Logger
}

//go:embed page.html
var pageTemplate string

// NewRenderer returns a Renderer wrapping slides in elements of slideClass.
func NewRenderer(slideClass string, log *zap.Logger) *Renderer {
	if slideClass == "" {
		slideClass = annotate.DefaultOptions().Selectors.Slide
	}
	if log == nil {
		log = zap.NewNop()
	}
	md := goldmark.New(
		goldmark.WithExtensions(
			alertcallouts.AlertCallouts,
			extension.GFM,
			extension.Table,
			extension.Strikethrough,
			extension.TaskList,
			extension.Linkify,
			highlighting.NewHighlighting(
				highlighting.WithWrapperRenderer(renderHighlightedCodeWrapper),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
					chromahtml.WithLineNumbers(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(goldhtml.WithUnsafe()),
	)
	return &Renderer{md: md, slideClass: slideClass, log: log}
}

// ConvertDeck parses a markdown deck and returns the slides as an HTML
// fragment. Slides are separated by thematic breaks; a break right after a
// paragraph line is a setext heading, so leave a blank line before "---".
//
// If sourcePath is set, local image destinations are rewritten to the
// preview asset path format expected by the HTTP layer.
func (r *Renderer) ConvertDeck(source []byte, sourcePath string) (string, error) {
	doc := r.md.Parser().Parse(text.NewReader(source))
	decorateAST(doc, source, sourcePath)

	var (
		buf bytes.Buffer
		ids = make(map[string]int)
	)
	for i, nodes := range splitSlides(doc) {
		meta, consumed, err := parseDirective(nodes[0], source)
		if err != nil {
			r.log.Warn("Ignoring slide directive", zap.Int("slide", i+1), zap.Error(err))
		}
		line := 0
		if offset, ok := firstNodeOffset(nodes[0]); ok {
			line = offsetToLine(source, offset)
		}
		if consumed {
			nodes = nodes[1:]
		}

		id := uniqueID(ids, slideID(meta, nodes, source, i))
		writeSlideOpen(&buf, r.slideClass, id, line, meta)

		slide := ast.NewDocument()
		for _, n := range nodes {
			slide.AppendChild(slide, n)
		}
		if err := r.md.Renderer().Render(&buf, source, slide); err != nil {
			return "", fmt.Errorf("unable to render slide %q: %w", id, err)
		}
		buf.WriteString("</div>\n")
	}

	return buf.String(), nil
}

// RenderShell returns an empty HTML page shell for the initial WebSocket connection.
// Content will be injected dynamically via WebSocket messages.
func (r *Renderer) RenderShell() string {
	return page("", true)
}

// StaticPage returns a complete standalone HTML page holding fragment.
func StaticPage(fragment string) string {
	return page(fragment, false)
}

func page(fragment string, live bool) string {
	out := strings.Replace(pageTemplate, "{{LIVE}}", strconv.FormatBool(live), 1)
	return strings.Replace(out, "{{CONTENT}}", fragment, 1)
}

// splitSlides groups the top level nodes of doc at thematic breaks. Empty
// groups are dropped.
func splitSlides(doc ast.Node) [][]ast.Node {
	var (
		slides  [][]ast.Node
		current []ast.Node
	)
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindThematicBreak {
			if len(current) > 0 {
				slides = append(slides, current)
			}
			current = nil
			continue
		}
		current = append(current, n)
	}
	if len(current) > 0 {
		slides = append(slides, current)
	}
	return slides
}

func slideID(meta SlideMeta, nodes []ast.Node, source []byte, idx int) string {
	if id := strings.TrimSpace(meta.ID); id != "" {
		return slug.Make(id)
	}
	for _, n := range nodes {
		if h, ok := n.(*ast.Heading); ok {
			if s := slug.Make(headingText(h, source)); s != "" {
				return "slide-" + s
			}
			break
		}
	}
	return fmt.Sprintf("slide-%d", idx+1)
}

func uniqueID(seen map[string]int, id string) string {
	seen[id]++
	if n := seen[id]; n > 1 {
		return fmt.Sprintf("%s-%d", id, n)
	}
	return id
}

func headingText(h *ast.Heading, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(h, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := n.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(source))
		case *ast.String:
			b.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return b.String()
}

func writeSlideOpen(buf *bytes.Buffer, class, id string, line int, meta SlideMeta) {
	classes := class
	if extra := strings.TrimSpace(meta.Class); extra != "" {
		classes += " " + extra
	}
	fmt.Fprintf(buf, `<div class="%s" id="%s"`, html.EscapeString(classes), html.EscapeString(id))
	if line > 0 {
		fmt.Fprintf(buf, ` %s="%d"`, mdLineAttribute, line)
	}
	if meta.Reveal {
		fmt.Fprintf(buf, ` %s="1"`, annotate.AttrReveal)
	}
	if meta.EmphasizeLines != "" {
		fmt.Fprintf(buf, ` %s="%s"`, annotate.AttrEmphasizeLines, html.EscapeString(string(meta.EmphasizeLines)))
	}
	if meta.StepLines != "" {
		fmt.Fprintf(buf, ` %s="%s"`, annotate.AttrStepLines, html.EscapeString(string(meta.StepLines)))
	}
	if meta.KillLinenos {
		fmt.Fprintf(buf, ` %s`, annotate.AttrKillLinenos)
	}
	if meta.KeepLinenos {
		fmt.Fprintf(buf, ` %s`, annotate.AttrKeepLinenos)
	}
	buf.WriteString(">\n")
}

// decorateAST walks the AST once and applies render metadata.
// It attaches data-md-line to block-level elements for editor sync and,
// when sourcePath is available, rewrites local image destinations to /@mdfs/.
func decorateAST(doc ast.Node, source []byte, sourcePath string) {
	baseDir := ""
	if sourcePath != "" {
		baseDir = filepath.Dir(sourcePath)
	}

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		if shouldAnnotateNode(n) {
			offset, ok := firstNodeOffset(n)
			if ok {
				n.SetAttributeString(mdLineAttribute, strconv.Itoa(offsetToLine(source, offset)))
			}
		}

		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}
		if dest, ok := assetPath(string(img.Destination), baseDir); ok {
			img.Destination = []byte(dest)
			img.SetAttributeString("loading", "lazy")
			img.SetAttributeString("decoding", "async")
		}
		return ast.WalkContinue, nil
	})
}

// assetPath maps a local image destination to the /@mdfs/ route. Remote,
// inline and already mapped destinations are left alone.
func assetPath(rawDest, baseDir string) (string, bool) {
	rawDest = strings.TrimSpace(rawDest)
	if rawDest == "" {
		return "", false
	}

	lowerDest := strings.ToLower(rawDest)
	for _, prefix := range []string{"http://", "https://", "data:", "blob:", "file://", "//", "#", AssetPrefix} {
		if strings.HasPrefix(lowerDest, prefix) {
			return "", false
		}
	}

	resolved := ""
	switch {
	case filepath.IsAbs(rawDest):
		resolved = filepath.Clean(rawDest)
	case baseDir != "":
		resolved = filepath.Clean(filepath.Join(baseDir, rawDest))
	default:
		return "", false
	}
	return AssetPrefix + base64.RawURLEncoding.EncodeToString([]byte(resolved)), true
}

// AssetPrefix is the URL path local images are served under.
const AssetPrefix = "/@mdfs/"

// shouldAnnotateNode returns true for block-level element types that should
// receive line metadata. These are the elements that map directly to source lines.
func shouldAnnotateNode(n ast.Node) bool {
	switch n.Kind() {
	case ast.KindHeading,
		ast.KindParagraph,
		ast.KindBlockquote,
		ast.KindFencedCodeBlock,
		ast.KindList,
		ast.KindListItem,
		extensionast.KindTable:
		return true
	default:
		return false
	}
}

// firstNodeOffset returns the byte offset of the first line in a node.
// It first checks if the node has its own lines (most block elements do).
// If not, it recursively searches children to find the first meaningful offset.
func firstNodeOffset(n ast.Node) (int, bool) {
	if n == nil {
		return 0, false
	}

	if n.Type() == ast.TypeBlock {
		if lines := n.Lines(); lines != nil && lines.Len() > 0 {
			return lines.At(0).Start, true
		}
	}

	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		if offset, ok := firstNodeOffset(child); ok {
			return offset, true
		}
	}

	return 0, false
}

// offsetToLine converts a byte offset to a 1-based line number.
// The offset is clamped to the valid range [0, len(source)].
func offsetToLine(source []byte, offset int) int {
	if offset < 0 {
		offset = 0
	}

	if offset > len(source) {
		offset = len(source)
	}

	return bytes.Count(source[:offset], []byte{'\n'}) + 1
}

// renderHighlightedCodeWrapper wraps highlighted code blocks in a code
// container carrying the data-md-line attribute of the fenced block.
func renderHighlightedCodeWrapper(w util.BufWriter, context highlighting.CodeBlockContext, entering bool) {
	if !entering {
		_, _ = w.WriteString("</div>")
		return
	}

	_, _ = w.WriteString(`<div class="code"`)
	if line, ok := highlightedCodeLine(context); ok {
		_, _ = w.WriteString(" ")
		_, _ = w.WriteString(mdLineAttribute)
		_, _ = w.WriteString(`="`)
		_, _ = w.WriteString(line)
		_, _ = w.WriteString(`"`)
	}
	_, _ = w.WriteString(">")
}

// highlightedCodeLine extracts the line number attribute from a code block's
// rendering context. The attribute was set by decorateAST and is moved to the
// wrapper div.
func highlightedCodeLine(context highlighting.CodeBlockContext) (string, bool) {
	if context == nil {
		return "", false
	}

	attrs := context.Attributes()
	if attrs == nil {
		return "", false
	}

	v, ok := attrs.GetString(mdLineAttribute)
	if !ok {
		return "", false
	}

	switch typed := v.(type) {
	case string:
		return typed, typed != ""
	case []byte:
		if len(typed) == 0 {
			return "", false
		}
		return string(typed), true
	default:
		return "", false
	}
}
