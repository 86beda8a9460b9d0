package render

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/text"
	"golang.org/x/net/html"

	"go-live-slides/internal/annotate"
	"go-live-slides/internal/dom"
)

const deckSource = "# Intro\n" +
	"\n" +
	"hello\n" +
	"\n" +
	"---\n" +
	"\n" +
	"<!-- slide\n" +
	"reveal: 1\n" +
	"emphasize-lines: 2\n" +
	"step-lines: [1, 3]\n" +
	"keep-linenos: true\n" +
	"class: wide\n" +
	"-->\n" +
	"\n" +
	"## Code\n" +
	"\n" +
	"- a\n" +
	"- b\n" +
	"\n" +
	"```go\n" +
	"package main\n" +
	"\n" +
	"func main() {}\n" +
	"```\n" +
	"\n" +
	"---\n" +
	"\n" +
	"---\n" +
	"\n" +
	"plain\n"

func slideNodes(t *testing.T, fragment string) []*html.Node {
	t.Helper()
	root, err := dom.ParseFragment(strings.NewReader(fragment))
	require.NoError(t, err)
	return dom.FindAll(root, func(n *html.Node) bool { return dom.HasClass(n, "step") })
}

func attr(n *html.Node, key string) string {
	v, _ := dom.Attr(n, key)
	return v
}

func TestConvertDeckSplitsSlides(t *testing.T) {
	out, err := NewRenderer("", nil).ConvertDeck([]byte(deckSource), "")
	require.NoError(t, err)

	slides := slideNodes(t, out)
	require.Len(t, slides, 3)

	assert.Equal(t, "slide-intro", attr(slides[0], "id"))
	assert.Equal(t, "1", attr(slides[0], annotate.AttrSourceLine))
	_, ok := dom.Attr(slides[0], annotate.AttrReveal)
	assert.False(t, ok)

	code := slides[1]
	assert.Equal(t, "slide-code", attr(code, "id"))
	assert.Equal(t, []string{"step", "wide"}, dom.Classes(code))
	assert.Equal(t, "7", attr(code, annotate.AttrSourceLine))
	assert.Equal(t, "1", attr(code, annotate.AttrReveal))
	assert.Equal(t, "2", attr(code, annotate.AttrEmphasizeLines))
	assert.Equal(t, "1,3", attr(code, annotate.AttrStepLines))
	_, ok = dom.Attr(code, annotate.AttrKeepLinenos)
	assert.True(t, ok)
	assert.NotContains(t, out, "<!-- slide")

	assert.Equal(t, "slide-3", attr(slides[2], "id"))
}

func TestConvertDeckFeedsAnnotator(t *testing.T) {
	out, err := NewRenderer("", nil).ConvertDeck([]byte(deckSource), "")
	require.NoError(t, err)

	a := annotate.New(annotate.DefaultOptions(), nil)
	deck, err := a.AnnotateFragment(strings.NewReader(out))
	require.NoError(t, err)

	slides := slideNodes(t, mustHTML(t, deck))
	code := slides[1]
	linenos := a.LineNumbers(code)
	require.Len(t, linenos, 3)
	for i, ln := range linenos {
		assert.True(t, dom.HasClass(ln.PrevSibling, "emphasis"), "line %d", i+1)
		assert.Contains(t, dom.Text(ln), string(rune('1'+i)), "keep-linenos leaves numbers")
	}

	// two list items then the step markers of lines 1 and 3
	_, total := deck.Progress("slide-code")
	assert.Equal(t, 4, total)
}

func mustHTML(t *testing.T, d *annotate.Deck) string {
	t.Helper()
	out, err := d.HTML()
	require.NoError(t, err)
	return out
}

func TestParseDirective(t *testing.T) {
	tests := []struct {
		name     string
		source   string
		consumed bool
		wantErr  bool
		want     SlideMeta
	}{
		{
			name:   "plain comment",
			source: "<!-- speaker notes -->\n",
		},
		{
			name:   "other word",
			source: "<!-- slideshow -->\n",
		},
		{
			name:     "inline flow map",
			source:   `<!-- slide: {reveal: 1, emphasize-lines: "2,4", kill-linenos: yes} -->` + "\n",
			consumed: true,
			want:     SlideMeta{Reveal: true, EmphasizeLines: "2,4", KillLinenos: true},
		},
		{
			name:     "bare keyword",
			source:   "<!-- slide -->\n",
			consumed: true,
		},
		{
			name:     "block with id",
			source:   "<!-- slide\nid: Getting Started\nstep-lines: 3\n-->\n",
			consumed: true,
			want:     SlideMeta{ID: "Getting Started", StepLines: "3"},
		},
		{
			name:     "bad yaml",
			source:   "<!-- slide\nreveal: [\n-->\n",
			consumed: true,
			wantErr:  true,
		},
		{
			name:     "bad flag",
			source:   "<!-- slide\nreveal: maybe\n-->\n",
			consumed: true,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source := []byte(tt.source)
			doc := goldmark.New().Parser().Parse(text.NewReader(source))
			require.NotNil(t, doc.FirstChild())

			meta, ok, err := parseDirective(doc.FirstChild(), source)
			assert.Equal(t, tt.consumed, ok)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, meta)
		})
	}
}

func TestSlideIDs(t *testing.T) {
	src := "<!-- slide: {id: Getting Started} -->\n\n# A\n\n---\n\n# Same\n\n---\n\n# Same\n"
	out, err := NewRenderer("page", nil).ConvertDeck([]byte(src), "")
	require.NoError(t, err)

	root, err := dom.ParseFragment(strings.NewReader(out))
	require.NoError(t, err)
	var ids []string
	for _, n := range dom.FindAll(root, func(n *html.Node) bool { return dom.HasClass(n, "page") }) {
		ids = append(ids, attr(n, "id"))
	}
	assert.Equal(t, []string{"getting-started", "slide-same", "slide-same-2"}, ids)
}

func TestAssetPath(t *testing.T) {
	enc := func(p string) string { return AssetPrefix + base64.RawURLEncoding.EncodeToString([]byte(p)) }

	tests := []struct {
		name    string
		dest    string
		baseDir string
		want    string
		ok      bool
	}{
		{"remote", "https://example.com/a.png", "/deck", "", false},
		{"data uri", "data:image/png;base64,AA", "/deck", "", false},
		{"already mapped", AssetPrefix + "abc", "/deck", "", false},
		{"absolute", "/img/a.png", "", enc("/img/a.png"), true},
		{"relative", "img/../a.png", "/deck", enc("/deck/a.png"), true},
		{"relative without base", "a.png", "", "", false},
		{"empty", "  ", "/deck", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := assetPath(tt.dest, tt.baseDir)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPages(t *testing.T) {
	r := NewRenderer("", nil)
	shell := r.RenderShell()
	assert.Contains(t, shell, `data-live="true"`)
	assert.NotContains(t, shell, "{{CONTENT}}")

	static := StaticPage(`<div class="step">x</div>`)
	assert.Contains(t, static, `data-live="false"`)
	assert.Contains(t, static, `<main id="deck"><div class="step">x</div></main>`)
}
