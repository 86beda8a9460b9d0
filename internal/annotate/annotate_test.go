package annotate

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/net/html"

	"go-live-slides/internal/dom"
)

func annotateFragment(t *testing.T, opts Options, src string) (*Deck, *Annotator) {
	t.Helper()
	a := New(opts, nil)
	deck, err := a.AnnotateFragment(strings.NewReader(src))
	require.NoError(t, err)
	return deck, a
}

// codeSlide builds a slide with a chroma style code block of n lines.
func codeSlide(attrs string, n int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="step" %s><pre class="chroma"><code>`, attrs)
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "<span class=\"ln\">%d</span>line %d\n", i, i)
	}
	b.WriteString(`</code></pre></div>`)
	return b.String()
}

// markedLines returns the 1-based lines preceded by an emphasis marker.
func markedLines(a *Annotator, slide *html.Node) []int {
	var lines []int
	for i, ln := range a.LineNumbers(slide) {
		if dom.HasClass(ln.PrevSibling, a.opts.Classes.Marker) {
			lines = append(lines, i+1)
		}
	}
	return lines
}

func TestMarkInnerSteps(t *testing.T) {
	src := `<div class="step" data-reveal="1">
  <ul><li id="a">a<ul><li id="nested">n</li></ul></li><li id="b">b</li></ul>
  <ol><li id="c">c</li></ol>
  <div class="notes"><ul><li id="note">note</li></ul></div>
</div>
<div class="step"><ul><li id="plain">plain</li></ul></div>
<div class="step" data-reveal="0"><ul><li id="zero">zero</li></ul></div>`

	deck, a := annotateFragment(t, DefaultOptions(), src)

	var tagged []string
	for _, n := range dom.FindAll(deck.root, func(n *html.Node) bool { return dom.HasClass(n, "innerStep") }) {
		id, _ := dom.Attr(n, "id")
		tagged = append(tagged, id)
	}
	assert.Equal(t, []string{"a", "b", "c"}, tagged)

	assert.Zero(t, a.MarkInnerSteps(deck.root), "second run tags nothing new")
	li := dom.FindAll(deck.root, func(n *html.Node) bool { id, _ := dom.Attr(n, "id"); return id == "a" })[0]
	assert.Equal(t, []string{"innerStep"}, dom.Classes(li))
}

func TestAnnotateLinesEmphasis(t *testing.T) {
	tests := []struct {
		name  string
		lines string
		want  []int
	}{
		{"listed lines", "1,3", []int{1, 3}},
		{"spaces and duplicates", " 2 , 2,4", []int{2, 4}},
		{"out of range is ignored", "2,9", []int{2}},
		{"malformed entries are skipped", "x,3,-1,0", []int{3}},
		{"empty list", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deck, a := annotateFragment(t, DefaultOptions(), codeSlide(fmt.Sprintf(`data-emphasize-lines="%s"`, tt.lines), 4))
			require.Equal(t, 1, deck.Len())
			assert.Equal(t, tt.want, markedLines(a, deck.slides[0].Node))
		})
	}
}

func TestLineNumbersOutsideCodeAreIgnored(t *testing.T) {
	src := `<div class="step" data-emphasize-lines="1"><span class="ln">x</span>` +
		`<div class="code"><span class="ln">1</span></div></div>`
	deck, a := annotateFragment(t, DefaultOptions(), src)

	linenos := a.LineNumbers(deck.slides[0].Node)
	require.Len(t, linenos, 1)
	assert.Equal(t, []int{1}, markedLines(a, deck.slides[0].Node))
	assert.Equal(t, "x", dom.Text(deck.root.FirstChild.FirstChild), "stray ln is untouched")
}

func TestLineNumberClearing(t *testing.T) {
	keepDefault := DefaultOptions()
	keepDefault.ClearByDefault = false

	tests := []struct {
		name    string
		opts    Options
		attrs   string
		cleared bool
	}{
		{"cleared by default", DefaultOptions(), "", true},
		{"keep flag", DefaultOptions(), "data-keep-linenos", false},
		{"keep flag set to false", DefaultOptions(), `data-keep-linenos="false"`, true},
		{"kill wins over keep", DefaultOptions(), "data-keep-linenos data-kill-linenos", true},
		{"kept by default", keepDefault, "", false},
		{"kill with keep default", keepDefault, "data-kill-linenos", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deck, a := annotateFragment(t, tt.opts, codeSlide(tt.attrs, 3))
			for i, ln := range a.LineNumbers(deck.slides[0].Node) {
				if tt.cleared {
					assert.Equal(t, "\u00a0", dom.Text(ln))
				} else {
					assert.Equal(t, fmt.Sprint(i+1), dom.Text(ln))
				}
			}
		})
	}
}

func TestStepMarkers(t *testing.T) {
	deck, a := annotateFragment(t, DefaultOptions(), codeSlide(`data-emphasize-lines="1,5" data-step-lines="3,5,7"`, 8))
	slide := deck.slides[0].Node

	assert.Equal(t, []int{1, 3, 5, 7}, markedLines(a, slide))
	linenos := a.LineNumbers(slide)
	assert.False(t, dom.HasClass(linenos[0].PrevSibling, "emphasis-step"))
	for _, n := range []int{3, 5, 7} {
		m := linenos[n-1].PrevSibling
		assert.True(t, dom.HasClass(m, "emphasis-step"), "line %d", n)
		assert.True(t, dom.HasClass(m, "innerStep"), "line %d", n)
	}
}

func TestAdvanceMovesCurrentMarker(t *testing.T) {
	deck, a := annotateFragment(t, DefaultOptions(), codeSlide(`data-step-lines="3,5,7"`, 8))
	linenos := a.LineNumbers(deck.slides[0].Node)
	currentLine := func() int {
		flagged := dom.FindAll(deck.root, func(n *html.Node) bool { return dom.HasClass(n, "last") })
		if len(flagged) == 0 {
			return 0
		}
		require.Len(t, flagged, 1, "only one marker carries the current flag")
		for i, ln := range linenos {
			if ln.PrevSibling == flagged[0] {
				return i + 1
			}
		}
		t.Fatal("current flag is not on a marker")
		return -1
	}

	assert.Equal(t, 0, currentLine())
	assert.Nil(t, deck.Current(""))

	require.True(t, deck.Advance(""))
	assert.Equal(t, 3, currentLine())

	require.True(t, deck.Advance(""))
	assert.Equal(t, 5, currentLine())

	require.True(t, deck.Advance(""))
	assert.Equal(t, 7, currentLine())

	assert.False(t, deck.Advance(""), "last marker is terminal")
	assert.Equal(t, 7, currentLine())

	revealed, total := deck.Progress("")
	assert.Equal(t, 3, revealed)
	assert.Equal(t, 3, total)

	require.True(t, deck.Reset(""))
	assert.Equal(t, 0, currentLine())
}

func TestAdvanceInterleavesListItems(t *testing.T) {
	src := `<div class="step" data-reveal="1" data-step-lines="2">` +
		`<ul><li>first</li></ul>` +
		`<pre class="chroma"><span class="ln">1</span>a` + "\n" + `<span class="ln">2</span>b</pre></div>`
	deck, _ := annotateFragment(t, DefaultOptions(), src)

	require.True(t, deck.Advance(""))
	assert.Nil(t, deck.Current(""), "list item revealed first")

	require.True(t, deck.Advance(""))
	require.NotNil(t, deck.Current(""))
	assert.True(t, dom.HasClass(deck.Current(""), "stepped"))
}

func TestListenOnStepBus(t *testing.T) {
	deck, _ := annotateFragment(t, DefaultOptions(),
		codeSlide(`id="one" data-step-lines="1,2"`, 2)+codeSlide(`id="two" data-step-lines="1"`, 1))

	var bus StepBus
	var changes []string
	deck.Listen(&bus, func(ev StepEvent) { changes = append(changes, ev.Slide) })

	bus.Publish(StepEvent{})
	bus.Publish(StepEvent{Slide: "two"})
	bus.Publish(StepEvent{Slide: "two"}) // terminal, no change
	bus.Publish(StepEvent{Slide: "missing"})
	assert.Equal(t, []string{"", "two"}, changes)

	r, _ := deck.Progress("one")
	assert.Equal(t, 1, r)

	deck.Close()
	bus.Publish(StepEvent{})
	r, _ = deck.Progress("one")
	assert.Equal(t, 1, r, "closed deck no longer listens")
}

func TestGoto(t *testing.T) {
	src := `<div class="step" id="a" data-md-line="1"></div>` +
		`<div class="step" id="b" data-md-line="10"></div>` +
		`<div class="step" data-md-line="20"></div>`
	deck, _ := annotateFragment(t, DefaultOptions(), src)

	assert.Equal(t, []string{"a", "b", "slide-3"}, deck.IDs())
	assert.Equal(t, "a", deck.Active())

	assert.True(t, deck.Goto("slide-3"))
	assert.Equal(t, "slide-3", deck.Active())
	assert.False(t, deck.Goto("nope"))

	assert.True(t, deck.GotoLine(12))
	assert.Equal(t, "b", deck.Active())
	assert.False(t, deck.GotoLine(15), "same slide")
	assert.True(t, deck.GotoLine(3))
	assert.Equal(t, "a", deck.Active())
}

func TestFormatCitations(t *testing.T) {
	src := `<table class="docutils citation"><tr><td class="label">[1]</td><td>Ref</td></tr></table>` +
		`<div class="citation"><span class="label"><b>[Knuth]</b></span></div>` +
		`<span class="label">other</span>`
	deck, _ := annotateFragment(t, DefaultOptions(), src)

	labels := dom.FindAll(deck.root, func(n *html.Node) bool { return dom.HasClass(n, "label") })
	require.Len(t, labels, 3)
	assert.Equal(t, "\u2014\u00a0", dom.Text(labels[0]))
	assert.Equal(t, "\u2014\u00a0", dom.Text(labels[1]))
	assert.Equal(t, "other", dom.Text(labels[2]))
}

func TestAnnotateIsIdempotent(t *testing.T) {
	src := `<div class="step" data-reveal="1" data-emphasize-lines="1" data-step-lines="2,3">` +
		`<ul><li>x</li></ul><pre class="chroma">` +
		`<span class="ln">1</span>a` + "\n" + `<span class="ln">2</span>b` + "\n" + `<span class="ln">3</span>c</pre></div>` +
		`<div class="citation"><span class="label">[1]</span></div>`

	first, a := annotateFragment(t, DefaultOptions(), src)
	require.True(t, first.Advance(""))
	require.True(t, first.Advance(""))
	out1, err := first.HTML()
	require.NoError(t, err)

	second, err := a.AnnotateFragment(strings.NewReader(out1))
	require.NoError(t, err)
	out2, err := second.HTML()
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, 3, strings.Count(out2, `class="emphasis`))
	r, total := second.Progress("")
	assert.Equal(t, 2, r, "progress resumes from revealed steps")
	assert.Equal(t, 3, total)
}

func TestMalformedSlideDoesNotStopOthers(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	a := New(DefaultOptions(), zap.New(core))

	src := codeSlide(`id="bad" data-emphasize-lines="two,1"`, 2) + codeSlide(`id="good" data-emphasize-lines="2"`, 2)
	deck, err := a.AnnotateFragment(strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []int{1}, markedLines(a, deck.slides[0].Node))
	assert.Equal(t, []int{2}, markedLines(a, deck.slides[1].Node))

	entries := logs.FilterField(zap.String("slide", "bad")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
}

func TestAnnotateDocument(t *testing.T) {
	a := New(DefaultOptions(), nil)
	deck, err := a.AnnotateDocument(strings.NewReader(`<!DOCTYPE html><html><body>` + codeSlide(`data-emphasize-lines="1"`, 1) + `</body></html>`))
	require.NoError(t, err)

	out, err := deck.HTML()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html><html>"))
	assert.Contains(t, out, `<span class="emphasis"></span><span class="ln">`)
}

func TestOptionsWithDefaults(t *testing.T) {
	a := New(Options{Classes: Classes{Marker: "hl"}}, nil)
	opts := a.Options()
	assert.Equal(t, "hl", opts.Classes.Marker)
	assert.Equal(t, "innerStep", opts.Classes.InnerStep)
	assert.Equal(t, []string{"code", "chroma"}, opts.Selectors.Code)
	assert.Equal(t, "\u00a0", opts.Blank)
}
