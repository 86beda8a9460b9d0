package annotate

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"go-live-slides/internal/dom"
)

// LineNumbers returns the line number elements of slide in document order.
func (a *Annotator) LineNumbers(slide *html.Node) []*html.Node {
	isCode := func(n *html.Node) bool { return dom.HasAnyClass(n, a.opts.Selectors.Code) }
	return dom.FindAll(slide, func(n *html.Node) bool {
		return dom.HasClass(n, a.opts.Selectors.LineNumber) && dom.HasAncestor(n, slide, isCode)
	})
}

// AnnotateLines clears or keeps the line numbers of slide and puts an
// emphasis marker right before every line number cfg asks for. Numbers
// without a matching line are ignored. Returns the number of markers
// inserted.
func (a *Annotator) AnnotateLines(slide *html.Node, cfg SlideConfig) int {
	linenos := a.LineNumbers(slide)
	if cfg.ClearLinenos(a.opts.ClearByDefault) {
		for _, ln := range linenos {
			dom.SetText(ln, a.opts.Blank)
		}
	}

	steps := make(map[int]bool, len(cfg.StepLines))
	for _, n := range cfg.StepLines {
		steps[n] = true
	}

	inserted := 0
	mark := func(n int, step bool) {
		if n < 1 || n > len(linenos) {
			return
		}
		if a.marker(linenos[n-1], step) {
			inserted++
		}
	}
	for _, n := range cfg.EmphasizeLines {
		if !steps[n] {
			mark(n, false)
		}
	}
	for _, n := range cfg.StepLines {
		mark(n, true)
	}
	return inserted
}

// marker ensures ln is preceded by an emphasis marker, upgrading an existing
// one to a step marker when asked. Reports whether a new element was made.
func (a *Annotator) marker(ln *html.Node, step bool) bool {
	c := a.opts.Classes
	m := ln.PrevSibling
	created := false
	if m == nil || !dom.HasClass(m, c.Marker) {
		m = dom.NewElement(atom.Span, c.Marker)
		dom.InsertBefore(ln, m)
		created = true
	}
	if step {
		dom.AddClass(m, c.InnerStep)
		dom.AddClass(m, c.StepMarker)
	}
	return created
}
