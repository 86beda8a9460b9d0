package annotate

import (
	"golang.org/x/net/html"

	"go-live-slides/internal/dom"
)

// FormatCitations replaces the content of every citation label with the
// configured separator.
func (a *Annotator) FormatCitations(root *html.Node) int {
	sel := a.opts.Selectors
	isCitation := func(n *html.Node) bool { return dom.HasClass(n, sel.Citation) }
	labels := dom.FindAll(root, func(n *html.Node) bool {
		return dom.HasClass(n, sel.CitationLabel) && dom.HasAncestor(n, nil, isCitation)
	})
	for _, l := range labels {
		dom.SetText(l, a.opts.CitationText)
	}
	return len(labels)
}
