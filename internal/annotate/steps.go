package annotate

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"go-live-slides/internal/dom"
)

// MarkInnerSteps tags the items of top level lists in reveal slides as inner
// steps. Only li elements that are direct children of a ul or ol that is
// itself a direct child of the slide are tagged, so lists inside notes and
// nested lists keep revealing together with their parent. Returns the number
// of items newly tagged.
func (a *Annotator) MarkInnerSteps(root *html.Node) int {
	tagged := 0
	for _, slide := range a.slides(root) {
		if v, _ := dom.Attr(slide, AttrReveal); strings.TrimSpace(v) != "1" {
			continue
		}
		for _, list := range dom.Children(slide) {
			if !dom.IsElement(list, atom.Ul) && !dom.IsElement(list, atom.Ol) {
				continue
			}
			for _, li := range dom.Children(list) {
				if dom.IsElement(li, atom.Li) && dom.AddClass(li, a.opts.Classes.InnerStep) {
					tagged++
				}
			}
		}
	}
	return tagged
}
