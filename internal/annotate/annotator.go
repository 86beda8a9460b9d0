package annotate

import (
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"go-live-slides/internal/dom"
)

// Annotator applies slide decorations to parsed documents.
type Annotator struct {
	opts Options
	log  *zap.Logger
}

// New returns an Annotator. A nil logger discards messages.
func New(opts Options, log *zap.Logger) *Annotator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Annotator{opts: opts.withDefaults(), log: log}
}

// Options returns the effective options.
func (a *Annotator) Options() Options {
	return a.opts
}

// AnnotateDocument parses a complete HTML document and annotates it.
func (a *Annotator) AnnotateDocument(r io.Reader) (*Deck, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse document: %w", err)
	}
	return a.annotate(root, false), nil
}

// AnnotateFragment parses body content and annotates it.
func (a *Annotator) AnnotateFragment(r io.Reader) (*Deck, error) {
	root, err := dom.ParseFragment(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse fragment: %w", err)
	}
	return a.annotate(root, true), nil
}

// Annotate decorates the tree under root in place. Problems with a single
// slide are logged and never stop the others from being annotated.
func (a *Annotator) Annotate(root *html.Node) *Deck {
	return a.annotate(root, false)
}

func (a *Annotator) annotate(root *html.Node, fragment bool) *Deck {
	steps := a.MarkInnerSteps(root)

	slides := a.slides(root)
	markers := 0
	for i, slide := range slides {
		markers += a.annotateSlide(slideID(slide, i), slide)
	}
	citations := a.FormatCitations(root)

	a.log.Debug("Annotated slides",
		zap.Int("slides", len(slides)),
		zap.Int("inner steps", steps),
		zap.Int("markers", markers),
		zap.Int("citations", citations))

	return newDeck(root, fragment, slides, a.opts.Classes, a.log)
}

func (a *Annotator) annotateSlide(id string, slide *html.Node) (markers int) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("Slide annotation failed", zap.String("slide", id), zap.Any("panic", r))
		}
	}()

	cfg, err := ParseSlideConfig(slide)
	if err != nil {
		a.log.Warn("Malformed slide configuration, skipping bad entries", zap.String("slide", id), zap.Error(err))
	}
	return a.AnnotateLines(slide, cfg)
}

// slides returns the slide elements under root in document order.
func (a *Annotator) slides(root *html.Node) []*html.Node {
	return dom.FindAll(root, func(n *html.Node) bool {
		return dom.HasClass(n, a.opts.Selectors.Slide)
	})
}
