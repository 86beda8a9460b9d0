package annotate

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"go-live-slides/internal/dom"
)

// AttrSourceLine carries the markdown source line a slide starts at.
const AttrSourceLine = "data-md-line"

// Slide is one annotated slide and its reveal progress.
type Slide struct {
	ID   string
	Line int
	Node *html.Node

	// steps lists the inner steps of the slide in reveal order.
	steps    []*html.Node
	revealed int
}

// Deck is an annotated document. All methods are safe for concurrent use.
type Deck struct {
	mu       sync.Mutex
	root     *html.Node
	fragment bool
	slides   []*Slide
	active   int
	classes  Classes
	log      *zap.Logger
	cancel   func()
}

func newDeck(root *html.Node, fragment bool, nodes []*html.Node, classes Classes, log *zap.Logger) *Deck {
	d := &Deck{root: root, fragment: fragment, classes: classes, log: log}
	for i, n := range nodes {
		s := &Slide{ID: slideID(n, i), Line: sourceLine(n), Node: n}
		s.steps = dom.FindAll(n, func(e *html.Node) bool { return dom.HasClass(e, classes.InnerStep) })
		// resume progress of a document annotated and stepped before
		for s.revealed < len(s.steps) && dom.HasClass(s.steps[s.revealed], classes.Revealed) {
			s.revealed++
		}
		d.slides = append(d.slides, s)
	}
	return d
}

func slideID(n *html.Node, idx int) string {
	if id, ok := dom.Attr(n, "id"); ok && strings.TrimSpace(id) != "" {
		return id
	}
	return fmt.Sprintf("slide-%d", idx+1)
}

func sourceLine(n *html.Node) int {
	v, ok := dom.Attr(n, AttrSourceLine)
	if !ok {
		return 0
	}
	line, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	return line
}

// Len returns the number of slides.
func (d *Deck) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.slides)
}

// IDs returns the slide ids in document order.
func (d *Deck) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, len(d.slides))
	for i, s := range d.slides {
		ids[i] = s.ID
	}
	return ids
}

// Active returns the id of the active slide, empty for a deck without slides.
func (d *Deck) Active() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.slides) == 0 {
		return ""
	}
	return d.slides[d.active].ID
}

// Goto makes slide id active.
func (d *Deck) Goto(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, s := range d.slides {
		if s.ID == id {
			d.active = i
			return true
		}
	}
	return false
}

// GotoLine activates the slide holding markdown source line.
func (d *Deck) GotoLine(line int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	found := -1
	for i, s := range d.slides {
		if s.Line > 0 && s.Line <= line {
			found = i
		}
	}
	if found < 0 || found == d.active {
		return false
	}
	d.active = found
	return true
}

// Progress reports how many inner steps of slide id are revealed.
func (d *Deck) Progress(id string) (revealed, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.lookup(id)
	if s == nil {
		return 0, 0
	}
	return s.revealed, len(s.steps)
}

// Current returns the step marker currently flagged on slide id, or nil.
func (d *Deck) Current(id string) *html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.lookup(id)
	if s == nil {
		return nil
	}
	return d.current(s)
}

// Advance reveals the next inner step of slide id and moves the current
// flag to the last revealed step marker. Once every step is revealed the
// slide stays put and Advance reports false.
func (d *Deck) Advance(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.lookup(id)
	if s == nil || s.revealed >= len(s.steps) {
		return false
	}
	dom.AddClass(s.steps[s.revealed], d.classes.Revealed)
	s.revealed++
	d.flagCurrent(s)
	return true
}

// Reset hides every inner step of slide id again.
func (d *Deck) Reset(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.lookup(id)
	if s == nil {
		return false
	}
	for _, n := range s.steps {
		dom.RemoveClass(n, d.classes.Revealed)
	}
	s.revealed = 0
	d.flagCurrent(s)
	return true
}

// Listen subscribes the deck to src, replacing a previous subscription.
// onChange runs after every event that advanced a slide.
func (d *Deck) Listen(src StepSource, onChange func(StepEvent)) {
	cancel := src.Subscribe(func(ev StepEvent) {
		if !d.Advance(ev.Slide) {
			d.log.Debug("Step ignored", zap.String("slide", ev.Slide))
			return
		}
		if onChange != nil {
			onChange(ev)
		}
	})

	d.mu.Lock()
	prev := d.cancel
	d.cancel = cancel
	d.mu.Unlock()

	if prev != nil {
		prev()
	}
}

// Close drops the step source subscription.
func (d *Deck) Close() {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Render writes the annotated document.
func (d *Deck) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fragment {
		return dom.RenderChildren(w, d.root)
	}
	return html.Render(w, d.root)
}

// HTML returns the annotated document as a string.
func (d *Deck) HTML() (string, error) {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (d *Deck) lookup(id string) *Slide {
	if len(d.slides) == 0 {
		return nil
	}
	if id == "" {
		return d.slides[d.active]
	}
	for _, s := range d.slides {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func (d *Deck) isStepMarker(n *html.Node) bool {
	return dom.HasClass(n, d.classes.StepMarker)
}

func (d *Deck) current(s *Slide) *html.Node {
	for _, n := range s.steps {
		if d.isStepMarker(n) && dom.HasClass(n, d.classes.Current) {
			return n
		}
	}
	return nil
}

// flagCurrent keeps the current class on the last revealed step marker only.
func (d *Deck) flagCurrent(s *Slide) {
	var last *html.Node
	for _, n := range s.steps[:s.revealed] {
		if d.isStepMarker(n) {
			last = n
		}
	}
	for _, n := range s.steps {
		if n != last && d.isStepMarker(n) {
			dom.RemoveClass(n, d.classes.Current)
		}
	}
	if last != nil {
		dom.AddClass(last, d.classes.Current)
	}
}
