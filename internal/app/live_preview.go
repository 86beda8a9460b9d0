package app

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-live-slides/internal/annotate"
	"go-live-slides/internal/contracts"
	"go-live-slides/internal/render"
	httptransport "go-live-slides/internal/transport/http"
)

// LiveDeck is a coordinator between deck rendering, annotation and HTTP delivery.
// Step-advance events from the browser and from the editor share one bus; the
// current deck listens on it and every change is pushed to the browser.
type LiveDeck struct {
	renderer  *render.Renderer
	annotator *annotate.Annotator
	preview   *httptransport.PreviewServer
	bus       *annotate.StepBus
	log       *zap.Logger

	mu         sync.Mutex
	deck       *annotate.Deck
	path       string
	onGoToLine func(contracts.GoToLineMessage)
}

func NewLiveDeck(addr string, opts annotate.Options, limiter *rate.Limiter, log *zap.Logger) *LiveDeck {
	if log == nil {
		log = zap.NewNop()
	}
	annotator := annotate.New(opts, log.Named("annotate"))
	renderer := render.NewRenderer(annotator.Options().Selectors.Slide, log.Named("render"))
	s := &LiveDeck{
		renderer:  renderer,
		annotator: annotator,
		preview:   httptransport.NewPreviewServer(addr, renderer.RenderShell(), limiter, log.Named("http")),
		bus:       &annotate.StepBus{},
		log:       log,
	}
	s.preview.SetHandlers(httptransport.Handlers{
		OnStep: func(msg contracts.StepMessage) { s.Step(msg.Slide) },
		OnGoto: func(msg contracts.GotoMessage) {
			if err := s.Goto(msg.Slide); err != nil {
				s.log.Warn("Unable to switch slide", zap.String("slide", msg.Slide), zap.Error(err))
			}
		},
		OnGoToLine: s.forwardGoToLine,
	})
	return s
}

func (s *LiveDeck) URL() string {
	return s.preview.URL()
}

// Steps exposes the bus step sources publish on.
func (s *LiveDeck) Steps() *annotate.StepBus {
	return s.bus
}

// PublishSource renders and annotates a markdown deck and sends it to the
// browser. The active slide survives reloads when it still exists.
func (s *LiveDeck) PublishSource(source []byte, path string) error {
	fragment, err := s.renderer.ConvertDeck(source, path)
	if err != nil {
		return err
	}
	deck, err := s.annotator.AnnotateFragment(strings.NewReader(fragment))
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.deck
	s.deck = deck
	s.path = path
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
		deck.Goto(prev.Active())
	}
	// listen only once annotation is complete
	deck.Listen(s.bus, func(annotate.StepEvent) {
		if err := s.push(); err != nil {
			s.log.Warn("Unable to publish step", zap.Error(err))
		}
	})

	s.log.Debug("Deck published", zap.String("path", path), zap.Int("slides", deck.Len()))
	return s.push()
}

// Step advances the inner steps of slide, the active one when empty.
func (s *LiveDeck) Step(slide string) {
	s.bus.Publish(annotate.StepEvent{Slide: slide})
}

// Goto activates a slide.
func (s *LiveDeck) Goto(slide string) error {
	deck := s.current()
	if deck == nil {
		return nil
	}
	if !deck.Goto(slide) {
		return fmt.Errorf("no slide %q", slide)
	}
	return s.push()
}

// GotoLine activates the slide holding a markdown source line.
func (s *LiveDeck) GotoLine(line int) error {
	deck := s.current()
	if deck == nil || !deck.GotoLine(line) {
		return nil
	}
	return s.push()
}

// Deck returns the deck currently shown, nil before the first publish.
func (s *LiveDeck) Deck() *annotate.Deck {
	return s.current()
}

// SetGoToLineHandler registers the callback for browser go-to-line requests.
func (s *LiveDeck) SetGoToLineHandler(fn func(contracts.GoToLineMessage)) {
	s.mu.Lock()
	s.onGoToLine = fn
	s.mu.Unlock()
}

// Stop shuts the preview down and detaches the deck from the step bus.
func (s *LiveDeck) Stop() error {
	if deck := s.current(); deck != nil {
		deck.Close()
	}
	return s.preview.Stop()
}

func (s *LiveDeck) forwardGoToLine(msg contracts.GoToLineMessage) {
	s.mu.Lock()
	fn := s.onGoToLine
	s.mu.Unlock()
	if fn != nil {
		fn(msg)
	}
}

func (s *LiveDeck) current() *annotate.Deck {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deck
}

func (s *LiveDeck) push() error {
	s.mu.Lock()
	deck, path := s.deck, s.path
	s.mu.Unlock()
	if deck == nil {
		return nil
	}

	html, err := deck.HTML()
	if err != nil {
		return fmt.Errorf("unable to serialize deck: %w", err)
	}
	return s.preview.StartOrUpdate(html, path, deck.Active())
}
