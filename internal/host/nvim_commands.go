package host

import (
	"bytes"
	"fmt"

	"github.com/neovim/go-client/nvim"
	"github.com/neovim/go-client/nvim/plugin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-live-slides/internal/app"
	"go-live-slides/internal/config"
	"go-live-slides/internal/contracts"
)

// Commands is a state container for Neovim command handlers.
// It tracks the active buffer and delegates deck handling
// to the LiveDeck service.
type Commands struct {
	deck   *app.LiveDeck
	active bool
	log    *zap.Logger

	nv *nvim.Nvim

	lastCursorLine int
}

func NewCommands(cfg *config.Config, log *zap.Logger) *Commands {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Server.GetRateLimit()), cfg.Server.GetBurst())
	deck := app.NewLiveDeck(cfg.Server.GetAddr(), cfg.Annotate.Options(), limiter, log)
	c := &Commands{deck: deck, log: log}

	deck.SetGoToLineHandler(func(msg contracts.GoToLineMessage) {
		c.handleGoToLine(msg)
	})
	return c
}

// Register registers Neovim command/function handlers.
func Register(p *plugin.Plugin, cfg *config.Config, log *zap.Logger) error {
	commands := NewCommands(cfg, log)

	p.Handle("poll", func() (string, error) {
		return "ok", nil
	})

	p.HandleCommand(&plugin.CommandOptions{
		Name: "GoLiveSlidesStart",
	}, commands.GoLiveSlidesStart)

	p.HandleCommand(&plugin.CommandOptions{
		Name:  "GoLiveSlidesStep",
		NArgs: "?",
	}, commands.GoLiveSlidesStep)

	p.HandleCommand(&plugin.CommandOptions{
		Name: "GoLiveSlidesStop",
	}, commands.GoLiveSlidesStop)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "GoLiveSlidesInternalUpdate",
	}, commands.GoLiveSlidesUpdate)

	p.HandleFunction(&plugin.FunctionOptions{
		Name: "GoLiveSlidesInternalCursor",
	}, commands.GoLiveSlidesCursor)

	return nil
}

func (c *Commands) GoLiveSlidesStart(v *nvim.Nvim) error {
	c.active = true
	c.lastCursorLine = 0
	c.nv = v

	if err := c.publishBuffer(v); err != nil {
		return err
	}

	if err := c.publishCursor(v); err != nil {
		return err
	}

	return v.Command(fmt.Sprintf(`echom "[go-live-slides] preview: %s"`, c.deck.URL()))
}

// GoLiveSlidesStep advances the inner steps of the named slide, or of the
// active one without arguments.
func (c *Commands) GoLiveSlidesStep(v *nvim.Nvim, args []string) error {
	if !c.active {
		return nil
	}
	slide := ""
	if len(args) > 0 {
		slide = args[0]
	}
	c.deck.Step(slide)
	return nil
}

func (c *Commands) GoLiveSlidesStop(v *nvim.Nvim) error {
	if !c.active {
		return nil
	}
	c.active = false
	c.nv = nil
	return c.deck.Stop()
}

func (c *Commands) GoLiveSlidesUpdate(v *nvim.Nvim) error {
	if !c.active {
		return nil
	}

	return c.publishBuffer(v)
}

func (c *Commands) GoLiveSlidesCursor(v *nvim.Nvim) error {
	if !c.active {
		return nil
	}
	return c.publishCursor(v)
}

func (c *Commands) publishBuffer(v *nvim.Nvim) error {
	buf, err := v.CurrentBuffer()
	if err != nil {
		return err
	}

	lines, err := v.BufferLines(buf, 0, -1, true)
	if err != nil {
		return err
	}

	path, err := v.BufferName(buf)
	if err != nil {
		return err
	}
	return c.deck.PublishSource(bytes.Join(lines, []byte("\n")), path)
}

func (c *Commands) publishCursor(v *nvim.Nvim) error {
	var line int
	if err := v.Eval(`line(".")`, &line); err != nil {
		return err
	}

	if line == c.lastCursorLine {
		return nil
	}

	c.lastCursorLine = line
	return c.deck.GotoLine(line)
}

func (c *Commands) handleGoToLine(msg contracts.GoToLineMessage) {
	if !c.active || c.nv == nil {
		return
	}

	v := c.nv

	line := msg.Line
	if line < 1 || line == c.lastCursorLine {
		return
	}

	win, err := v.CurrentWindow()
	if err != nil {
		c.log.Debug("Unable to get current window", zap.Error(err))
		return
	}
	if err := v.SetWindowCursor(win, [2]int{line, 0}); err != nil {
		c.log.Debug("Unable to move cursor", zap.Int("line", line), zap.Error(err))
		return
	}

	_ = v.Command("normal! zz")
	c.lastCursorLine = line
}
