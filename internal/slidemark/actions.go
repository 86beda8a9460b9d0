// Package slidemark implements slidemark subcommands.
package slidemark

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"go-live-slides/internal/annotate"
	"go-live-slides/internal/app"
	"go-live-slides/internal/render"
	"go-live-slides/internal/state"
	"go-live-slides/internal/watch"
)

// Annotate decorates an existing HTML deck.
func Annotate(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src, dst, err := arguments(env, cmd)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open source: %w", err)
	}
	defer in.Close()

	annotator := annotate.New(env.Cfg.Annotate.Options(), env.Log.Named("annotate"))

	var deck *annotate.Deck
	if cmd.Bool("fragment") {
		deck, err = annotator.AnnotateFragment(in)
	} else {
		deck, err = annotator.AnnotateDocument(in)
	}
	if err != nil {
		return fmt.Errorf("unable to annotate '%s': %w", src, err)
	}
	env.Log.Debug("Annotated", zap.String("source", src), zap.Int("slides", deck.Len()))

	return writeOutput(env, dst, deck.Render)
}

// Render converts a markdown deck into an annotated standalone page.
func Render(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src, dst, err := arguments(env, cmd)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("unable to read source: %w", err)
	}

	opts := env.Cfg.Annotate.Options()
	renderer := render.NewRenderer(opts.Selectors.Slide, env.Log.Named("render"))
	fragment, err := renderer.ConvertDeck(source, src)
	if err != nil {
		return fmt.Errorf("unable to render '%s': %w", src, err)
	}

	deck, err := annotate.New(opts, env.Log.Named("annotate")).AnnotateFragment(bytes.NewReader([]byte(fragment)))
	if err != nil {
		return fmt.Errorf("unable to annotate '%s': %w", src, err)
	}
	annotated, err := deck.HTML()
	if err != nil {
		return fmt.Errorf("unable to serialize deck: %w", err)
	}
	env.Log.Debug("Rendered", zap.String("source", src), zap.Int("slides", deck.Len()))

	return writeOutput(env, dst, func(w io.Writer) error {
		_, err := io.WriteString(w, render.StaticPage(annotated))
		return err
	})
}

// Serve runs the live preview for a markdown deck until the context is
// cancelled, reloading it whenever the file changes.
func Serve(ctx context.Context, cmd *cli.Command) error {
	env := state.EnvFromContext(ctx)

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return fmt.Errorf("no source has been specified")
	}
	if cmd.Args().Len() > 1 {
		env.Log.Warn("Malformed command line, too many sources", zap.Strings("ignoring", cmd.Args().Slice()[1:]))
	}

	addr := cmd.String("addr")
	if len(addr) == 0 {
		addr = env.Cfg.Server.GetAddr()
	}
	limiter := rate.NewLimiter(rate.Limit(env.Cfg.Server.GetRateLimit()), env.Cfg.Server.GetBurst())
	live := app.NewLiveDeck(addr, env.Cfg.Annotate.Options(), limiter, env.Log)

	publish := func(path string) error {
		source, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("unable to read source: %w", err)
		}
		return live.PublishSource(source, path)
	}
	if err := publish(src); err != nil {
		_ = live.Stop()
		return err
	}

	w, err := watch.NewWatcher(src, publish, watch.DefaultDebounce, env.Log.Named("watch"))
	if err != nil {
		_ = live.Stop()
		return fmt.Errorf("unable to watch '%s': %w", src, err)
	}
	w.Start()

	env.Log.Info("Serving deck", zap.String("source", src), zap.String("url", live.URL()))
	<-ctx.Done()
	env.Log.Info("Shutting down")

	return multierr.Append(w.Stop(), live.Stop())
}

func arguments(env *state.LocalEnv, cmd *cli.Command) (src, dst string, err error) {
	src = cmd.Args().Get(0)
	if len(src) == 0 {
		return "", "", fmt.Errorf("no source has been specified")
	}
	dst = cmd.Args().Get(1)
	if cmd.Args().Len() > 2 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	return src, dst, nil
}

// writeOutput writes to fname or STDOUT when it is empty.
func writeOutput(env *state.LocalEnv, fname string, write func(io.Writer) error) (err error) {
	var out io.Writer = os.Stdout
	if len(fname) > 0 {
		f, err := os.Create(fname)
		if err != nil {
			return fmt.Errorf("unable to create destination file '%s': %w", fname, err)
		}
		defer func() {
			if er := f.Close(); er != nil && err == nil {
				err = fmt.Errorf("unable to close destination file '%s': %w", fname, er)
			}
		}()
		out = f
	} else {
		fname = "STDOUT"
	}

	env.Log.Debug("Writing result", zap.String("file", fname))
	if err := write(out); err != nil {
		return fmt.Errorf("unable to write result: %w", err)
	}
	return nil
}
