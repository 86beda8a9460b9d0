package annotate

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/net/html"

	"go-live-slides/internal/dom"
)

// Slide attributes read by the annotator.
const (
	AttrReveal         = "data-reveal"
	AttrEmphasizeLines = "data-emphasize-lines"
	AttrStepLines      = "data-step-lines"
	AttrKillLinenos    = "data-kill-linenos"
	AttrKeepLinenos    = "data-keep-linenos"
)

// SlideConfig is the per-slide annotation configuration.
type SlideConfig struct {
	EmphasizeLines []int
	StepLines      []int
	KillLinenos    bool
	KeepLinenos    bool
	Reveal         bool
}

// ClearLinenos resolves the line number policy: kill always clears, keep
// prevents clearing, otherwise clearDefault decides.
func (c SlideConfig) ClearLinenos(clearDefault bool) bool {
	switch {
	case c.KillLinenos:
		return true
	case c.KeepLinenos:
		return false
	default:
		return clearDefault
	}
}

// ParseSlideConfig reads the annotation attributes of slide. The returned
// configuration is always usable; err lists the entries that were skipped.
func ParseSlideConfig(slide *html.Node) (SlideConfig, error) {
	var (
		cfg SlideConfig
		err error
		e   error
	)
	if v, ok := dom.Attr(slide, AttrEmphasizeLines); ok {
		cfg.EmphasizeLines, e = ParseLineList(v)
		err = multierr.Append(err, wrapAttr(AttrEmphasizeLines, e))
	}
	if v, ok := dom.Attr(slide, AttrStepLines); ok {
		cfg.StepLines, e = ParseLineList(v)
		err = multierr.Append(err, wrapAttr(AttrStepLines, e))
	}
	cfg.KillLinenos = flag(slide, AttrKillLinenos)
	cfg.KeepLinenos = flag(slide, AttrKeepLinenos)
	if v, ok := dom.Attr(slide, AttrReveal); ok {
		cfg.Reveal = strings.TrimSpace(v) == "1"
	}
	return cfg, err
}

// ParseLineList parses a comma separated list of 1-based line numbers.
// Empty entries are ignored, duplicates dropped and malformed entries
// reported without discarding the rest of the list.
func ParseLineList(s string) ([]int, error) {
	var (
		lines []int
		err   error
		seen  = make(map[int]struct{})
	)
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		n, e := strconv.ParseInt(field, 10, 0)
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("bad line number %q", field))
			continue
		}
		if n < 1 {
			err = multierr.Append(err, fmt.Errorf("line number %d out of range", n))
			continue
		}
		if _, dup := seen[int(n)]; dup {
			continue
		}
		seen[int(n)] = struct{}{}
		lines = append(lines, int(n))
	}
	return lines, err
}

// flag treats presence as true unless the value spells false.
func flag(n *html.Node, key string) bool {
	v, ok := dom.Attr(n, key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "false", "0", "no":
		return false
	}
	return true
}

func wrapAttr(attr string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", attr, err)
}
