package render

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark/ast"
	"gopkg.in/yaml.v3"
)

const directiveKeyword = "slide"

// SlideMeta is the per-slide directive written as the first thing of a slide:
//
//	<!-- slide
//	reveal: 1
//	emphasize-lines: 2,4
//	step-lines: [3, 5, 7]
//	keep-linenos: true
//	-->
type SlideMeta struct {
	ID             string   `yaml:"id"`
	Class          string   `yaml:"class"`
	Reveal         Flag     `yaml:"reveal"`
	EmphasizeLines LineList `yaml:"emphasize-lines"`
	StepLines      LineList `yaml:"step-lines"`
	KillLinenos    Flag     `yaml:"kill-linenos"`
	KeepLinenos    Flag     `yaml:"keep-linenos"`
}

// Flag accepts 1/0, true/false and yes/no.
type Flag bool

func (f *Flag) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected a scalar flag", value.Line)
	}
	switch strings.ToLower(strings.TrimSpace(value.Value)) {
	case "1", "true", "yes", "on":
		*f = true
	case "0", "false", "no", "off", "":
		*f = false
	default:
		return fmt.Errorf("line %d: bad flag %q", value.Line, value.Value)
	}
	return nil
}

// LineList keeps line numbers as the comma separated text the annotator
// parses. Both "2,4" and [2, 4] are accepted.
type LineList string

func (l *LineList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*l = LineList(strings.TrimSpace(value.Value))
	case yaml.SequenceNode:
		parts := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected line number", item.Line)
			}
			parts = append(parts, strings.TrimSpace(item.Value))
		}
		*l = LineList(strings.Join(parts, ","))
	default:
		return fmt.Errorf("line %d: expected line list", value.Line)
	}
	return nil
}

// parseDirective reports whether n is a slide directive comment and decodes
// it. A directive with bad YAML is still consumed and returned with err set.
func parseDirective(n ast.Node, source []byte) (meta SlideMeta, ok bool, err error) {
	block, isHTML := n.(*ast.HTMLBlock)
	if !isHTML || block.HTMLBlockType != ast.HTMLBlockType2 {
		return meta, false, nil
	}

	var b strings.Builder
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(source))
	}
	if block.HasClosure() {
		b.Write(block.ClosureLine.Value(source))
	}

	body := strings.TrimSpace(b.String())
	body = strings.TrimPrefix(body, "<!--")
	body = strings.TrimSuffix(body, "-->")
	body = strings.TrimLeft(body, " \t")
	if !strings.HasPrefix(body, directiveKeyword) {
		return meta, false, nil
	}
	rest := body[len(directiveKeyword):]
	if rest != "" && !strings.ContainsAny(rest[:1], " \t\r\n:") {
		// some other comment starting with "slide..."
		return meta, false, nil
	}
	rest = strings.TrimPrefix(rest, ":")

	if strings.TrimSpace(rest) == "" {
		return meta, true, nil
	}
	if err := yaml.Unmarshal([]byte(rest), &meta); err != nil {
		return SlideMeta{}, true, fmt.Errorf("bad slide directive: %w", err)
	}
	return meta, true, nil
}
