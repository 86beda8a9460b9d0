// Package annotate decorates slide markup: it tags list items of reveal slides
// as inner steps, inserts emphasis markers next to code line numbers, formats
// citation labels and tracks the current step marker while an external step
// source fires step-advance events.
package annotate

// Classes are the class names written into the document.
type Classes struct {
	InnerStep  string // incremental reveal step
	Marker     string // emphasis marker element
	StepMarker string // emphasis marker revealed one step at a time
	Current    string // last revealed step marker
	Revealed   string // inner step already revealed
}

// Selectors are the class names read from the document.
type Selectors struct {
	Slide         string
	Code          []string
	LineNumber    string
	Citation      string
	CitationLabel string
}

// Options control how an Annotator reads and writes slide markup.
type Options struct {
	Classes   Classes
	Selectors Selectors

	// Blank replaces the text of a cleared line number.
	Blank string
	// CitationText replaces the content of every citation label.
	CitationText string
	// ClearByDefault clears line numbers of slides that carry neither
	// data-kill-linenos nor data-keep-linenos.
	ClearByDefault bool
}

const (
	nbsp           = "\u00a0"
	defaultCitText = "\u2014" + nbsp
)

// DefaultOptions returns the class names used by impress-style decks.
func DefaultOptions() Options {
	return Options{
		Classes: Classes{
			InnerStep:  "innerStep",
			Marker:     "emphasis",
			StepMarker: "emphasis-step",
			Current:    "last",
			Revealed:   "stepped",
		},
		Selectors: Selectors{
			Slide:         "step",
			Code:          []string{"code", "chroma"},
			LineNumber:    "ln",
			Citation:      "citation",
			CitationLabel: "label",
		},
		Blank:          nbsp,
		CitationText:   defaultCitText,
		ClearByDefault: true,
	}
}

// withDefaults fills empty fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&o.Classes.InnerStep, d.Classes.InnerStep)
	fill(&o.Classes.Marker, d.Classes.Marker)
	fill(&o.Classes.StepMarker, d.Classes.StepMarker)
	fill(&o.Classes.Current, d.Classes.Current)
	fill(&o.Classes.Revealed, d.Classes.Revealed)
	fill(&o.Selectors.Slide, d.Selectors.Slide)
	fill(&o.Selectors.LineNumber, d.Selectors.LineNumber)
	fill(&o.Selectors.Citation, d.Selectors.Citation)
	fill(&o.Selectors.CitationLabel, d.Selectors.CitationLabel)
	fill(&o.Blank, d.Blank)
	fill(&o.CitationText, d.CitationText)
	if len(o.Selectors.Code) == 0 {
		o.Selectors.Code = d.Selectors.Code
	}
	return o
}
