package contracts

const (
	// MessageTypeRender updates the browser with the annotated deck HTML.
	MessageTypeRender = "render"
	// MessageTypeInnerStep reports a step-advance from the browser.
	MessageTypeInnerStep = "innerstep"
	// MessageTypeGoto asks the server to activate another slide.
	MessageTypeGoto = "goto"
	// MessageTypeGoToLine asks Neovim to move its cursor to a source line.
	MessageTypeGoToLine = "go_to_line"
)

// IncomingMessage is the minimal envelope used to route browser messages.
type IncomingMessage struct {
	Type string
}

// StepMessage advances the inner steps of a slide, the active one when
// Slide is empty.
type StepMessage struct {
	Type  string `json:"type"`
	Slide string `json:"slide,omitempty"`
}

// GotoMessage activates a slide.
type GotoMessage struct {
	Type  string `json:"type"`
	Slide string `json:"slide"`
}

// GoToLineMessage requests a cursor jump in the editor.
type GoToLineMessage struct {
	Type string `json:"type"`
	Line int    `json:"line"`
}

// RenderMessage carries annotated HTML and revision metadata to the browser.
type RenderMessage struct {
	Type     string `json:"type"`
	HTML     string `json:"html"`
	Filename string `json:"filename"`
	Active   string `json:"active"`
	Rev      uint64 `json:"rev"`
}
