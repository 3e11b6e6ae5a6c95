package models

// Phase is the upload widget state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseEncoding   Phase = "encoding"
	PhaseSimulating Phase = "simulating"
	PhaseComplete   Phase = "complete"
)

// HandoffStatus tracks project creation after an upload completes.
type HandoffStatus string

const (
	HandoffNone      HandoffStatus = ""
	HandoffSaving    HandoffStatus = "saving"
	HandoffNavigated HandoffStatus = "navigated"
	HandoffFailed    HandoffStatus = "failed"
)

// UploadFile is the name and type of the file in the current session.
type UploadFile struct {
	Name string `json:"name" msgpack:"name"`
	Type string `json:"type" msgpack:"type"`
}

// UploadSnapshot is the render state of one widget.
type UploadSnapshot struct {
	WidgetID   string      `json:"widgetId" msgpack:"widgetId"`
	Session    int         `json:"session" msgpack:"session"` // increments per accepted file
	Phase      Phase       `json:"phase" msgpack:"phase"`
	Progress   int         `json:"progress" msgpack:"progress"` // 0-100
	File       *UploadFile `json:"file,omitempty" msgpack:"file,omitempty"`
	SignedIn   bool        `json:"signedIn" msgpack:"signedIn"`
	Dragging   bool        `json:"dragging" msgpack:"dragging"`
	Prompt     string      `json:"prompt,omitempty" msgpack:"prompt,omitempty"`
	StatusText string      `json:"statusText,omitempty" msgpack:"statusText,omitempty"`
	Help       string      `json:"help,omitempty" msgpack:"help,omitempty"`
	Handoff    *Handoff    `json:"handoff,omitempty" msgpack:"handoff,omitempty"`
	Closed     bool        `json:"closed,omitempty" msgpack:"closed,omitempty"`
}

// Handoff is the outcome of project creation for a completed session.
type Handoff struct {
	Status    HandoffStatus `json:"status" msgpack:"status"`
	ProjectID string        `json:"projectId,omitempty" msgpack:"projectId,omitempty"`
	Location  string        `json:"location,omitempty" msgpack:"location,omitempty"`
	Error     string        `json:"error,omitempty" msgpack:"error,omitempty"`
}
