package models

// Visibility controls who can see a saved project.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ProjectRecord is a created design project. ID and Timestamp never change
// after creation; RenderedImage stays empty until a rendering step fills it.
type ProjectRecord struct {
	ID            string `json:"id" msgpack:"id"`
	Name          string `json:"name" msgpack:"name"`
	SourceImage   string `json:"sourceImage" msgpack:"sourceImage"`
	RenderedImage string `json:"renderedImage,omitempty" msgpack:"renderedImage,omitempty"`
	Timestamp     int64  `json:"timestamp" msgpack:"timestamp"` // Unix ms
}

// Preview is the image shown on a project card.
func (p *ProjectRecord) Preview() string {
	if p.RenderedImage != "" {
		return p.RenderedImage
	}
	return p.SourceImage
}

// SaveRequest is the argument of the persistence collaborator.
type SaveRequest struct {
	Item       ProjectRecord
	Visibility Visibility
}

// HandoffState is the transient payload carried by the navigation to the
// visualizer. It is never persisted.
type HandoffState struct {
	InitialImage    string `json:"initialImage" msgpack:"initialImage"`
	InitialRendered string `json:"initialRendered,omitempty" msgpack:"initialRendered,omitempty"`
	Name            string `json:"name" msgpack:"name"`
}

// UntitledProject is the visualizer title when no handoff state is present.
const UntitledProject = "Untitled Project"

// VisualizerView is what the detail view renders.
type VisualizerView struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	SourceImage string `json:"sourceImage,omitempty"`
	Rendered    string `json:"renderedImage,omitempty"`
	FromHandoff bool   `json:"fromHandoff"`
}

// NavigateOptions accompany a navigation request.
type NavigateOptions struct {
	State HandoffState
}
