package domain

// Element types that occupy grid cells in the layout packer.
const (
	ElementRectangle  = "rectangle"
	ElementText       = "text"
	ElementImage      = "image"
	ElementEmbeddable = "embeddable"
	ElementVideo      = "video"
)

// Element is one drawable item in a canvas scene. The field set mirrors what
// the visual editor persists; geometry is in scene coordinates.
type Element struct {
	ID              string  `json:"id"`
	Type            string  `json:"type"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Angle           float64 `json:"angle"`
	StrokeColor     string  `json:"strokeColor,omitempty"`
	BackgroundColor string  `json:"backgroundColor,omitempty"`
	FillStyle       string  `json:"fillStyle,omitempty"`
	Opacity         float64 `json:"opacity"`
	IsDeleted       bool    `json:"isDeleted"`
	Locked          bool    `json:"locked"`
	// FileID links image and embeddable elements to an entry in the scene's
	// file map. A non-deleted image element whose FileID does not resolve is
	// tolerated by the view but is a data-integrity bug.
	FileID string `json:"fileId,omitempty"`
}

// Occupying reports whether the element takes part in grid placement:
// a live image, embeddable or video element.
func (e *Element) Occupying() bool {
	if e.IsDeleted {
		return false
	}
	switch e.Type {
	case ElementImage, ElementEmbeddable, ElementVideo:
		return true
	}
	return false
}

// BinaryFile is an embedded file blob referenced by image elements.
// DataURL holds either a data: URL or a backend storage URL.
type BinaryFile struct {
	ID       string `json:"id"`
	MimeType string `json:"mimeType"`
	DataURL  string `json:"dataURL"`
	// Created is epoch milliseconds, matching the editor's file records.
	Created int64 `json:"created"`
}

// AppState is the editor's opaque view state (pan, zoom, selection, theme).
// It is persisted as-is apart from sanitization; only the theme and the
// transient collaborators field are ever interpreted.
type AppState map[string]any

// SceneDocument is the persisted visual scene for one project.
type SceneDocument struct {
	Elements []Element             `json:"elements"`
	AppState AppState              `json:"appState"`
	Files    map[string]BinaryFile `json:"files"`
}

// Clone returns a deep copy of the document. AppState values are copied one
// level deep, which covers everything the client ever writes into it.
func (d SceneDocument) Clone() SceneDocument {
	out := SceneDocument{
		Elements: make([]Element, len(d.Elements)),
		AppState: make(AppState, len(d.AppState)),
		Files:    make(map[string]BinaryFile, len(d.Files)),
	}
	copy(out.Elements, d.Elements)
	for k, v := range d.AppState {
		out.AppState[k] = v
	}
	for k, v := range d.Files {
		out.Files[k] = v
	}
	return out
}
