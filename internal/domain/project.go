package domain

// Project is one named canvas plus its conversation, as stored by the
// backend's project endpoints. Exactly one of the two document shapes is
// meaningful: Data (current) or Images (legacy, superseded by migration).
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// CreatedAt is epoch seconds with fractional part, matching what the
	// original storage wrote.
	CreatedAt float64        `json:"createdAt"`
	Images    []LegacyImage  `json:"images,omitempty"`
	Data      *SceneDocument `json:"data,omitempty"`
	Messages  []Message      `json:"messages"`
}

// LegacyImage is the pre-scene storage shape: a flat positioned raster image
// without the element/file model.
type LegacyImage struct {
	URL    string  `json:"url"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// UploadResult is the response of the backend's image upload endpoint.
type UploadResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename,omitempty"`
}

// PendingPrompt is a staged first prompt for a freshly created project,
// written by the creation flow and consumed exactly once by the chat view.
type PendingPrompt struct {
	Text   string   `json:"text"`
	Images []string `json:"images,omitempty"`
}
