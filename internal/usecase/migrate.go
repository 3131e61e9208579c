package usecase

import (
	"fmt"

	"canvaschat/internal/domain"
)

// legacyFallbackDim is used when a legacy image record has no geometry.
const legacyFallbackDim = 300

// SanitizeDocument normalizes a scene document for persistence or load:
// missing containers become empty ones and the transient collaborators entry
// is stripped from the view state. Collaborators is a live presence artifact;
// reloading a document that still carries it crashes the editor.
func SanitizeDocument(doc *domain.SceneDocument) domain.SceneDocument {
	if doc == nil {
		return domain.SceneDocument{
			Elements: []domain.Element{},
			AppState: domain.AppState{},
			Files:    map[string]domain.BinaryFile{},
		}
	}
	out := doc.Clone()
	if out.Elements == nil {
		out.Elements = []domain.Element{}
	}
	if out.AppState == nil {
		out.AppState = domain.AppState{}
	}
	delete(out.AppState, "collaborators")
	if out.Files == nil {
		out.Files = map[string]domain.BinaryFile{}
	}
	return out
}

// MigrateProject upgrades a stored project to the current document shape.
// Pure and idempotent: a project that already carries a document is only
// sanitized; a legacy flat image list is rewritten as one file plus one image
// element per record, with identifiers derived from the record index so
// repeated runs produce identical output.
func MigrateProject(p domain.Project) domain.Project {
	out := p

	if p.Data != nil {
		doc := SanitizeDocument(p.Data)
		out.Data = &doc
		return out
	}

	doc := domain.SceneDocument{
		Elements: []domain.Element{},
		AppState: domain.AppState{},
		Files:    map[string]domain.BinaryFile{},
	}
	created := int64(p.CreatedAt * 1000)

	for i, img := range p.Images {
		w := img.Width
		if w <= 0 {
			w = legacyFallbackDim
		}
		h := img.Height
		if h <= 0 {
			h = legacyFallbackDim
		}
		fileID := fmt.Sprintf("legacy-file-%s-%d", p.ID, i)

		doc.Files[fileID] = domain.BinaryFile{
			ID:       fileID,
			MimeType: "image/png",
			DataURL:  img.URL,
			Created:  created,
		}
		doc.Elements = append(doc.Elements, domain.Element{
			ID:      fmt.Sprintf("legacy-el-%s-%d", p.ID, i),
			Type:    domain.ElementImage,
			X:       img.X,
			Y:       img.Y,
			Width:   w,
			Height:  h,
			Opacity: 100,
			FileID:  fileID,
		})
	}

	out.Data = &doc
	return out
}
