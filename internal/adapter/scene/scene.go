// Package scene holds the canvas document store: the capability surface of
// the visual editing engine, reduced to what the rest of the client needs.
// A concrete editor integration implements Store; Memory is the reference
// implementation and the one used headless.
package scene

import "canvaschat/internal/domain"

// Store is the canvas engine capability interface. Readers receive copies;
// the engine's internal state is never aliased out.
type Store interface {
	// Elements returns the current drawable elements in order.
	Elements() []domain.Element
	// Files returns the embedded file map.
	Files() map[string]domain.BinaryFile
	// AppState returns the opaque view state.
	AppState() domain.AppState
	// AddFiles registers file blobs, keyed by their IDs.
	AddFiles(files []domain.BinaryFile)
	// UpdateScene replaces the element list and, when appState is non-nil,
	// the view state.
	UpdateScene(elements []domain.Element, appState domain.AppState)
	// OnChange registers a mutation listener and returns an unsubscribe
	// function. Listeners fire after AddFiles and UpdateScene.
	OnChange(fn func()) func()
}
