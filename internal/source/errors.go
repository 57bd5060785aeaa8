package source

import "fmt"

// LoadError means the document could not be opened at all. It is fatal for
// the viewer: no scheduling happens without a usable document.
type LoadError struct {
	Ref    string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load %s: %s: %v", e.Ref, e.Reason, e.Err)
	}
	return fmt.Sprintf("load %s: %s", e.Ref, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }

// RenderError means a single slot failed to render. The slot simply stays
// unavailable; a later scheduling pass may request it again.
type RenderError struct {
	Slot int
	Page int
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render slot %d (page %d): %v", e.Slot, e.Page, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
