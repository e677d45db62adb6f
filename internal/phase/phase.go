package phase

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Phase names one of the sequential server-side sync jobs.
type Phase string

const (
	// Images is Phase 1: image sync.
	Images Phase = "images"
	// Products is Phase 2: product sync. It starts after Images completes.
	Products Phase = "products"
)

// All returns the phases in execution order.
func All() []Phase {
	return []Phase{Images, Products}
}

// Parse resolves user input ("images", "1", "phase1", "Products") to a Phase.
func Parse(value string) (Phase, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "images", "image", "1", "phase1", "phase-1":
		return Images, true
	case "products", "product", "2", "phase2", "phase-2":
		return Products, true
	default:
		return "", false
	}
}

// Number is the 1-based position of the phase.
func (p Phase) Number() int {
	switch p {
	case Images:
		return 1
	case Products:
		return 2
	default:
		return 0
	}
}

// Next returns the phase that follows p, if any.
func (p Phase) Next() (Phase, bool) {
	if p == Images {
		return Products, true
	}
	return "", false
}

// Pausable reports whether the phase supports pause/resume.
func (p Phase) Pausable() bool {
	return p == Products
}

// PollTaskName is the scheduler key for the phase's progress check.
func (p Phase) PollTaskName() string {
	return string(p) + "-progress"
}

// Label is the display form, e.g. "Phase 1 (Images)".
func (p Phase) Label() string {
	name := cases.Title(language.Und).String(string(p))
	if n := p.Number(); n > 0 {
		return "Phase " + string(rune('0'+n)) + " (" + name + ")"
	}
	return name
}

func (p Phase) String() string {
	return string(p)
}
