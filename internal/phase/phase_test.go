package phase_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"shuttle/internal/phase"
)

func TestParse(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]phase.Phase{
		"images":   phase.Images,
		" Image ":  phase.Images,
		"1":        phase.Images,
		"PRODUCTS": phase.Products,
		"phase2":   phase.Products,
	} {
		got, ok := phase.Parse(input)
		assert.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}

	_, ok := phase.Parse("orders")
	assert.False(t, ok)
}

func TestOrderingAndLabels(t *testing.T) {
	t.Parallel()

	next, ok := phase.Images.Next()
	assert.True(t, ok)
	assert.Equal(t, phase.Products, next)

	_, ok = phase.Products.Next()
	assert.False(t, ok)

	assert.False(t, phase.Images.Pausable())
	assert.True(t, phase.Products.Pausable())
	assert.Equal(t, "Phase 1 (Images)", phase.Images.Label())
	assert.Equal(t, "Phase 2 (Products)", phase.Products.Label())
	assert.Equal(t, "images-progress", phase.Images.PollTaskName())
}
