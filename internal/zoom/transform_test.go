package zoom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/image/math/f64"
)

func TestCompute_IdentityAtOrBelowLevelOne(t *testing.T) {
	cursors := []f64.Vec2{{0, 0}, {1, 1}, {0.25, 0.75}, {0.5, 0.5}}
	for _, level := range []float64{1, 0.5, 0, -3} {
		for _, cursor := range cursors {
			transform := Compute(level, cursor, 1920, 1080)
			assert.True(t, transform.IsIdentity(), "level=%v cursor=%v", level, cursor)
		}
	}

	matrix := Compute(1, f64.Vec2{0.3, 0.7}, 1920, 1080).Aff3(1920, 1080)
	assert.Equal(t, f64.Aff3{1, 0, 0, 0, 1, 0}, matrix)
}

func TestCompute_CenterCursorIsPureScale(t *testing.T) {
	transform := Compute(2, f64.Vec2{0.5, 0.5}, 1920, 1080)
	assert.Equal(t, 2.0, transform.Scale)
	assert.Zero(t, transform.TranslateX)
	assert.Zero(t, transform.TranslateY)
	assert.False(t, transform.IsIdentity())
}

func TestCompute_KnownValues(t *testing.T) {
	// Cursor in the top-left corner at 2x: the view shifts by a full
	// half frame, scaled.
	transform := Compute(2, f64.Vec2{0, 0}, 1920, 1080)
	assert.Equal(t, 1920.0, transform.TranslateX)
	assert.Equal(t, 1080.0, transform.TranslateY)

	transform = Compute(2, f64.Vec2{1, 1}, 1920, 1080)
	assert.Equal(t, -1920.0, transform.TranslateX)
	assert.Equal(t, -1080.0, transform.TranslateY)
}

func TestCompute_CursorLandsOnCenter(t *testing.T) {
	const width, height = 1920.0, 1080.0
	cursors := []f64.Vec2{{0.2, 0.8}, {0.5, 0.5}, {0.9, 0.1}}

	for _, cursor := range cursors {
		matrix := Compute(2.5, cursor, width, height).Aff3(width, height)
		px := cursor[0] * width
		py := cursor[1] * height
		x := matrix[0]*px + matrix[1]*py + matrix[2]
		y := matrix[3]*px + matrix[4]*py + matrix[5]
		assert.InDelta(t, width/2, x, 1e-9, "cursor %v", cursor)
		assert.InDelta(t, height/2, y, 1e-9, "cursor %v", cursor)
	}
}
