package zoom

import "golang.org/x/image/math/f64"

// Transform is a uniform scale about the frame center followed by a
// translation that brings the cursor point to the center of the view.
type Transform struct {
	Scale      float64 `json:"scale"`
	TranslateX float64 `json:"translate_x"`
	TranslateY float64 `json:"translate_y"`
}

// IsIdentity reports whether the transform leaves frames untouched.
func (t Transform) IsIdentity() bool {
	return t.Scale == 1 && t.TranslateX == 0 && t.TranslateY == 0
}

// Aff3 returns the affine matrix in row-major [a b c; d e f] form
// mapping source pixel coordinates to view coordinates for a
// width x height frame.
func (t Transform) Aff3(width, height float64) f64.Aff3 {
	cx := width / 2
	cy := height / 2
	return f64.Aff3{
		t.Scale, 0, cx - t.Scale*cx + t.TranslateX,
		0, t.Scale, cy - t.Scale*cy + t.TranslateY,
	}
}

// Compute returns the transform for a zoom level and a cursor position
// in normalized [0,1] frame coordinates. A level of 1 or below
// disables zooming and yields the identity transform.
func Compute(level float64, cursor f64.Vec2, width, height float64) Transform {
	if level <= 1 {
		return Transform{Scale: 1}
	}
	// After scaling about the center, shift so the cursor pixel lands
	// on the center: t = level * (center - cursor).
	tx := level * (width/2 - cursor[0]*width)
	ty := level * (height/2 - cursor[1]*height)
	return Transform{Scale: level, TranslateX: tx, TranslateY: ty}
}
