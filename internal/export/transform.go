package export

import (
	"fmt"
	"math"
	"strings"
)

// DefaultOverscan biases the fit toward a slight crop instead of
// letterboxing, so exports always fill the target frame edge to edge.
const DefaultOverscan = 1.05

// FitTransform places a source inside a target canvas: scale first,
// then translate so the scaled source is centered. Negative offsets
// mean the scaled source overflows the canvas on that axis and is
// cropped evenly on both sides.
type FitTransform struct {
	Scale   float64
	OffsetX float64
	OffsetY float64
}

// ComputeFit returns the cover-fit transform for a source of
// srcW x srcH rendered into a dstW x dstH canvas. The scale factor is
// the larger of the two axis ratios times overscan, which guarantees
// both axes are filled.
func ComputeFit(srcW, srcH, dstW, dstH int, overscan float64) (FitTransform, error) {
	if srcW <= 0 || srcH <= 0 {
		return FitTransform{}, fmt.Errorf("invalid source dimensions %dx%d", srcW, srcH)
	}
	if dstW <= 0 || dstH <= 0 {
		return FitTransform{}, fmt.Errorf("invalid target dimensions %dx%d", dstW, dstH)
	}
	if overscan <= 0 {
		overscan = DefaultOverscan
	}
	if overscan < 1 {
		return FitTransform{}, fmt.Errorf("overscan %v would leave the canvas uncovered", overscan)
	}

	scale := math.Max(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH)) * overscan
	return FitTransform{
		Scale:   scale,
		OffsetX: (float64(dstW) - float64(srcW)*scale) / 2,
		OffsetY: (float64(dstH) - float64(srcH)*scale) / 2,
	}, nil
}

// Filtergraph renders the transform as an ffmpeg filter chain: scale
// the source up, then crop the centered target window out of it. The
// intermediate size is rounded to even values as 4:2:0 output
// requires; the crop window position absorbs the rounding.
func (t FitTransform) Filtergraph(srcW, srcH int, dst Dimensions) string {
	scaledW := int(math.Round(float64(srcW) * t.Scale))
	scaledH := int(math.Round(float64(srcH) * t.Scale))
	if scaledW < dst.Width {
		scaledW = dst.Width
	}
	if scaledH < dst.Height {
		scaledH = dst.Height
	}
	scaledW += scaledW % 2
	scaledH += scaledH % 2
	cropX := (scaledW - dst.Width) / 2
	cropY := (scaledH - dst.Height) / 2
	return fmt.Sprintf("scale=%d:%d,crop=%d:%d:%d:%d",
		scaledW, scaledH, dst.Width, dst.Height, cropX, cropY)
}

// cropRect is a pixel region of the source frame.
type cropRect struct {
	W, H, X, Y int
}

// zoomCrop converts a zoom level and a normalized focus point into the
// source region that fills the frame at that level. The region is
// even-sized and clamped inside the frame, so a focus point near an
// edge slides the window instead of sampling outside the source.
func zoomCrop(srcW, srcH int, zoom, focusX, focusY float64) cropRect {
	if zoom < 1 {
		zoom = 1
	}
	w := int(float64(srcW)/zoom) &^ 1
	h := int(float64(srcH)/zoom) &^ 1
	if w < 2 {
		w = 2
	}
	if h < 2 {
		h = 2
	}
	x := int(clampUnit(focusX)*float64(srcW)) - w/2
	y := int(clampUnit(focusY)*float64(srcH)) - h/2
	x = clampInt(x, 0, srcW-w)
	y = clampInt(y, 0, srcH-h)
	return cropRect{W: w, H: h, X: x, Y: y}
}

// buildFiltergraph assembles the full video filter chain for one
// export: an optional zoom crop, the cover fit into the target canvas,
// and a pixel format pin for player compatibility.
func buildFiltergraph(info *SourceInfo, target Dimensions, opts Options) (string, error) {
	srcW, srcH := info.DisplayDimensions()
	var stages []string
	if opts.Zoom > 1 {
		crop := zoomCrop(srcW, srcH, opts.Zoom, opts.FocusX, opts.FocusY)
		stages = append(stages, fmt.Sprintf("crop=%d:%d:%d:%d", crop.W, crop.H, crop.X, crop.Y))
		srcW, srcH = crop.W, crop.H
	}
	fit, err := ComputeFit(srcW, srcH, target.Width, target.Height, opts.Overscan)
	if err != nil {
		return "", err
	}
	stages = append(stages, fit.Filtergraph(srcW, srcH, target))
	stages = append(stages, "format=yuv420p")
	return strings.Join(stages, ","), nil
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
