package export

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFitCoversTargetOnBothAxes(t *testing.T) {
	// 16:9 source into a 9:16 canvas: the scale must cover the
	// taller axis, so it is at least max(1080/1920, 1920/1080).
	fit, err := ComputeFit(1920, 1080, 1080, 1920, DefaultOverscan)
	require.NoError(t, err)

	minScale := math.Max(1080.0/1920.0, 1920.0/1080.0)
	assert.GreaterOrEqual(t, fit.Scale, minScale)

	// Scaled source covers the canvas on both axes.
	assert.GreaterOrEqual(t, 1920*fit.Scale, 1080.0)
	assert.GreaterOrEqual(t, 1080*fit.Scale, 1920.0)
}

func TestComputeFitCentersOverflowSymmetrically(t *testing.T) {
	fit, err := ComputeFit(1920, 1080, 1080, 1920, DefaultOverscan)
	require.NoError(t, err)

	// Offsets place the scaled source symmetrically: each side
	// overflows by the same amount.
	assert.InDelta(t, (1080-1920*fit.Scale)/2, fit.OffsetX, 1e-9)
	assert.InDelta(t, (1920-1080*fit.Scale)/2, fit.OffsetY, 1e-9)
	assert.LessOrEqual(t, fit.OffsetX, 0.0)
	assert.LessOrEqual(t, fit.OffsetY, 0.0)
}

func TestComputeFitSameAspectOnlyOverscans(t *testing.T) {
	fit, err := ComputeFit(1920, 1080, 1920, 1080, 1.05)
	require.NoError(t, err)
	assert.InDelta(t, 1.05, fit.Scale, 1e-9)
}

func TestComputeFitRejectsUncoveringOverscan(t *testing.T) {
	_, err := ComputeFit(1920, 1080, 1280, 720, 0.5)
	assert.Error(t, err)
}

func TestComputeFitRejectsInvalidDimensions(t *testing.T) {
	_, err := ComputeFit(0, 1080, 1280, 720, 1.05)
	assert.Error(t, err)
	_, err = ComputeFit(1920, 1080, 1280, 0, 1.05)
	assert.Error(t, err)
}

func TestFiltergraphWindowInsideScaledSource(t *testing.T) {
	fit, err := ComputeFit(1920, 1080, 1080, 1920, DefaultOverscan)
	require.NoError(t, err)

	graph := fit.Filtergraph(1920, 1080, Dimensions{Width: 1080, Height: 1920})
	assert.Contains(t, graph, "crop=1080:1920:")
	assert.Contains(t, graph, "scale=")
}

func TestZoomCropCenteredFocus(t *testing.T) {
	crop := zoomCrop(1920, 1080, 2, 0.5, 0.5)
	assert.Equal(t, 960, crop.W)
	assert.Equal(t, 540, crop.H)
	assert.Equal(t, 480, crop.X)
	assert.Equal(t, 270, crop.Y)
}

func TestZoomCropClampsAtEdges(t *testing.T) {
	crop := zoomCrop(1920, 1080, 2, 0.0, 1.0)
	assert.Equal(t, 0, crop.X)
	assert.Equal(t, 1080-crop.H, crop.Y)

	// Even dimensions for 4:2:0.
	assert.Zero(t, crop.W%2)
	assert.Zero(t, crop.H%2)
}

func TestBuildFiltergraphWithZoomStage(t *testing.T) {
	info := &SourceInfo{Width: 1920, Height: 1080, DurationSeconds: 10}
	graph, err := buildFiltergraph(info, Dimensions{Width: 1080, Height: 1920}, Options{Zoom: 2, FocusX: 0.5, FocusY: 0.5})
	require.NoError(t, err)
	assert.Contains(t, graph, "crop=960:540:480:270")
	assert.Contains(t, graph, "format=yuv420p")
}
