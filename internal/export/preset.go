package export

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vishalkuo/bimap"
)

// Dimensions is a target canvas size in pixels.
type Dimensions struct {
	Width  int
	Height int
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// presets maps preset names to canvas dimensions in both directions,
// so exports can be requested by name and named by their dimensions.
var presets = func() *bimap.BiMap[string, Dimensions] {
	m := bimap.NewBiMap[string, Dimensions]()
	m.Insert("standard", Dimensions{Width: 1920, Height: 1080})
	m.Insert("mobile", Dimensions{Width: 1080, Height: 1920})
	return m
}()

// PresetDimensions resolves a preset name to its canvas.
func PresetDimensions(name string) (Dimensions, bool) {
	return presets.Get(strings.ToLower(strings.TrimSpace(name)))
}

// PresetName reports the preset matching the given canvas, if any.
func PresetName(d Dimensions) (string, bool) {
	return presets.GetInverse(d)
}

// PresetNames lists the known presets for help and error output.
func PresetNames() []string {
	names := make([]string, 0, presets.Size())
	for name := range presets.GetForwardMap() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveTarget returns the canvas for a preset name or for explicit
// dimensions when no preset is given. Explicit dimensions are rounded
// down to even values, as 4:2:0 chroma subsampling requires.
func ResolveTarget(preset string, width, height int) (Dimensions, error) {
	if preset != "" {
		d, ok := PresetDimensions(preset)
		if !ok {
			return Dimensions{}, fmt.Errorf("unknown preset %q (known presets: %s)",
				preset, strings.Join(PresetNames(), ", "))
		}
		return d, nil
	}
	if width <= 0 || height <= 0 {
		return Dimensions{}, fmt.Errorf("target dimensions must be positive, got %dx%d", width, height)
	}
	return Dimensions{Width: width &^ 1, Height: height &^ 1}, nil
}

// TargetLabel names a target for output files: the preset name when
// the canvas matches one, otherwise WxH.
func TargetLabel(d Dimensions) string {
	if name, ok := PresetName(d); ok {
		return name
	}
	return d.String()
}

// DestinationPath derives the default export path: next to the source,
// with the target label appended to the stem.
func DestinationPath(sourcePath string, target Dimensions) string {
	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	name := fmt.Sprintf("%s-%s.mp4", stem, TargetLabel(target))
	return filepath.Join(filepath.Dir(sourcePath), name)
}
