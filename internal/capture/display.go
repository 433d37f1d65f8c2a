package capture

import (
	"os/exec"
	"regexp"
	"runtime"
	"strconv"

	"github.com/reelcap/reelcap/internal/util"
)

const (
	defaultDisplayWidth  = 1920
	defaultDisplayHeight = 1080
)

var (
	xrandrResolution   = regexp.MustCompile(`(\d+)x(\d+)\+\d+\+\d+`)
	profilerResolution = regexp.MustCompile(`Resolution: (\d+) x (\d+)`)
)

// DetectDisplaySize probes the primary display resolution, falling
// back to 1920x1080 when no probe tool is available. Dimensions are
// rounded down to even values as required by yuv420p encoding.
func DetectDisplaySize() (int, int) {
	logger := util.GetLogger()

	var width, height int
	switch runtime.GOOS {
	case "darwin":
		width, height = probeDisplay("system_profiler", []string{"SPDisplaysDataType"}, profilerResolution)
	case "windows":
		// No reliable CLI probe; gdigrab accepts the desktop size anyway.
	default:
		width, height = probeDisplay("xrandr", []string{"--current"}, xrandrResolution)
	}

	if width <= 0 || height <= 0 {
		logger.Debug("Display probe unavailable, using default size")
		width, height = defaultDisplayWidth, defaultDisplayHeight
	}

	width &^= 1
	height &^= 1
	logger.Debug("Display size detected", "width", width, "height", height)
	return width, height
}

// probeDisplay runs a probe command and extracts the first resolution
// its output reports.
func probeDisplay(name string, args []string, pattern *regexp.Regexp) (int, int) {
	path, err := exec.LookPath(name)
	if err != nil {
		return 0, 0
	}
	out, err := exec.Command(path, args...).Output()
	if err != nil {
		return 0, 0
	}
	match := pattern.FindSubmatch(out)
	if match == nil {
		return 0, 0
	}
	width, err := strconv.Atoi(string(match[1]))
	if err != nil {
		return 0, 0
	}
	height, err := strconv.Atoi(string(match[2]))
	if err != nil {
		return 0, 0
	}
	return width, height
}
