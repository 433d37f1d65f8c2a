package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Set default values
	v.SetDefault("reelcap.home", filepath.Join(xdg.Home, ".reelcap"))
	v.SetDefault("recordings.dir", defaultRecordingsDir())

	v.SetDefault("server.port", 29777)

	// Capture input selection. Empty means platform default (primary display,
	// default audio device).
	v.SetDefault("capture.display", "")
	v.SetDefault("capture.audio_device", "")
	v.SetDefault("capture.audio", true)

	v.SetDefault("zoom.smoothing", 0.25)
	v.SetDefault("export.overscan", 1.05)

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffprobe.path", "ffprobe")

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("reelcap.home", "REELCAP_HOME")
	v.BindEnv("recordings.dir", "REELCAP_RECORDINGS_DIR")
	v.BindEnv("server.port", "REELCAP_SERVER_PORT")
	v.BindEnv("capture.display", "REELCAP_DISPLAY")
	v.BindEnv("capture.audio_device", "REELCAP_AUDIO_DEVICE")
	v.BindEnv("capture.audio", "REELCAP_AUDIO")
	v.BindEnv("zoom.smoothing", "REELCAP_ZOOM_SMOOTHING")
	v.BindEnv("export.overscan", "REELCAP_EXPORT_OVERSCAN")
	v.BindEnv("ffmpeg.path", "REELCAP_FFMPEG")
	v.BindEnv("ffprobe.path", "REELCAP_FFPROBE")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.reelcap",
		"/etc/reelcap",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

// defaultRecordingsDir picks the user's Videos directory when the desktop
// environment reports one, otherwise falls back under the home directory.
func defaultRecordingsDir() string {
	if xdg.UserDirs.Videos != "" {
		return filepath.Join(xdg.UserDirs.Videos, "Reelcap")
	}
	return filepath.Join(xdg.Home, "Reelcap")
}

// GetHome returns the reelcap state directory (catalog, locks, config).
func GetHome() string {
	return v.GetString("reelcap.home")
}

// GetRecordingsDir returns the directory finished recordings are written to.
func GetRecordingsDir() string {
	return v.GetString("recordings.dir")
}

// GetServerPort returns the local control server port.
func GetServerPort() int {
	return v.GetInt("server.port")
}

// GetCaptureDisplay returns the configured capture display identifier.
func GetCaptureDisplay() string {
	return v.GetString("capture.display")
}

// GetCaptureAudioDevice returns the configured audio capture device.
func GetCaptureAudioDevice() string {
	return v.GetString("capture.audio_device")
}

// GetCaptureAudio reports whether audio capture is enabled.
func GetCaptureAudio() bool {
	return v.GetBool("capture.audio")
}

// GetZoomSmoothing returns the cursor smoothing factor in (0,1].
func GetZoomSmoothing() float64 {
	return v.GetFloat64("zoom.smoothing")
}

// GetExportOverscan returns the export overscan factor (>1 crops slightly).
func GetExportOverscan() float64 {
	return v.GetFloat64("export.overscan")
}

// GetFFmpegPath returns the ffmpeg binary path or name.
func GetFFmpegPath() string {
	return v.GetString("ffmpeg.path")
}

// GetFFprobePath returns the ffprobe binary path or name.
func GetFFprobePath() string {
	return v.GetString("ffprobe.path")
}

// GetCatalogPath returns the library catalog file path.
func GetCatalogPath() string {
	return filepath.Join(GetHome(), "catalog.toml")
}

// GetRecordLockPath returns the lock file guarding the single live recording.
func GetRecordLockPath() string {
	return filepath.Join(GetHome(), "record.lock")
}
