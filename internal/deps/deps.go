// Package deps checks the external tools reelcap shells out to and
// explains how to install the ones that are missing.
package deps

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Tool describes one external dependency.
type Tool struct {
	Name    string
	Path    string
	Version string
	Found   bool
}

// installHints maps a tool to per-platform install instructions.
var installHints = map[string]map[string]string{
	"ffmpeg": {
		"darwin":  "brew install ffmpeg",
		"linux":   "sudo apt-get install ffmpeg",
		"windows": "winget install ffmpeg (or download from https://ffmpeg.org/download.html)",
	},
	"ffprobe": {
		"darwin":  "brew install ffmpeg (includes ffprobe)",
		"linux":   "sudo apt-get install ffmpeg (includes ffprobe)",
		"windows": "winget install ffmpeg (includes ffprobe)",
	},
}

// InstallHint returns the install instruction for a tool on the
// current platform.
func InstallHint(name string) string {
	hints, ok := installHints[name]
	if !ok {
		return fmt.Sprintf("install %s and place it on PATH", name)
	}
	if hint, ok := hints[runtime.GOOS]; ok {
		return hint
	}
	return hints["linux"]
}

// Check probes one tool: PATH resolution plus a -version run, whose
// first line is kept for display.
func Check(name, configuredPath string) Tool {
	tool := Tool{Name: name, Path: configuredPath}
	if tool.Path == "" {
		tool.Path = name
	}

	resolved, err := exec.LookPath(tool.Path)
	if err != nil {
		tool.Found = false
		return tool
	}
	tool.Path = resolved
	tool.Found = true

	out, err := exec.Command(resolved, "-version").Output()
	if err == nil {
		if line, _, ok := strings.Cut(string(out), "\n"); ok {
			tool.Version = parseVersionLine(line)
		}
	}
	return tool
}

// parseVersionLine extracts the short version from ffmpeg's banner,
// e.g. "ffmpeg version 6.1.1 Copyright ..." -> "6.1.1".
func parseVersionLine(line string) string {
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return strings.TrimSpace(line)
}

// Require returns an error with an install hint when the tool is not
// usable. Record and export call this before spawning anything.
func Require(name, configuredPath string) error {
	tool := Check(name, configuredPath)
	if !tool.Found {
		return fmt.Errorf("%s not found. Install it with: %s", name, InstallHint(name))
	}
	return nil
}
