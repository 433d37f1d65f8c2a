package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dchest/uniuri"
	"github.com/pkg/errors"
)

// OutputExt is the container extension for recordings.
const OutputExt = ".mp4"

// Session identifies one recording attempt: a unique id, the output
// path it writes to, and when it began. Timestamp origin and counters
// live in the Synchronizer and ContainerWriter, which the pipeline
// recreates on a cold restart while the session identity (and output
// path) stays fixed.
type Session struct {
	ID         string
	OutputPath string
	StartedAt  time.Time
}

// NewSession creates the recordings directory if needed and derives
// the output path. An empty name selects the timestamped default.
func NewSession(dir, name string, now time.Time) (*Session, error) {
	if dir == "" {
		return nil, fmt.Errorf("recordings directory not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating recordings directory")
	}

	id := fmt.Sprintf("rec-%s-%s", now.Format("20060102-150405"), strings.ToLower(uniuri.NewLen(6)))
	stem := id
	if name != "" {
		stem = sanitizeStem(name)
	}

	return &Session{
		ID:         id,
		OutputPath: filepath.Join(dir, stem+OutputExt),
		StartedAt:  now,
	}, nil
}

// sanitizeStem reduces a user-provided name to a bare file stem.
func sanitizeStem(name string) string {
	stem := filepath.Base(strings.TrimSpace(name))
	stem = strings.TrimSuffix(stem, OutputExt)
	if stem == "" || stem == "." || stem == string(filepath.Separator) {
		return "recording"
	}
	return stem
}
