package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"github.com/reelcap/reelcap/internal/util"
)

// Entry kinds.
const (
	KindRecording = "recording"
	KindExport    = "export"
)

// Entry is one finished artifact tracked by the catalog.
type Entry struct {
	ID       string    `toml:"id" json:"id"`
	Kind     string    `toml:"kind" json:"kind"`
	Path     string    `toml:"path" json:"path"`
	Created  time.Time `toml:"created" json:"created"`
	Duration float64   `toml:"duration,omitempty" json:"duration,omitempty"`
	Width    int       `toml:"width,omitempty" json:"width,omitempty"`
	Height   int       `toml:"height,omitempty" json:"height,omitempty"`
	Bytes    int64     `toml:"bytes" json:"bytes"`
}

// catalogFile is the on-disk TOML shape.
type catalogFile struct {
	Entries []Entry `toml:"entries"`
}

// Catalog tracks finished recordings and exports in a TOML file. All
// mutations re-read the file under a file lock, so concurrent reelcap
// processes (a recording CLI and a serve daemon, say) never clobber
// each other's entries.
type Catalog struct {
	path     string
	lockPath string
	minBytes int64
}

// NewCatalog opens a catalog at path. minBytes is the size below which
// Prune treats a file as a corrupt stray.
func NewCatalog(path string, minBytes int64) *Catalog {
	if minBytes <= 0 {
		minBytes = 1024
	}
	return &Catalog{
		path:     path,
		lockPath: path + ".lock",
		minBytes: minBytes,
	}
}

// withLock runs fn while holding the catalog file lock.
func (c *Catalog) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("creating catalog directory: %w", err)
	}
	lock := flock.New(c.lockPath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking catalog: %w", err)
	}
	defer lock.Unlock()
	return fn()
}

func (c *Catalog) load() (catalogFile, error) {
	var cf catalogFile
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return cf, nil
	}
	if err != nil {
		return cf, fmt.Errorf("reading catalog: %w", err)
	}
	if len(data) == 0 {
		return cf, nil
	}
	if err := toml.Unmarshal(data, &cf); err != nil {
		return cf, fmt.Errorf("parsing catalog: %w", err)
	}
	return cf, nil
}

func (c *Catalog) save(cf catalogFile) error {
	data, err := toml.Marshal(cf)
	if err != nil {
		return fmt.Errorf("serializing catalog: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("writing catalog: %w", err)
	}
	return nil
}

// Add records an entry, replacing any previous entry for the same
// path.
func (c *Catalog) Add(entry Entry) error {
	if entry.Path == "" {
		return fmt.Errorf("entry path required")
	}
	if entry.Created.IsZero() {
		entry.Created = time.Now()
	}
	return c.withLock(func() error {
		cf, err := c.load()
		if err != nil {
			return err
		}
		kept := cf.Entries[:0]
		for _, e := range cf.Entries {
			if e.Path != entry.Path {
				kept = append(kept, e)
			}
		}
		cf.Entries = append(kept, entry)
		return c.save(cf)
	})
}

// Entries returns all entries, newest first.
func (c *Catalog) Entries() ([]Entry, error) {
	var entries []Entry
	err := c.withLock(func() error {
		cf, err := c.load()
		if err != nil {
			return err
		}
		entries = cf.Entries
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Created.After(entries[j].Created)
	})
	return entries, nil
}

// Prune drops entries whose files no longer exist and deletes files
// below the minimum size. It returns the removed entries. With dryRun
// set, nothing is modified and the return value reports what would
// go.
func (c *Catalog) Prune(dryRun bool) ([]Entry, error) {
	var removed []Entry
	err := c.withLock(func() error {
		cf, err := c.load()
		if err != nil {
			return err
		}

		var kept []Entry
		for _, e := range cf.Entries {
			info, err := os.Stat(e.Path)
			switch {
			case os.IsNotExist(err):
				removed = append(removed, e)
			case err != nil:
				kept = append(kept, e)
			case info.Size() < c.minBytes:
				removed = append(removed, e)
				if !dryRun {
					if rmErr := os.Remove(e.Path); rmErr != nil {
						util.GetLogger().Warn("Failed to delete undersized file", "path", e.Path, "error", rmErr)
					}
				}
			default:
				kept = append(kept, e)
			}
		}

		if dryRun || len(removed) == 0 {
			return nil
		}
		cf.Entries = kept
		return c.save(cf)
	})
	if err != nil {
		return nil, err
	}
	return removed, nil
}

// List renders the catalog to stdout in the requested format
// ("table" or "json").
func (c *Catalog) List(format string) error {
	entries, err := c.Entries()
	if err != nil {
		return err
	}

	if format == "json" {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(entries) == 0 {
		fmt.Println("No recordings found")
		return nil
	}
	listTable(entries)
	return nil
}

func listTable(entries []Entry) {
	maxID, maxKind, maxSize := len("ID"), len("KIND"), len("SIZE")
	for _, e := range entries {
		if len(e.ID) > maxID {
			maxID = len(e.ID)
		}
		if len(e.Kind) > maxKind {
			maxKind = len(e.Kind)
		}
		if len(formatBytes(e.Bytes)) > maxSize {
			maxSize = len(formatBytes(e.Bytes))
		}
	}
	maxID += 2
	maxKind += 2
	maxSize += 2

	fmt.Printf("%-*s %-*s %-10s %-*s %-20s %s\n",
		maxID, "ID", maxKind, "KIND", "DURATION", maxSize, "SIZE", "CREATED", "PATH")
	fmt.Println(strings.Repeat("-", maxID+maxKind+maxSize+42))
	for _, e := range entries {
		fmt.Printf("%-*s %-*s %-10s %-*s %-20s %s\n",
			maxID, e.ID,
			maxKind, e.Kind,
			formatDuration(e.Duration),
			maxSize, formatBytes(e.Bytes),
			e.Created.Format("2006-01-02 15:04:05"),
			e.Path)
	}
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	return d.String()
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
