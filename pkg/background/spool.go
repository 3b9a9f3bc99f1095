package background

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MarkerSuffix is appended to the queue name to form a marker file name.
const MarkerSuffix = ".wake"

// Spool is an Agent that records registrations as marker files.
type Spool struct {
	dir string
}

var _ Agent = (*Spool)(nil)

// NewSpool creates a Spool rooted at dir. The directory is created on the
// first registration.
func NewSpool(dir string) *Spool {
	return &Spool{dir: dir}
}

// Dir returns the spool directory.
func (s *Spool) Dir() string {
	return s.dir
}

// RegisterForLaterRetry writes the marker for queueName. Registering a queue
// that already has a marker refreshes it.
func (s *Spool) RegisterForLaterRetry(ctx context.Context, queueName string) error {
	if err := validQueueName(queueName); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create spool dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+queueName+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create marker: %w", err)
	}
	tmpPath := tmp.Name()

	stamp := time.Now().UTC().Format(time.RFC3339Nano) + "\n"
	if _, err := tmp.WriteString(stamp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close marker: %w", err)
	}

	if err := os.Rename(tmpPath, s.markerPath(queueName)); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("install marker: %w", err)
	}
	return nil
}

// Registered reports whether queueName has a pending marker.
func (s *Spool) Registered(queueName string) bool {
	_, err := os.Stat(s.markerPath(queueName))
	return err == nil
}

// Pending lists the queue names with markers, sorted.
func (s *Spool) Pending() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if name, ok := strings.CutSuffix(e.Name(), MarkerSuffix); ok && name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Consume removes the marker for queueName. A missing marker is not an error.
func (s *Spool) Consume(queueName string) error {
	err := os.Remove(s.markerPath(queueName))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Spool) consumeIfUnchanged(queueName string, modTime time.Time) error {
	info, err := os.Stat(s.markerPath(queueName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if !info.ModTime().Equal(modTime) {
		return nil
	}
	return s.Consume(queueName)
}

func (s *Spool) markerPath(queueName string) string {
	return filepath.Join(s.dir, queueName+MarkerSuffix)
}

func validQueueName(name string) error {
	if name == "" {
		return errors.New("background: queue name is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("background: invalid queue name %q", name)
	}
	return nil
}
