package wizard

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// DefaultLocation is the wizard location used when none is stored.
const DefaultLocation = "/onboarding/form"

// StepParam is the query parameter carrying the step number.
const StepParam = "step"

// Indicator is a restorable external record of the current step, such as the
// step parameter of a shareable link.
type Indicator interface {
	// StepValue returns the raw step value, if one is present.
	StepValue() (string, bool)
	// Publish records step. Publishing an unchanged step is harmless.
	Publish(step int) error
}

// LocationIndicator keeps the step in the query of an in-memory location string.
type LocationIndicator struct {
	mu       sync.Mutex
	location string
}

// NewLocationIndicator returns an indicator over location. An empty location
// means DefaultLocation.
func NewLocationIndicator(location string) *LocationIndicator {
	if location == "" {
		location = DefaultLocation
	}
	return &LocationIndicator{location: location}
}

// StepValue implements Indicator.
func (l *LocationIndicator) StepValue() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return stepFromLocation(l.location)
}

// Publish implements Indicator.
func (l *LocationIndicator) Publish(step int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	loc, err := withStep(l.location, step)
	if err != nil {
		return err
	}
	l.location = loc
	return nil
}

// Location returns the current location string.
func (l *LocationIndicator) Location() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.location
}

// IndicatorFileName is the file FileIndicator keeps in the state directory.
const IndicatorFileName = "onboarding.location"

// FileIndicator persists the wizard location in a file so a restarted host
// resumes at the same step.
type FileIndicator struct {
	mu   sync.Mutex
	path string
}

// NewFileIndicator returns an indicator stored in stateDir, creating the directory.
func NewFileIndicator(stateDir string) (*FileIndicator, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", stateDir, err)
	}
	return &FileIndicator{path: filepath.Join(stateDir, IndicatorFileName)}, nil
}

// Path returns the backing file path.
func (f *FileIndicator) Path() string {
	return f.path
}

// StepValue implements Indicator. A missing or unreadable file has no value.
func (f *FileIndicator) StepValue() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, err := f.read()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("FileIndicator.StepValue: failed to read location", "path", f.path, "error", err)
		}
		return "", false
	}
	return stepFromLocation(loc)
}

// Publish implements Indicator. The file is replaced atomically.
func (f *FileIndicator) Publish(step int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	loc, err := f.read()
	if err != nil {
		loc = DefaultLocation
	}
	loc, err = withStep(loc, step)
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(loc+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write step indicator %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace step indicator %s: %w", f.path, err)
	}
	return nil
}

// Clear removes the stored location.
func (f *FileIndicator) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove step indicator %s: %w", f.path, err)
	}
	return nil
}

func (f *FileIndicator) read() (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", err
	}
	loc := strings.TrimSpace(string(data))
	if loc == "" {
		return DefaultLocation, nil
	}
	return loc, nil
}

func stepFromLocation(location string) (string, bool) {
	u, err := url.Parse(location)
	if err != nil {
		return "", false
	}
	q := u.Query()
	if !q.Has(StepParam) {
		return "", false
	}
	return q.Get(StepParam), true
}

func withStep(location string, step int) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("failed to parse wizard location %q: %w", location, err)
	}
	q := u.Query()
	q.Set(StepParam, strconv.Itoa(step))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
