// Package recorder persists a run's captures to disk: one PNG per step plus an
// ordered metadata.json index, all under <base>/workflow_<run id>/.
package recorder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/walkthrough/api/schemas"
)

// MetadataFile is the name of the index written next to the screenshots.
const MetadataFile = "metadata.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Workflow owns the files of one run. Sequence numbers start at 1 and are
// only consumed by captures that were written successfully.
type Workflow struct {
	dir     string
	mu      sync.Mutex
	seq     int
	entries []schemas.Observation
	now     func() time.Time
}

// New creates the directory for runID under baseDir.
func New(baseDir, runID string) (*Workflow, error) {
	dir := filepath.Join(baseDir, "workflow_"+runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workflow directory %s: %w", dir, err)
	}
	return &Workflow{dir: dir, now: time.Now}, nil
}

// Dir returns the workflow directory.
func (w *Workflow) Dir() string { return w.dir }

// FileName returns the screenshot file name for a sequence number and label.
func FileName(seq int, label string) string {
	return fmt.Sprintf("step_%03d_%s.png", seq, unsafeLabelChars.ReplaceAllString(label, "_"))
}

// Record writes image as the next step and appends it to the index.
func (w *Workflow) Record(label, url string, image []byte, metadata map[string]interface{}) (schemas.Observation, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	seq := w.seq + 1
	path := filepath.Join(w.dir, FileName(seq, label))
	if err := os.WriteFile(path, image, 0o644); err != nil {
		return schemas.Observation{}, fmt.Errorf("failed to write screenshot: %w", err)
	}

	meta := make(map[string]interface{}, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	obs := schemas.Observation{
		Sequence:       seq,
		Label:          label,
		ScreenshotPath: path,
		URL:            url,
		CapturedAt:     w.now().UTC(),
		Metadata:       meta,
	}

	entries := append(w.entries, obs)
	if err := writeIndex(w.dir, entries); err != nil {
		_ = os.Remove(path)
		return schemas.Observation{}, err
	}

	w.entries = entries
	w.seq = seq
	return obs, nil
}

// Observations returns a copy of everything recorded so far.
func (w *Workflow) Observations() []schemas.Observation {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]schemas.Observation, len(w.entries))
	copy(out, w.entries)
	return out
}

// writeIndex replaces metadata.json through a rename so readers never see a partial file.
func writeIndex(dir string, entries []schemas.Observation) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode workflow metadata: %w", err)
	}
	tmp := filepath.Join(dir, MetadataFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow metadata: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, MetadataFile)); err != nil {
		return fmt.Errorf("failed to finalize workflow metadata: %w", err)
	}
	return nil
}

// Load reads the index of an existing workflow directory.
func Load(dir string) ([]schemas.Observation, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("no %s in %s: %w", MetadataFile, dir, err)
		}
		return nil, fmt.Errorf("failed to read workflow metadata: %w", err)
	}
	var entries []schemas.Observation
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode workflow metadata: %w", err)
	}
	return entries, nil
}
