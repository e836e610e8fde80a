package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const metadataFile = "run.json"

// Workspace is a scratch directory owned by a single analysis run. The
// external tool runs with it as its working directory, so every file the
// tool writes lands here.
type Workspace struct {
	Path string
}

type RunMetadata struct {
	RunKey      string    `json:"run_key"`
	CreatedAt   time.Time `json:"created_at"`
	InputPath   string    `json:"input_path"`
	PValueTable string    `json:"pvalue_table"`
	Threshold   string    `json:"threshold,omitempty"`
	Command     string    `json:"command"`
}

// Create makes a new uniquely named workspace under baseDir. An empty
// baseDir means the system temporary directory.
func Create(baseDir string) (*Workspace, error) {
	if baseDir != "" {
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
		}
	}

	path, err := os.MkdirTemp(baseDir, "3seq-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	return &Workspace{Path: path}, nil
}

func Open(path string) (*Workspace, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("workspace %s does not exist", path)
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", path)
	}

	return &Workspace{Path: path}, nil
}

func (w *Workspace) File(name string) string {
	return filepath.Join(w.Path, name)
}

func (w *Workspace) Exists() bool {
	info, err := os.Stat(w.Path)
	return err == nil && info.IsDir()
}

// Remove deletes the workspace and everything in it. Removing a workspace
// that is already gone is not an error.
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.Path); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Path, err)
	}
	return nil
}

func (w *Workspace) WriteRunMetadata(meta *RunMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run metadata: %w", err)
	}

	if err := os.WriteFile(w.File(metadataFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", metadataFile, err)
	}

	return nil
}

func (w *Workspace) ReadRunMetadata() (*RunMetadata, error) {
	data, err := os.ReadFile(w.File(metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no run metadata in %s", w.Path)
		}
		return nil, fmt.Errorf("failed to read run metadata: %w", err)
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse run metadata: %w", err)
	}

	return &meta, nil
}
