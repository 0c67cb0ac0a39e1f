package staging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalArea stages artifacts in a private temporary directory.
type LocalArea struct {
	dir string
}

// NewLocalArea creates a fresh directory under parent (the OS temp dir when
// parent is empty).
func NewLocalArea(parent, runID string) (*LocalArea, error) {
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return nil, fmt.Errorf("NewLocalArea: create parent %s: %w", parent, err)
		}
	}
	dir, err := os.MkdirTemp(parent, "bsa-"+runID+"-")
	if err != nil {
		return nil, fmt.Errorf("NewLocalArea: create dir: %w", err)
	}
	return &LocalArea{dir: dir}, nil
}

// LocalFactory returns a Factory that creates LocalAreas under parent.
func LocalFactory(parent string) Factory {
	return func(_ context.Context, runID string) (Area, error) {
		return NewLocalArea(parent, runID)
	}
}

func (a *LocalArea) Put(ctx context.Context, name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(a.dir, name), data, 0o600); err != nil {
		return fmt.Errorf("LocalArea.Put: write %s: %w", name, err)
	}
	return nil
}

func (a *LocalArea) Get(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(a.dir, name))
	if err != nil {
		return nil, fmt.Errorf("LocalArea.Get: read %s: %w", name, err)
	}
	return data, nil
}

func (a *LocalArea) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("LocalArea.List: read dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Cleanup removes the directory and everything in it. It ignores ctx so a
// cancelled run is still reclaimed.
func (a *LocalArea) Cleanup(_ context.Context) error {
	if err := os.RemoveAll(a.dir); err != nil {
		return fmt.Errorf("LocalArea.Cleanup: remove %s: %w", a.dir, err)
	}
	return nil
}

func (a *LocalArea) Location() string {
	return a.dir
}
