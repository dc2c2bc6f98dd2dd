package artifact

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// FileStore keeps artifacts on the local filesystem, one directory per
// session below Root: <root>/<sessionID>/<artifactID>.
type FileStore struct {
	root string
	perm os.FileMode
}

// FileOptions configures a FileStore.
type FileOptions struct {
	// FileMode for written artifacts (default 0o644). Directories use 0o755.
	FileMode os.FileMode
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string, optFns ...func(o *FileOptions)) (*FileStore, error) {
	opts := FileOptions{FileMode: 0o644}
	for _, fn := range optFns {
		fn(&opts)
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	return &FileStore{root: abs, perm: opts.FileMode}, nil
}

// Root returns the absolute root directory.
func (f *FileStore) Root() string { return f.root }

// path resolves the file for an artifact and guarantees it stays inside the
// session directory.
func (f *FileStore) path(sessionID, artifactID string) (string, error) {
	if err := ValidateID(sessionID); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	if strings.ContainsAny(sessionID, `/\`) {
		return "", fmt.Errorf("session id: %w: %q contains a path separator", ErrInvalidID, sessionID)
	}
	if err := ValidateID(artifactID); err != nil {
		return "", err
	}

	dir := filepath.Join(f.root, sessionID)
	p := filepath.Join(dir, filepath.FromSlash(artifactID))

	rel, err := filepath.Rel(dir, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%w: %q escapes its session", ErrInvalidID, artifactID)
	}

	return p, nil
}

// Save writes the artifact atomically (temp file + rename).
func (f *FileStore) Save(ctx context.Context, sessionID, artifactID string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := f.path(sessionID, artifactID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".artifact-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Chmod(tmp.Name(), f.perm); err != nil {
		return fmt.Errorf("chmod artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("store artifact: %w", err)
	}

	return nil
}

// Get reads the artifact or returns ErrNotFound.
func (f *FileStore) Get(ctx context.Context, sessionID, artifactID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := f.path(sessionID, artifactID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// List returns the sorted artifact ids of a session (slash separated for
// nested ids). A session without artifacts yields an empty slice.
func (f *FileStore) List(ctx context.Context, sessionID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateID(sessionID); err != nil {
		return nil, fmt.Errorf("session id: %w", err)
	}

	dir := filepath.Join(f.root, sessionID)
	ids := []string{}

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".artifact-") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		ids = append(ids, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	slices.Sort(ids)
	return ids, nil
}

// Delete removes the artifact or returns ErrNotFound.
func (f *FileStore) Delete(ctx context.Context, sessionID, artifactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p, err := f.path(sessionID, artifactID)
	if err != nil {
		return err
	}

	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	return nil
}
