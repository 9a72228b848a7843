package executor

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/musubi-dev/musubi/pkg/domain/model"
	"github.com/musubi-dev/musubi/pkg/domain/types"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// writeFile creates parent directories and overwrites path with content.
// Create and edit share these semantics; only the result message differs.
func (e *Executor) writeFile(t types.ActionType, d *model.FileDetails) (string, error) {
	path, err := e.resolve(d.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return "", goerr.Wrap(err, "failed to create parent directory", goerr.V(PathKey, path))
	}

	// #nosec G306 - files written on behalf of the user keep regular permissions
	if err := os.WriteFile(path, []byte(*d.Content), filePerm); err != nil {
		return "", goerr.Wrap(err, "failed to write file", goerr.V(PathKey, path))
	}

	verb := "created"
	if t == types.ActionTypeFileEdit {
		verb = "updated"
	}
	return "File " + verb + ": " + d.Path, nil
}

func (e *Executor) deleteFile(d *model.FileDetails) (string, error) {
	path, err := e.resolve(d.Path)
	if err != nil {
		return "", err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(ErrFileNotFound, "cannot delete missing file", goerr.V(PathKey, d.Path))
		}
		return "", goerr.Wrap(err, "failed to delete file", goerr.V(PathKey, path))
	}

	return "File deleted: " + d.Path, nil
}

// ReadFile returns the content of path, subject to the same root confinement as writes
func (e *Executor) ReadFile(path string) (string, error) {
	resolved, err := e.resolve(path)
	if err != nil {
		return "", err
	}

	// #nosec G304 - path is confined by resolve
	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", goerr.Wrap(ErrFileNotFound, "cannot read missing file", goerr.V(PathKey, path))
		}
		return "", goerr.Wrap(err, "failed to read file", goerr.V(PathKey, path))
	}
	return string(data), nil
}

// FileExists reports whether path names an existing regular file inside the root
func (e *Executor) FileExists(path string) bool {
	resolved, err := e.resolve(path)
	if err != nil {
		return false
	}
	info, err := os.Stat(resolved)
	return err == nil && info.Mode().IsRegular()
}

// resolve returns an absolute, cleaned path. When a workspace root is
// configured, the path must stay inside it; relative paths are taken from root.
func (e *Executor) resolve(path string) (string, error) {
	if e.root == "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", goerr.Wrap(err, "invalid path", goerr.V(PathKey, path))
		}
		return abs, nil
	}

	root, err := filepath.Abs(e.root)
	if err != nil {
		return "", goerr.Wrap(err, "invalid workspace root", goerr.V(PathKey, e.root))
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	rel, err := filepath.Rel(root, candidate)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", goerr.Wrap(ErrPathOutsideRoot, "path escapes workspace root",
			goerr.V(PathKey, path), goerr.V("root", root))
	}
	return candidate, nil
}
