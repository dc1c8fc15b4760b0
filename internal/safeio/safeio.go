// Package safeio reads analysis inputs (prompts, system prompts, reference
// images) confined to one directory tree.
package safeio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultMaxBytes caps a single input file; it matches the inline image
// limit of the providers.
const DefaultMaxBytes = 20 << 20

var ErrTooLarge = errors.New("safeio: file exceeds size limit")

// Inputs resolves paths against a fixed root.
type Inputs struct {
	root     string // absolute, symlinks resolved
	maxBytes int64
}

// New binds reads to root. maxBytes <= 0 selects DefaultMaxBytes.
func New(root string, maxBytes int64) (*Inputs, error) {
	if root == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New("safeio: root is not a directory")
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Inputs{root: abs, maxBytes: maxBytes}, nil
}

func (in *Inputs) Root() string { return in.root }

// ReadFile reads a regular file under the root. Relative paths are joined
// to the root; absolute paths must still resolve inside it.
func (in *Inputs) ReadFile(userPath string) ([]byte, error) {
	p, err := in.resolve(userPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("safeio: %s is a directory", userPath)
	}
	if info.Size() > in.maxBytes {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, userPath, info.Size())
	}
	b, err := io.ReadAll(io.LimitReader(f, in.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > in.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, userPath)
	}
	return b, nil
}

func (in *Inputs) resolve(userPath string) (string, error) {
	if userPath == "" {
		return "", errors.New("safeio: empty path")
	}
	clean := filepath.Clean(userPath)
	isAbs := filepath.IsAbs(clean) || (runtime.GOOS == "windows" && filepath.VolumeName(clean) != "")
	if !isAbs {
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return "", errors.New("safeio: path traversal not allowed")
		}
		clean = filepath.Join(in.root, clean)
	}
	resolved, err := filepath.EvalSymlinks(clean)
	if err != nil {
		return "", err
	}
	if !within(resolved, in.root) {
		return "", fmt.Errorf("safeio: %s resolves outside %s", userPath, in.root)
	}
	return resolved, nil
}

func within(path, root string) bool {
	path, root = filepath.Clean(path), filepath.Clean(root)
	if runtime.GOOS == "windows" {
		path, root = strings.ToLower(path), strings.ToLower(root)
	}
	if path == root {
		return true
	}
	sep := string(os.PathSeparator)
	return strings.HasPrefix(path+sep, strings.TrimSuffix(root, sep)+sep)
}
