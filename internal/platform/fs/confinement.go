// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fs holds media-root confinement and best-effort removal helpers.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsafePath is returned for paths that are rejected before touching the disk.
	ErrUnsafePath = errors.New("unsafe path")
	// ErrOutsideRoot is returned when a path resolves outside its root.
	ErrOutsideRoot = errors.New("path escapes root")
)

// ConfineRelPath joins relTarget onto root and verifies that the physical
// result stays under root, following symlinks. relTarget must be relative
// and must not contain backslashes.
func ConfineRelPath(root, relTarget string) (string, error) {
	if strings.Contains(relTarget, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrUnsafePath, relTarget)
	}
	cleanRel := filepath.Clean(relTarget)
	if filepath.IsAbs(cleanRel) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, relTarget)
	}
	if escapes(cleanRel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, relTarget)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkUnder(realRoot, filepath.Join(realRoot, cleanRel))
}

// ConfineAbsPath verifies that the absolute path target resolves under root.
func ConfineAbsPath(root, target string) (string, error) {
	if strings.Contains(target, "\\") {
		return "", fmt.Errorf("%w: backslash in %q", ErrUnsafePath, target)
	}
	if !filepath.IsAbs(target) {
		return "", fmt.Errorf("%w: %q is not absolute", ErrUnsafePath, target)
	}

	realRoot, err := resolveRoot(root)
	if err != nil {
		return "", err
	}
	return checkUnder(realRoot, filepath.Clean(target))
}

func resolveRoot(root string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root path: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return "", err
		}
		return absRoot, nil
	}
	return realRoot, nil
}

// checkUnder resolves symlinks in fullPath (or its parent when the leaf does
// not exist yet) and compares the result against realRoot.
func checkUnder(realRoot, fullPath string) (string, error) {
	var realPath string
	if _, err := os.Lstat(fullPath); err == nil {
		rp, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			return "", fmt.Errorf("resolve %s: %w", fullPath, err)
		}
		realPath = rp
	} else {
		dir := filepath.Dir(fullPath)
		if rp, err := filepath.EvalSymlinks(dir); err == nil {
			realPath = filepath.Join(rp, filepath.Base(fullPath))
		} else if _, statErr := os.Stat(dir); statErr == nil {
			// parent exists but cannot be resolved: fail closed
			return "", fmt.Errorf("resolve parent %s: %w", dir, err)
		} else {
			realPath = fullPath
		}
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil {
		return "", fmt.Errorf("rel computation failed: %w", err)
	}
	if escapes(rel) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, realPath)
	}
	return realPath, nil
}

func escapes(rel string) bool {
	return rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// IsRegularFile returns nil when path exists and is a regular file.
func IsRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: %s", path)
	}
	return nil
}
