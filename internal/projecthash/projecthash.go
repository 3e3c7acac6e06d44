// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package projecthash computes the deterministic project identifier used
// throughout the checkpoint substrate: a hash of the canonical project
// path, its git remote, and the sorted set of marker files present at its
// root.
package projecthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Length is the number of hex characters a project hash renders as (64 bits
// of a SHA-256 digest).
const Length = 16

var hashPattern = regexp.MustCompile(`^[a-f0-9]{8,64}$`)

// markerFiles are checked, in this fixed order, for presence at a project
// root and folded into the hash when present.
var markerFiles = []string{
	"Cargo.toml", "package.json", "pom.xml", "go.mod", "pyproject.toml",
	"build.gradle", "CMakeLists.txt", ".git",
}

// Validate reports whether hash looks like a value this package could have
// produced (8-64 lowercase hex characters — the wider floor tolerates
// truncated hashes carried over from other tooling).
func Validate(hash string) error {
	if hash == "" {
		return fmt.Errorf("projecthash: hash must not be empty")
	}
	if !hashPattern.MatchString(hash) {
		return fmt.Errorf("projecthash: invalid format %q: want 8-64 lowercase hex characters", hash)
	}
	return nil
}

// Compute derives the 16-hex-character project hash for projectPath. The
// path is canonicalized first so that symlinks and relative segments do not
// change the result for the same underlying directory (invariant I1).
func Compute(projectPath string) (string, error) {
	canonical, err := Canonicalize(projectPath)
	if err != nil {
		return "", fmt.Errorf("projecthash: canonicalize %s: %w", projectPath, err)
	}

	h := sha256.New()
	h.Write([]byte(canonical))

	if remote := gitRemote(canonical); remote != "" {
		h.Write([]byte(remote))
	}

	for _, marker := range presentMarkers(canonical) {
		h.Write([]byte(marker))
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)[:Length], nil
}

// Canonicalize resolves path to the absolute, symlink-free form used as the
// identity input to Compute, so callers needing that same canonical string
// (for example to detect a HashCollisionError) derive it consistently.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The directory may not exist yet (e.g. a project being created);
		// fall back to the absolute, cleaned path rather than failing.
		return filepath.Clean(abs), nil
	}
	return resolved, nil
}

// gitRemote returns the "origin" remote URL, or "" if unavailable — this is
// explicitly best-effort.
func gitRemote(projectPath string) string {
	cmd := exec.Command("git", "-C", projectPath, "remote", "get-url", "origin")
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// presentMarkers returns the subset of markerFiles found at projectPath,
// sorted by name, so that the hash input does not depend on the order in
// which markerFiles lists them.
func presentMarkers(projectPath string) []string {
	present := make([]string, 0, len(markerFiles))
	for _, marker := range markerFiles {
		if _, err := os.Stat(filepath.Join(projectPath, marker)); err == nil {
			present = append(present, marker)
		}
	}
	sort.Strings(present)
	return present
}
