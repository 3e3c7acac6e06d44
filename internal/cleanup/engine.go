// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cleanup implements the Cleanup Engine: a multi-pass sweep over
// every project under the storage root — age eviction, quota
// eviction, session-count eviction, empty-directory collapse, and a
// temp-file sweep — reporting what it did (or would do, in dry-run mode)
// rather than raising on a single bad item.
package cleanup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/layout"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cleanupSessionsDeletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkpointd_cleanup_sessions_deleted_total",
		Help: "Total sessions deleted by the cleanup engine, by pass.",
	}, []string{"pass"})

	cleanupBytesFreedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkpointd_cleanup_bytes_freed_total",
		Help: "Total bytes freed across all cleanup passes.",
	})

	cleanupRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkpointd_cleanup_run_duration_seconds",
		Help:    "Time to complete one cleanup run.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// Config holds the retention thresholds a Run evaluates sessions against.
type Config struct {
	MaxAgeDays            int
	MaxTotalSizeGB        float64
	MaxSessionsPerProject int
	PreserveActive        bool
	PreserveTagged        bool
}

// tempFilePatterns are swept by the temp-file pass regardless of age.
var tempFilePatterns = []string{"*.tmp", "*.temp", "*.lock", "*.backup", ".DS_Store", "Thumbs.db"}

// StepError records one pass's failure on one target without aborting the
// rest of the sweep.
type StepError struct {
	Step   string `json:"step"`
	Target string `json:"target"`
	Err    string `json:"error"`
}

// Report summarizes one cleanup run.
type Report struct {
	DeletedSessions    int           `json:"deleted_sessions"`
	DeletedCheckpoints int           `json:"deleted_checkpoints"`
	CollapsedDirs      int           `json:"collapsed_dirs"`
	SweptTempFiles     int           `json:"swept_temp_files"`
	BytesFreed         int64         `json:"bytes_freed"`
	Duration           time.Duration `json:"duration"`
	DryRun             bool          `json:"dry_run"`
	Errors             []StepError   `json:"errors"`
}

func (r *Report) fail(step, target string, err error) {
	r.Errors = append(r.Errors, StepError{Step: step, Target: target, Err: err.Error()})
}

// Engine runs the multi-pass sweep.
type Engine struct {
	root   *layout.Root
	audit  *AuditLog
	logger *slog.Logger
}

// NewEngine returns an Engine rooted at root, recording deletions to audit
// (which may be nil to disable audit logging) and logging via logger (which
// may be nil to use slog.Default()).
func NewEngine(root *layout.Root, audit *AuditLog, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{root: root, audit: audit, logger: logger}
}

// sessionRef identifies one session directory across all projects, carrying
// just enough metadata to sort and evaluate it without re-reading disk.
type sessionRef struct {
	projectHash string
	sessionID   string
	meta        checkpoint.SessionMetadata
	corrupted   bool
}

// Run executes all five passes in order, accumulating results into a single
// Report. In dry-run mode nothing is deleted; counts reflect what would be.
func (e *Engine) Run(cfg Config, dryRun bool) (*Report, error) {
	start := time.Now()
	report := &Report{DryRun: dryRun}

	refs, err := e.collectSessions(report)
	if err != nil {
		return nil, err
	}

	survivors := e.ageEvictionPass(cfg, dryRun, refs, report)
	survivors = e.quotaEvictionPass(cfg, dryRun, survivors, report)
	survivors = e.sessionCountEvictionPass(cfg, dryRun, survivors, report)
	e.collapseEmptyDirsPass(dryRun, report)
	e.tempFileSweepPass(dryRun, report)

	report.Duration = time.Since(start)
	cleanupRunDuration.Observe(report.Duration.Seconds())
	if !dryRun {
		cleanupBytesFreedTotal.Add(float64(report.BytesFreed))
	}
	return report, nil
}

func (e *Engine) collectSessions(report *Report) ([]sessionRef, error) {
	projectHashes, err := e.listDirNames(e.root.ProjectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cleanup: list projects: %w", err)
	}

	var refs []sessionRef
	for _, projectHash := range projectHashes {
		sessionIDs, err := e.listDirNames(e.root.SessionsDir(projectHash))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			report.fail("collect", projectHash, err)
			continue
		}
		for _, sessionID := range sessionIDs {
			metaPath := e.root.SessionMetadataPath(projectHash, sessionID)
			meta, err := atomicio.ReadJSON[checkpoint.SessionMetadata](metaPath)
			refs = append(refs, sessionRef{
				projectHash: projectHash,
				sessionID:   sessionID,
				meta:        meta,
				corrupted:   err != nil,
			})
		}
	}
	return refs, nil
}

// ageEvictionPass deletes sessions whose metadata is missing or unreadable
// (corrupted), and sessions older than MaxAgeDays, subject to preservation
// flags. It returns the refs that survived for the quota pass to consider.
func (e *Engine) ageEvictionPass(cfg Config, dryRun bool, refs []sessionRef, report *Report) []sessionRef {
	var survivors []sessionRef
	cutoff := time.Now().AddDate(0, 0, -cfg.MaxAgeDays)

	for _, ref := range refs {
		if ref.corrupted {
			e.deleteSession(ref, "age_eviction_corrupted", dryRun, report)
			continue
		}
		if ref.meta.Preserved(cfg.PreserveActive, cfg.PreserveTagged) {
			survivors = append(survivors, ref)
			continue
		}
		if cfg.MaxAgeDays > 0 && ref.meta.CreatedAt.Before(cutoff) {
			e.deleteSession(ref, "age_eviction", dryRun, report)
			continue
		}
		survivors = append(survivors, ref)
	}
	return survivors
}

// quotaEvictionPass deletes non-preserved sessions oldest-first until total
// storage is under MaxTotalSizeGB, if a limit is configured.
func (e *Engine) quotaEvictionPass(cfg Config, dryRun bool, refs []sessionRef, report *Report) []sessionRef {
	if cfg.MaxTotalSizeGB <= 0 {
		return refs
	}
	limit := int64(cfg.MaxTotalSizeGB * (1 << 30))

	var total int64
	for _, ref := range refs {
		total += ref.meta.SizeBytes
	}
	if total <= limit {
		return refs
	}

	evictable := make([]sessionRef, 0, len(refs))
	var preserved []sessionRef
	for _, ref := range refs {
		if ref.meta.Preserved(cfg.PreserveActive, cfg.PreserveTagged) {
			preserved = append(preserved, ref)
			continue
		}
		evictable = append(evictable, ref)
	}
	sort.Slice(evictable, func(i, j int) bool {
		return evictable[i].meta.CreatedAt.Before(evictable[j].meta.CreatedAt)
	})

	survivors := append([]sessionRef(nil), preserved...)
	for _, ref := range evictable {
		if total <= limit {
			survivors = append(survivors, ref)
			continue
		}
		e.deleteSession(ref, "quota_eviction", dryRun, report)
		total -= ref.meta.SizeBytes
	}

	if total > limit {
		// Every evictable session is gone and storage as a whole is still
		// over quota: what remains is entirely preserved (active/tagged)
		// sessions, which this pass will never touch.
		report.fail("quota_eviction", e.root.Base(), &checkpointerr.StorageQuotaExceededError{Current: total, Max: limit})
	}
	return survivors
}

// sessionCountEvictionPass deletes the oldest non-preserved sessions in each
// project once that project holds more than MaxSessionsPerProject sessions.
func (e *Engine) sessionCountEvictionPass(cfg Config, dryRun bool, refs []sessionRef, report *Report) []sessionRef {
	if cfg.MaxSessionsPerProject <= 0 {
		return refs
	}

	byProject := make(map[string][]sessionRef)
	for _, ref := range refs {
		byProject[ref.projectHash] = append(byProject[ref.projectHash], ref)
	}

	var survivors []sessionRef
	for _, projectRefs := range byProject {
		if len(projectRefs) <= cfg.MaxSessionsPerProject {
			survivors = append(survivors, projectRefs...)
			continue
		}

		var preserved, evictable []sessionRef
		for _, ref := range projectRefs {
			if ref.meta.Preserved(cfg.PreserveActive, cfg.PreserveTagged) {
				preserved = append(preserved, ref)
				continue
			}
			evictable = append(evictable, ref)
		}
		sort.Slice(evictable, func(i, j int) bool {
			return evictable[i].meta.CreatedAt.Before(evictable[j].meta.CreatedAt)
		})

		keep := cfg.MaxSessionsPerProject - len(preserved)
		projectSurvivors := append([]sessionRef(nil), preserved...)
		for i, ref := range evictable {
			if i < len(evictable)-keep || keep <= 0 {
				e.deleteSession(ref, "session_count_eviction", dryRun, report)
				continue
			}
			projectSurvivors = append(projectSurvivors, ref)
		}
		survivors = append(survivors, projectSurvivors...)
	}
	return survivors
}

func (e *Engine) deleteSession(ref sessionRef, step string, dryRun bool, report *Report) {
	dir := e.root.SessionDir(ref.projectHash, ref.sessionID)
	bytesFreed, checkpointCount, err := dirStats(dir)
	if err != nil {
		report.fail(step, dir, err)
		return
	}

	if !dryRun {
		if err := os.RemoveAll(dir); err != nil {
			report.fail(step, dir, err)
			return
		}
		if e.audit != nil {
			if _, err := e.audit.Append("delete_session", ref.projectHash, ref.sessionID, dir, bytesFreed); err != nil {
				e.logger.Error("cleanup: audit append failed", "error", err)
			}
		}
	}

	report.DeletedSessions++
	report.DeletedCheckpoints += checkpointCount
	report.BytesFreed += bytesFreed
	if !dryRun {
		cleanupSessionsDeletedTotal.WithLabelValues(step).Inc()
	}
}

// collapseEmptyDirsPass walks the root post-order, deleting directories that
// became empty. The root itself is never deleted.
func (e *Engine) collapseEmptyDirsPass(dryRun bool, report *Report) {
	var emptyDirs []string
	_ = filepath.Walk(e.root.Base(), func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() || path == e.root.Base() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil
		}
		if len(entries) == 0 {
			emptyDirs = append(emptyDirs, path)
		}
		return nil
	})

	// Deepest paths first so collapsing a child can expose its now-empty
	// parent within the same pass.
	sort.Slice(emptyDirs, func(i, j int) bool {
		return len(emptyDirs[i]) > len(emptyDirs[j])
	})

	for _, dir := range emptyDirs {
		if dir == e.root.Base() {
			continue
		}
		if !dryRun {
			if err := os.Remove(dir); err != nil {
				report.fail("empty_dir_collapse", dir, err)
				continue
			}
			if e.audit != nil {
				if _, err := e.audit.Append("collapse_empty_dir", "", "", dir, 0); err != nil {
					e.logger.Error("cleanup: audit append failed", "error", err)
				}
			}
		}
		report.CollapsedDirs++
	}
}

// tempFileSweepPass removes stray temp/lock/backup artifacts anywhere under
// the root.
func (e *Engine) tempFileSweepPass(dryRun bool, report *Report) {
	_ = filepath.Walk(e.root.Base(), func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !matchesAny(info.Name(), tempFilePatterns) {
			return nil
		}
		size := info.Size()
		if !dryRun {
			if err := os.Remove(path); err != nil {
				report.fail("temp_file_sweep", path, err)
				return nil
			}
			if e.audit != nil {
				if _, err := e.audit.Append("sweep_temp_file", "", "", path, size); err != nil {
					e.logger.Error("cleanup: audit append failed", "error", err)
				}
			}
		}
		report.SweptTempFiles++
		report.BytesFreed += size
		return nil
	})
}

func matchesAny(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func (e *Engine) listDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// dirStats returns the total byte size and the number of NNN_*.json
// checkpoint files directly under dir (excluding metadata.json and
// checkpoints.json).
func dirStats(dir string) (bytesTotal int64, checkpointCount int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		bytesTotal += info.Size()
		name := entry.Name()
		if name != "metadata.json" && name != "checkpoints.json" && filepath.Ext(name) == ".json" {
			checkpointCount++
		}
	}
	return bytesTotal, checkpointCount, nil
}
