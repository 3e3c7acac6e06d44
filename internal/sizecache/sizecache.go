// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sizecache implements calculate_size: an in-memory, mtime-validated
// cache of directory size and file count, with an optional on-disk mirror
// for large trees.
package sizecache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haldane-labs/checkpointd/internal/atomicio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// persistThreshold is the file count above which an entry is additionally
// written to <dir>/.agent_cache/size_cache.json.
const persistThreshold = 1000

var (
	sizeCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkpointd_sizecache_hits_total",
		Help: "Total directory-size cache hits, in-memory or on-disk.",
	})
	sizeCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkpointd_sizecache_misses_total",
		Help: "Total directory-size cache misses requiring a filesystem walk.",
	})
)

// DefaultTTL is how long an entry is trusted without revalidating against
// the directory's newest descendant mtime.
const DefaultTTL = 5 * time.Minute

// Result is the outcome of a size calculation.
type Result struct {
	Bytes          int64     `json:"bytes"`
	FileCount      int       `json:"file_count"`
	LastCalculated time.Time `json:"last_calculated"`
	NewestMtime    time.Time `json:"newest_mtime"`
}

// fresh reports whether r is still valid for a directory whose current
// newest-descendant mtime is newestMtime and whose entry was recorded no
// longer than ttl ago.
func (r Result) fresh(now time.Time, ttl time.Duration, newestMtime time.Time) bool {
	if now.Sub(r.LastCalculated) > ttl {
		return false
	}
	return !newestMtime.After(r.NewestMtime)
}

// Cache is an in-memory size/file-count cache keyed by absolute directory
// path. The zero value is not usable; construct with New.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Result

	hits   int64
	misses int64
}

// New returns a Cache with the given TTL. A zero ttl defaults to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{ttl: ttl, entries: make(map[string]Result)}
}

// Calculate returns the size, file count, and last-calculated time for dir,
// serving a cache hit when the cached entry is still fresh. A cache miss (or
// stale entry) walks the tree, recomputes, and, for trees over
// persistThreshold files, persists the result under dir's cache directory.
func (c *Cache) Calculate(dir string) (Result, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Result{}, err
	}

	newest, err := newestMtime(abs)
	if err != nil {
		return Result{}, err
	}

	now := time.Now()
	c.mu.Lock()
	cached, ok := c.entries[abs]
	c.mu.Unlock()
	if ok && cached.fresh(now, c.ttl, newest) {
		c.recordHit()
		return cached, nil
	}

	if onDisk, ok := c.loadPersisted(abs); ok && onDisk.fresh(now, c.ttl, newest) {
		c.recordHit()
		c.store(abs, onDisk)
		return onDisk, nil
	}

	c.recordMiss()
	result, err := walk(abs)
	if err != nil {
		return Result{}, err
	}
	result.NewestMtime = newest
	result.LastCalculated = now

	c.store(abs, result)
	if result.FileCount > persistThreshold {
		_ = c.persist(abs, result)
	}
	return result, nil
}

// Invalidate drops the cached entry for dir, forcing the next Calculate to
// recompute from the filesystem. No session create or delete path in this
// module calls it; entries are dropped only by explicit calls.
func (c *Cache) Invalidate(dir string) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return
	}
	c.mu.Lock()
	delete(c.entries, abs)
	c.mu.Unlock()
	_ = os.Remove(persistedPath(abs))
}

// Stats reports cumulative hit/miss counts for this Cache instance. The same
// counts are also exported process-wide as Prometheus counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *Cache) store(abs string, r Result) {
	c.mu.Lock()
	c.entries[abs] = r
	c.mu.Unlock()
}

func (c *Cache) recordHit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	sizeCacheHitsTotal.Inc()
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	sizeCacheMissesTotal.Inc()
}

func persistedPath(abs string) string {
	return filepath.Join(abs, ".agent_cache", "size_cache.json")
}

func (c *Cache) persist(abs string, r Result) error {
	return atomicio.WriteJSON(persistedPath(abs), r, 0o600)
}

func (c *Cache) loadPersisted(abs string) (Result, bool) {
	r, err := atomicio.ReadJSON[Result](persistedPath(abs))
	if err != nil {
		return Result{}, false
	}
	return r, true
}

func walk(abs string) (Result, error) {
	var bytes int64
	var count int
	err := filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		bytes += info.Size()
		count++
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Bytes: bytes, FileCount: count}, nil
}

func newestMtime(abs string) (time.Time, error) {
	var newest time.Time
	err := filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	return newest, nil
}

// Base selects the unit scale HumanBytes renders with.
type Base int

const (
	// Base1024 uses binary units (KiB, MiB, GiB, ...).
	Base1024 Base = iota
	// Base1000 uses decimal units (KB, MB, GB, ...).
	Base1000
)

var (
	units1024 = []string{"KiB", "MiB", "GiB", "TiB", "PiB"}
	units1000 = []string{"KB", "MB", "GB", "TB", "PB"}
)

// HumanBytes renders n bytes as a short human-readable string (e.g. "4.20
// MiB"), in base-1024 or base-1000 units. Decimal places scale with
// magnitude: whole bytes print with none, the first unit tier with one, and
// anything larger with two.
func HumanBytes(n int64, base Base) string {
	unit := int64(1000)
	units := units1000
	if base == Base1024 {
		unit = 1024
		units = units1024
	}

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	if exp >= len(units) {
		exp = len(units) - 1
	}

	decimals := 2
	if exp == 0 {
		decimals = 1
	}
	return fmt.Sprintf("%.*f %s", decimals, float64(n)/float64(div), units[exp])
}

// SizeCategory is a coarse magnitude bucket for a byte count, used for
// telemetry/display grouping where an exact size is more detail than
// needed.
type SizeCategory string

const (
	SizeCategoryEmpty  SizeCategory = "empty"
	SizeCategoryTiny   SizeCategory = "tiny"
	SizeCategorySmall  SizeCategory = "small"
	SizeCategoryMedium SizeCategory = "medium"
	SizeCategoryLarge  SizeCategory = "large"
	SizeCategoryHuge   SizeCategory = "huge"
)

// CategorizeSize buckets n bytes at the 0, 1 KiB, 1 MiB, 100 MiB, and 1 GiB
// thresholds.
func CategorizeSize(n int64) SizeCategory {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n <= 0:
		return SizeCategoryEmpty
	case n < kib:
		return SizeCategoryTiny
	case n < mib:
		return SizeCategorySmall
	case n < 100*mib:
		return SizeCategoryMedium
	case n < gib:
		return SizeCategoryLarge
	default:
		return SizeCategoryHuge
	}
}
