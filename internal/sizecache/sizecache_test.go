// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sizecache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateHitsCacheUntilMtimeAdvances(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o600))

	c := New(time.Hour)
	first, err := c.Calculate(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(5), first.Bytes)
	assert.Equal(t, 1, first.FileCount)

	hits, misses := c.Stats()
	assert.Equal(t, int64(0), hits)
	assert.Equal(t, int64(1), misses)

	second, err := c.Calculate(dir)
	require.NoError(t, err)
	assert.Equal(t, first.Bytes, second.Bytes)
	hits, misses = c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world!"), 0o600))

	third, err := c.Calculate(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(11), third.Bytes)
	assert.Equal(t, 2, third.FileCount)
	_, misses = c.Stats()
	assert.Equal(t, int64(2), misses)
}

func TestInvalidateForcesRecalculation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))

	c := New(time.Hour)
	_, err := c.Calculate(dir)
	require.NoError(t, err)

	c.Invalidate(dir)
	_, err = c.Calculate(dir)
	require.NoError(t, err)

	_, misses := c.Stats()
	assert.Equal(t, int64(2), misses)
}

func TestExpiredTTLForcesRecalculation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o600))

	c := New(5 * time.Millisecond)
	_, err := c.Calculate(dir)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	_, err = c.Calculate(dir)
	require.NoError(t, err)

	_, misses := c.Stats()
	assert.Equal(t, int64(2), misses)
}

func TestHumanBytesBase1024UsesBinaryUnitsAndScalingDecimals(t *testing.T) {
	assert.Equal(t, "512 B", HumanBytes(512, Base1024))
	assert.Equal(t, "1.0 KiB", HumanBytes(1024, Base1024))
	assert.Equal(t, "1.50 MiB", HumanBytes(1024*1024+1024*512, Base1024))
}

func TestHumanBytesBase1000UsesDecimalUnits(t *testing.T) {
	assert.Equal(t, "999 B", HumanBytes(999, Base1000))
	assert.Equal(t, "1.0 KB", HumanBytes(1000, Base1000))
	assert.Equal(t, "2.50 MB", HumanBytes(2_500_000, Base1000))
}

func TestCategorizeSizeThresholds(t *testing.T) {
	assert.Equal(t, SizeCategoryEmpty, CategorizeSize(0))
	assert.Equal(t, SizeCategoryTiny, CategorizeSize(512))
	assert.Equal(t, SizeCategorySmall, CategorizeSize(1<<10))
	assert.Equal(t, SizeCategoryMedium, CategorizeSize(1<<20))
	assert.Equal(t, SizeCategoryLarge, CategorizeSize(100*(1<<20)))
	assert.Equal(t, SizeCategoryHuge, CategorizeSize(1<<30))
}
