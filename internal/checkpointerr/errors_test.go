// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpointerr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuggestAppendsSuggestionOnlyForRecoverableClassifiedErrors(t *testing.T) {
	recoverable := &StorageQuotaExceededError{Current: 10, Max: 5}
	assert.Contains(t, Suggest(recoverable), "suggestion:")

	unrecoverable := &HashCollisionError{PathA: "/a", PathB: "/b", Hash: "deadbeef"}
	assert.NotContains(t, Suggest(unrecoverable), "suggestion:")

	plain := errors.New("boom")
	assert.Equal(t, "boom", Suggest(plain))

	assert.Equal(t, "", Suggest(nil))
}

func TestSuggestFindsClassifiedThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", &RetentionPolicyViolationError{SessionID: "s1", Reason: "active"})
	assert.Contains(t, Suggest(wrapped), "clear the session's preservation flag")
}

func TestClassifyReturnsKindOfClassifiedErrorThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("context: %w", &PermissionDeniedError{Path: "/x", Err: errors.New("denied")})
	assert.Equal(t, KindPermissionDenied, Classify(wrapped))
}

func TestClassifyMapsSentinelsWithoutClassifiedTypes(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{fmt.Errorf("%w: proj", ErrProjectNotFound), KindNotFound},
		{fmt.Errorf("%w: sess", ErrSessionNotFound), KindNotFound},
		{fmt.Errorf("%w: cp", ErrCheckpointNotFound), KindNotFound},
		{fmt.Errorf("%w: id", ErrInvalidCheckpointID), KindInvalidID},
		{fmt.Errorf("%w: id", ErrInvalidSessionID), KindInvalidID},
		{fmt.Errorf("%w", ErrVersionMismatch), KindVersionMismatch},
		{fmt.Errorf("%w", ErrCorruptedData), KindCorruptedData},
		{fmt.Errorf("%w", ErrAtomicOperationFailed), KindAtomicOperationFailed},
		{fmt.Errorf("%w", ErrLockHeld), KindIO},
		{fmt.Errorf("%w", ErrLockTimeout), KindIO},
		{fmt.Errorf("%w", ErrLockNotHeld), KindIO},
		{fmt.Errorf("%w", ErrValidation), KindValidation},
		{fmt.Errorf("%w", ErrRestoreInProgress), KindRestoration},
		{errors.New("unclassified"), KindUnknown},
	}
	for _, c := range cases {
		assert.Equalf(t, c.want, Classify(c.err), "err=%v", c.err)
	}
}

func TestKindStringCoversEveryDeclaredKind(t *testing.T) {
	kinds := []Kind{
		KindIO, KindSerialization, KindConfig, KindStorage, KindNotFound,
		KindHashCollision, KindPermissionDenied, KindStorageQuotaExceeded,
		KindVersionMismatch, KindCorruptedData, KindInvalidID,
		KindAtomicOperationFailed, KindRetentionPolicyViolation,
		KindRestoration, KindValidation,
	}
	seen := make(map[string]bool)
	for _, k := range kinds {
		s := k.String()
		assert.NotEqual(t, "unknown", s)
		assert.False(t, seen[s], "duplicate Kind.String() value %q", s)
		seen[s] = true
	}
	assert.Equal(t, "unknown", KindUnknown.String())
}

func TestVersionMismatchErrorUnwrapsToSentinel(t *testing.T) {
	err := &VersionMismatchError{Path: "cp.json", Found: "2.0", Want: "1.0"}
	assert.True(t, errors.Is(err, ErrVersionMismatch))
}
