// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package restore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/haldane-labs/checkpointd/internal/checkpoint"
	"github.com/haldane-labs/checkpointd/internal/checkpointerr"
	"github.com/haldane-labs/checkpointd/internal/sessionstore"
)

var restoreTracer = otel.Tracer("checkpointd.restore")

// inProgress tracks sessions with a restore currently running, so a second
// concurrent restore_checkpoint call for the same session fails fast instead
// of racing the first one's reads.
var inProgress sync.Map // map[string]struct{}, keyed by "<projectHash>/<sessionID>"

func restoreKey(store *sessionstore.Store) string {
	return store.ProjectHash() + "/" + store.SessionID()
}

// Metadata carries timing and sizing facts about one restore_checkpoint
// call, independent of the checkpoint's own content.
type Metadata struct {
	Duration      time.Duration `json:"duration"`
	SizeBytes     int64         `json:"size_bytes"`
	ValidatedAt   time.Time     `json:"validated_at"`
	ValidationRun bool          `json:"validation_run"`
}

// Bundle is what restore_checkpoint returns on success.
type Bundle struct {
	Checkpoint      checkpoint.Checkpoint
	SessionMetadata checkpoint.SessionMetadata
	Restoration     Metadata
	Validation      ValidationResult
}

// Checkpoint loads a checkpoint and its owning session's metadata from
// store, optionally validating it first. If validate is true and the
// validator finds any Error-severity issue, the call aborts before the
// bundle is built with an error wrapping checkpointerr.ErrValidation, which
// Classify reports as KindValidation; no Restoration-kind error is returned.
func Checkpoint(ctx context.Context, store *sessionstore.Store, checkpointID string, validate bool) (bundle Bundle, err error) {
	_, span := restoreTracer.Start(ctx, "RestoreCheckpoint", trace.WithAttributes(
		attribute.String("checkpoint_id", checkpointID),
		attribute.Bool("validate", validate),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	key := restoreKey(store)
	if _, already := inProgress.LoadOrStore(key, struct{}{}); already {
		recordRestoreRejected(ctx)
		err = fmt.Errorf("%w: session %s", checkpointerr.ErrRestoreInProgress, store.SessionID())
		return Bundle{}, err
	}
	defer inProgress.Delete(key)

	start := time.Now()
	defer func() { recordRestoreOutcome(ctx, time.Since(start), validate, err == nil) }()

	cp, err := store.LoadCheckpoint(checkpointID)
	if err != nil {
		return Bundle{}, err
	}
	sessionMeta, err := store.Metadata()
	if err != nil {
		return Bundle{}, err
	}

	var validation ValidationResult
	if validate {
		validation = Validate(cp)
		if !validation.Valid() {
			return Bundle{}, fmt.Errorf("%w: checkpoint %s failed validation: %v", checkpointerr.ErrValidation, checkpointID, validation.Errors())
		}
	}

	span.SetAttributes(attribute.Int64("size_bytes", cp.Metadata.SizeBytes))
	return Bundle{
		Checkpoint:      cp,
		SessionMetadata: sessionMeta,
		Validation:      validation,
		Restoration: Metadata{
			Duration:      time.Since(start),
			SizeBytes:     cp.Metadata.SizeBytes,
			ValidatedAt:   time.Now().UTC(),
			ValidationRun: validate,
		},
	}, nil
}
