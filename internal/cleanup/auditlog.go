// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cleanup

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// GenesisHash seeds the hash chain before any record has been written.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const auditLogFileMode = 0o600

// DeletionRecord is one tamper-evident entry in the cleanup audit log.
type DeletionRecord struct {
	Sequence    int64  `json:"sequence"`
	Timestamp   string `json:"timestamp"`
	Operation   string `json:"operation"` // "delete_session" | "delete_checkpoint" | "collapse_empty_dir" | "sweep_temp_file"
	ProjectHash string `json:"project_hash,omitempty"`
	SessionID   string `json:"session_id,omitempty"`
	Target      string `json:"target"`
	BytesFreed  int64  `json:"bytes_freed"`
	PrevHash    string `json:"prev_hash"`
	EntryHash   string `json:"entry_hash"`
}

func computeRecordHash(r DeletionRecord) string {
	r.EntryHash = ""
	data, _ := json.Marshal(r)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// AuditLog appends DeletionRecords to a dedicated file, each one chained to
// the previous by hash so that any later tampering with the file breaks the
// chain detectably.
type AuditLog struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	sequence int64
	prevHash string
}

// OpenAuditLog opens (or creates) the audit log at path and replays it to
// recover the current sequence number and chain tip.
func OpenAuditLog(path string) (*AuditLog, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return nil, fmt.Errorf("cleanup: open audit log %s: %w", path, err)
	}
	log := &AuditLog{file: file, path: path, prevHash: GenesisHash}
	if err := log.loadChainState(); err != nil {
		file.Close()
		return nil, err
	}
	return log, nil
}

func (l *AuditLog) loadChainState() error {
	records, err := readRecords(l.path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	last := records[len(records)-1]
	l.sequence = last.Sequence
	l.prevHash = last.EntryHash
	return nil
}

// Append writes one deletion record and advances the chain.
func (l *AuditLog) Append(operation, projectHash, sessionID, target string, bytesFreed int64) (DeletionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.sequence++
	record := DeletionRecord{
		Sequence:    l.sequence,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Operation:   operation,
		ProjectHash: projectHash,
		SessionID:   sessionID,
		Target:      target,
		BytesFreed:  bytesFreed,
		PrevHash:    l.prevHash,
	}
	record.EntryHash = computeRecordHash(record)

	data, err := json.Marshal(record)
	if err != nil {
		return DeletionRecord{}, err
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return DeletionRecord{}, fmt.Errorf("cleanup: write audit record: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return DeletionRecord{}, fmt.Errorf("cleanup: sync audit log: %w", err)
	}
	l.prevHash = record.EntryHash
	return record, nil
}

// VerifyChain re-reads the log from disk and confirms every record's
// EntryHash is consistent with its contents and its PrevHash matches the
// prior record's EntryHash (or GenesisHash for the first record).
func (l *AuditLog) VerifyChain() error {
	records, err := readRecords(l.path)
	if err != nil {
		return err
	}
	prev := GenesisHash
	for _, r := range records {
		if r.PrevHash != prev {
			return fmt.Errorf("cleanup: audit chain broken at sequence %d: prev_hash mismatch", r.Sequence)
		}
		want := computeRecordHash(r)
		if want != r.EntryHash {
			return fmt.Errorf("cleanup: audit chain broken at sequence %d: entry_hash mismatch", r.Sequence)
		}
		prev = r.EntryHash
	}
	return nil
}

func readRecords(path string) ([]DeletionRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cleanup: read audit log %s: %w", path, err)
	}
	defer file.Close()

	var records []DeletionRecord
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r DeletionRecord
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("cleanup: corrupted audit record: %w", err)
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying file handle.
func (l *AuditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Reopen closes and reopens the log file at the same path, for use after an
// external log-rotation tool has moved it aside.
func (l *AuditLog) Reopen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Close(); err != nil {
		return err
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, auditLogFileMode)
	if err != nil {
		return fmt.Errorf("cleanup: reopen audit log %s: %w", l.path, err)
	}
	l.file = file
	return nil
}
