// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/datatypes"
)

// Key prefixes for the Badger keyspace. Claims and ledger entries are keyed
// with a zero-padded sequence so prefix iteration returns them in draft
// order.
const (
	keyDoc      = "doc/"  // doc/<dataSpace>/<documentId>
	keySession  = "sess/" // sess/<sessionId>
	keyClaim    = "clm/"  // clm/<sessionId>/<seq>
	keyLedger   = "led/"  // led/<sessionId>/<seq>
	keyProgress = "prg/"  // prg/<sessionId>
	keyFeedback = "fbk/"  // fbk/<sessionId>/<feedbackId>
)

// BadgerConfig holds configuration for the embedded session store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). For tests.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// DefaultBadgerConfig returns production defaults: on-disk, synchronous
// writes. Session rows are small and written once per phase transition, so
// sync writes cost little and guarantee a crash never loses a terminal
// status.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// BadgerSessionStore implements SessionStore on an embedded BadgerDB.
//
// # Description
//
// All records are stored as JSON values under typed key prefixes. The
// session aggregate's children (claims, ledger, progress, feedback) share
// the session id in their keys so cascade operations are prefix deletes.
//
// # Thread Safety
//
// Safe for concurrent use; Badger transactions provide isolation.
type BadgerSessionStore struct {
	db *badger.DB
}

// NewBadgerSessionStore opens (or creates) the embedded store.
func NewBadgerSessionStore(cfg BadgerConfig) (*BadgerSessionStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger path is required for persistent mode")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", cfg.Path, err)
	}
	slog.Info("Opened session store", "path", cfg.Path, "inMemory", cfg.InMemory)
	return &BadgerSessionStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerSessionStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Documents
// =============================================================================

func docKey(dataSpace, documentId string) []byte {
	return []byte(keyDoc + dataSpace + "/" + documentId)
}

func (s *BadgerSessionStore) CreateDocument(ctx context.Context, doc *datatypes.Document) error {
	return s.putJSON(docKey(doc.DataSpace, doc.DocumentId), doc)
}

func (s *BadgerSessionStore) UpdateDocument(ctx context.Context, doc *datatypes.Document) error {
	doc.UpdatedAt = nowMillis()
	return s.putJSON(docKey(doc.DataSpace, doc.DocumentId), doc)
}

func (s *BadgerSessionStore) GetDocument(ctx context.Context, dataSpace, documentId string) (*datatypes.Document, error) {
	var doc datatypes.Document
	if err := s.getJSON(docKey(dataSpace, documentId), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *BadgerSessionStore) ListDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error) {
	var docs []datatypes.Document
	err := s.scanJSON([]byte(keyDoc+dataSpace+"/"), func(val []byte) error {
		var d datatypes.Document
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt < docs[j].CreatedAt })
	return docs, nil
}

func (s *BadgerSessionStore) ReadyDocuments(ctx context.Context, dataSpace string) ([]datatypes.Document, error) {
	all, err := s.ListDocuments(ctx, dataSpace)
	if err != nil {
		return nil, err
	}
	ready := make([]datatypes.Document, 0, len(all))
	for _, d := range all {
		if d.Status == datatypes.DocumentReady {
			ready = append(ready, d)
		}
	}
	return ready, nil
}

func (s *BadgerSessionStore) DeleteDocument(ctx context.Context, dataSpace, documentId string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(dataSpace, documentId))
	})
}

// =============================================================================
// Sessions
// =============================================================================

func sessKey(sessionId string) []byte {
	return []byte(keySession + sessionId)
}

func (s *BadgerSessionStore) CreateSession(ctx context.Context, sess *datatypes.Session) error {
	return s.putJSON(sessKey(sess.SessionId), sess)
}

func (s *BadgerSessionStore) UpdateSession(ctx context.Context, sess *datatypes.Session) error {
	sess.Touch()
	return s.putJSON(sessKey(sess.SessionId), sess)
}

func (s *BadgerSessionStore) GetSession(ctx context.Context, sessionId string) (*datatypes.Session, error) {
	var sess datatypes.Session
	if err := s.getJSON(sessKey(sessionId), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *BadgerSessionStore) ListSessions(ctx context.Context, dataSpace string) ([]datatypes.Session, error) {
	var sessions []datatypes.Session
	err := s.scanJSON([]byte(keySession), func(val []byte) error {
		var sess datatypes.Session
		if err := json.Unmarshal(val, &sess); err != nil {
			return err
		}
		if dataSpace == "" || sess.DataSpace == dataSpace {
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].CreatedAt > sessions[j].CreatedAt })
	return sessions, nil
}

// =============================================================================
// Claims & Ledger
// =============================================================================

func claimKey(sessionId string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", keyClaim, sessionId, seq))
}

func ledgerKey(sessionId string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%06d", keyLedger, sessionId, seq))
}

func (s *BadgerSessionStore) ReplaceVerdicts(ctx context.Context, sessionId string,
	claims []datatypes.Claim, entries []datatypes.LedgerEntry) error {
	if len(claims) != len(entries) {
		return fmt.Errorf("claims and ledger entries must be parallel: %d vs %d",
			len(claims), len(entries))
	}

	// Drop any prior cycle's verdicts first; re-adjudication replaces.
	if err := s.deletePrefix([]byte(keyClaim + sessionId + "/")); err != nil {
		return err
	}
	if err := s.deletePrefix([]byte(keyLedger + sessionId + "/")); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for i := range claims {
			cv, err := json.Marshal(&claims[i])
			if err != nil {
				return fmt.Errorf("failed to marshal claim: %w", err)
			}
			if err := txn.Set(claimKey(sessionId, i), cv); err != nil {
				return err
			}
			ev, err := json.Marshal(&entries[i])
			if err != nil {
				return fmt.Errorf("failed to marshal ledger entry: %w", err)
			}
			if err := txn.Set(ledgerKey(sessionId, i), ev); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerSessionStore) GetClaims(ctx context.Context, sessionId string) ([]datatypes.Claim, error) {
	claims := []datatypes.Claim{}
	err := s.scanJSON([]byte(keyClaim+sessionId+"/"), func(val []byte) error {
		var c datatypes.Claim
		if err := json.Unmarshal(val, &c); err != nil {
			return err
		}
		claims = append(claims, c)
		return nil
	})
	return claims, err
}

func (s *BadgerSessionStore) GetLedgerEntries(ctx context.Context, sessionId string) ([]datatypes.LedgerEntry, error) {
	entries := []datatypes.LedgerEntry{}
	err := s.scanJSON([]byte(keyLedger+sessionId+"/"), func(val []byte) error {
		var e datatypes.LedgerEntry
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// =============================================================================
// Progress & Feedback
// =============================================================================

func (s *BadgerSessionStore) UpsertProgress(ctx context.Context, prog *datatypes.PipelineProgress) error {
	prog.UpdatedAt = nowMillis()
	return s.putJSON([]byte(keyProgress+prog.SessionId), prog)
}

func (s *BadgerSessionStore) GetProgress(ctx context.Context, sessionId string) (*datatypes.PipelineProgress, error) {
	var prog datatypes.PipelineProgress
	if err := s.getJSON([]byte(keyProgress+sessionId), &prog); err != nil {
		return nil, err
	}
	return &prog, nil
}

func (s *BadgerSessionStore) SaveFeedback(ctx context.Context, fb *datatypes.Feedback) error {
	return s.putJSON([]byte(keyFeedback+fb.SessionId+"/"+fb.FeedbackId), fb)
}

func (s *BadgerSessionStore) ListFeedback(ctx context.Context, sessionId string) ([]datatypes.Feedback, error) {
	feedback := []datatypes.Feedback{}
	err := s.scanJSON([]byte(keyFeedback+sessionId+"/"), func(val []byte) error {
		var f datatypes.Feedback
		if err := json.Unmarshal(val, &f); err != nil {
			return err
		}
		feedback = append(feedback, f)
		return nil
	})
	return feedback, err
}

// =============================================================================
// Cascade Delete
// =============================================================================

// DeleteSessionCascade removes the whole session aggregate. Children go
// first so a crash mid-delete never leaves orphans behind a live session
// row: feedback, ledger entries, claims, progress, session.
func (s *BadgerSessionStore) DeleteSessionCascade(ctx context.Context, sessionId string) error {
	prefixes := [][]byte{
		[]byte(keyFeedback + sessionId + "/"),
		[]byte(keyLedger + sessionId + "/"),
		[]byte(keyClaim + sessionId + "/"),
		[]byte(keyProgress + sessionId),
	}
	for _, p := range prefixes {
		if err := s.deletePrefix(p); err != nil {
			return fmt.Errorf("cascade delete failed at prefix %q: %w", p, err)
		}
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(sessKey(sessionId))
	})
	if err != nil {
		return fmt.Errorf("failed to delete session row: %w", err)
	}
	slog.Info("Deleted session aggregate", "sessionId", sessionId)
	return nil
}

// =============================================================================
// Internal helpers
// =============================================================================

func (s *BadgerSessionStore) putJSON(key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

func (s *BadgerSessionStore) getJSON(key []byte, v any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

// scanJSON iterates all values under prefix in key order.
func (s *BadgerSessionStore) scanJSON(prefix []byte, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerSessionStore) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
