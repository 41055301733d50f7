package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"markdraft/internal/document/model"
	"markdraft/internal/document/repository"
	"markdraft/pkg/logger"
)

// ErrNotAuthenticated blocks save and delete when no owner identity is
// present. It is user-facing and never silently retried.
var ErrNotAuthenticated = errors.New("not authenticated: sign in to manage documents")

// RoomCloser lets the coordinator tell the live-session layer that a
// document no longer exists. Implemented by socket.Hub.
type RoomCloser interface {
	RemoveDocument(docID string)
}

// DocumentService coordinates the remote store, the local fallback store
// and the in-memory cache. The cache is what the rest of the application
// reads; it holds the most recently observed authoritative state, remote
// when available, local otherwise.
//
// The cache is partitioned by owner. One owner's LoadAll never touches
// another owner's entries, so concurrent requests from different owners
// cannot serve each other's documents.
//
// Remote and local attempts are sequential, never raced. Concurrent saves
// of the same id are last-writer-wins; callers that care about ordering
// serialize themselves.
type DocumentService struct {
	remote repository.RemoteStore
	local  *repository.LocalStore
	rooms  RoomCloser
	now    func() time.Time

	mu       sync.RWMutex
	caches   map[string]map[string]model.Document // ownerID -> docID -> doc
	owners   map[string]string                    // docID -> ownerID
	lastSync map[string]time.Time
}

func NewDocumentService(remote repository.RemoteStore, local *repository.LocalStore) *DocumentService {
	return &DocumentService{
		remote:   remote,
		local:    local,
		now:      time.Now,
		caches:   make(map[string]map[string]model.Document),
		owners:   make(map[string]string),
		lastSync: make(map[string]time.Time),
	}
}

// AttachRooms wires the live-session hub so deletes disconnect open
// editors. Optional; nil means no sessions to notify.
func (s *DocumentService) AttachRooms(rc RoomCloser) {
	s.rooms = rc
}

// fallback runs primary and, on any failure at all, secondary. The
// primary's error is logged, never propagated; only the secondary's error
// reaches the caller, because behind the second tier there is nothing left
// to try. The bool reports whether the primary served the result.
func fallback[T any](op string, primary, secondary func() (T, error)) (T, bool, error) {
	v, err := primary()
	if err == nil {
		return v, true, nil
	}
	if errors.Is(err, repository.ErrNotProvisioned) {
		logger.Sugar.Errorf("%s: remote store is not provisioned, check the documents table/index: %v", op, err)
	} else {
		logger.Sugar.Warnf("%s: remote store failed, falling back to local: %v", op, err)
	}
	v, err = secondary()
	return v, false, err
}

// LoadAll replaces the owner's slice of the cache with their document set.
// It never returns an error: no owner yields an empty set immediately, a
// remote failure falls back to the local store, and a local read degrades
// to empty on its own. The sync timestamp is recorded only when the remote
// store answered.
func (s *DocumentService) LoadAll(ctx context.Context, ownerID string) map[string]model.Document {
	if ownerID == "" {
		logger.Sugar.Info("No authenticated owner, no documents to load")
		return map[string]model.Document{}
	}

	docs, fromRemote, _ := fallback("load documents",
		func() (map[string]model.Document, error) { return s.remote.ReadAll(ctx, ownerID) },
		func() (map[string]model.Document, error) { return s.local.ReadAll(ownerID), nil },
	)
	if docs == nil {
		docs = make(map[string]model.Document)
	}

	s.mu.Lock()
	for id := range s.caches[ownerID] {
		delete(s.owners, id)
	}
	set := make(map[string]model.Document, len(docs))
	for id, d := range docs {
		set[id] = d
		s.owners[id] = ownerID
	}
	s.caches[ownerID] = set
	if fromRemote {
		s.lastSync[ownerID] = s.now()
	}
	s.mu.Unlock()

	logger.Sugar.Infof("Loaded %d documents for owner %s (remote=%v)", len(docs), ownerID, fromRemote)
	return s.snapshot(ownerID)
}

// Save normalizes the document once, stamps timestamps, writes it remote
// first with local fallback, and updates the cache with the exact value
// that was persisted rather than a re-read. Returns the document id,
// freshly assigned by whichever backend took the write when the document
// had none.
func (s *DocumentService) Save(ctx context.Context, ownerID string, doc model.Document) (string, error) {
	if ownerID == "" {
		return "", ErrNotAuthenticated
	}

	doc = doc.Normalized()
	now := s.now()

	s.mu.RLock()
	if owner, taken := s.owners[doc.ID]; doc.ID != "" && taken && owner != ownerID {
		s.mu.RUnlock()
		return "", fmt.Errorf("document %s not found for owner", doc.ID)
	}
	cached, exists := s.caches[ownerID][doc.ID]
	s.mu.RUnlock()

	if doc.ID != "" && exists {
		doc.CreatedAt = cached.CreatedAt
	} else {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.OwnerID = ownerID

	// Both closures see the same normalized value; what was attempted
	// remotely is exactly what lands locally on fallback.
	id, fromRemote, err := fallback("save document",
		func() (string, error) { return s.remote.Write(ctx, doc, ownerID) },
		func() (string, error) { return s.local.Write(doc, ownerID) },
	)
	if err != nil {
		return "", err
	}
	if doc.ID == "" {
		doc.ID = id
	}

	s.mu.Lock()
	if s.caches[ownerID] == nil {
		s.caches[ownerID] = make(map[string]model.Document)
	}
	s.caches[ownerID][doc.ID] = doc
	s.owners[doc.ID] = ownerID
	s.mu.Unlock()

	logger.Sugar.Infof("Saved document %s for owner %s (remote=%v)", doc.ID, ownerID, fromRemote)
	return doc.ID, nil
}

// Delete removes the document remote-first with local fallback, then drops
// the cache entry and closes any live editing session. Failure of both
// tiers is surfaced; a silently lost delete is as bad as a lost write.
// Another owner's document id is untouchable: the storage tiers are
// owner-scoped and the session room stays open.
func (s *DocumentService) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return ErrNotAuthenticated
	}

	s.mu.RLock()
	owner, tracked := s.owners[id]
	s.mu.RUnlock()
	if tracked && owner != ownerID {
		return fmt.Errorf("document %s not found for owner", id)
	}

	_, fromRemote, err := fallback("delete document",
		func() (struct{}, error) { return struct{}{}, s.remote.Delete(ctx, id, ownerID) },
		func() (struct{}, error) { return struct{}{}, s.local.Delete(id, ownerID) },
	)
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.caches[ownerID], id)
	if s.owners[id] == ownerID {
		delete(s.owners, id)
	}
	s.mu.Unlock()

	if s.rooms != nil {
		s.rooms.RemoveDocument(id)
	}
	logger.Sugar.Infof("Deleted document %s for owner %s (remote=%v)", id, ownerID, fromRemote)
	return nil
}

// AutoSave is the non-throwing Save used by the session timer. It no-ops
// for unauthenticated owners, unsaved documents and blank content, and
// swallows (but logs) save failures so a flaky backend never kills the
// timer loop.
func (s *DocumentService) AutoSave(ctx context.Context, ownerID string, doc model.Document) {
	if ownerID == "" || doc.ID == "" || strings.TrimSpace(doc.Content) == "" {
		return
	}
	if _, err := s.Save(ctx, ownerID, doc); err != nil {
		logger.Sugar.Warnf("Auto-save failed for document %s: %v", doc.ID, err)
		return
	}
	logger.Sugar.Infof("Auto-saved document %s", doc.ID)
}

// Get returns the cached document for id, if any. The returned document
// carries its owner; callers gating access compare against it.
func (s *DocumentService) Get(id string) (model.Document, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owner, ok := s.owners[id]
	if !ok {
		return model.Document{}, false
	}
	d, ok := s.caches[owner][id]
	return d, ok
}

// List returns the owner's cached documents newest-first by UpdatedAt.
// Documents without an update time sort last.
func (s *DocumentService) List(ownerID string) []model.Document {
	s.mu.RLock()
	docs := make([]model.Document, 0, len(s.caches[ownerID]))
	for _, d := range s.caches[ownerID] {
		docs = append(docs, d)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if docs[i].UpdatedAt.Equal(docs[j].UpdatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].UpdatedAt.After(docs[j].UpdatedAt)
	})
	return docs
}

// Count reports the number of the owner's cached documents.
func (s *DocumentService) Count(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.caches[ownerID])
}

// LastSync reports when the remote store last answered a full read for the
// owner; zero if it never has.
func (s *DocumentService) LastSync(ownerID string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSync[ownerID]
}

// Clear drops the owner's cached documents, e.g. on sign-out.
func (s *DocumentService) Clear(ownerID string) {
	s.mu.Lock()
	for id := range s.caches[ownerID] {
		delete(s.owners, id)
	}
	delete(s.caches, ownerID)
	delete(s.lastSync, ownerID)
	s.mu.Unlock()
}

func (s *DocumentService) snapshot(ownerID string) map[string]model.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]model.Document, len(s.caches[ownerID]))
	for id, d := range s.caches[ownerID] {
		out[id] = d
	}
	return out
}
