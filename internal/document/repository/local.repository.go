package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"markdraft/internal/document/model"
	"markdraft/internal/localstore"
	"markdraft/pkg/logger"

	"github.com/google/uuid"
)

// storedTimeLayout is the textual form dates take inside the namespace blob.
const storedTimeLayout = time.RFC3339Nano

// storedDocument is the on-disk shape of a document inside an owner's blob.
type storedDocument struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	OwnerID   string `json:"ownerId"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// LocalStore keeps one owner's entire document set in a single serialized
// blob under one key, so every write is a full read/modify/rewrite of that
// owner's namespace. Acceptable for a fallback tier; the remote store is
// the primary.
type LocalStore struct {
	store  *localstore.Store
	prefix string
}

// NewLocalStore namespaces keys with prefix; all of one owner's documents
// live under prefix+ownerID.
func NewLocalStore(store *localstore.Store, prefix string) *LocalStore {
	return &LocalStore{store: store, prefix: prefix}
}

func (s *LocalStore) key(ownerID string) string {
	return s.prefix + ownerID
}

// ReadAll returns the owner's document set. A missing or unreadable blob
// degrades to an empty set: corruption means "no documents yet", not a
// crash, because the set is rebuilt on the next save.
func (s *LocalStore) ReadAll(ownerID string) map[string]model.Document {
	set := s.readSet(ownerID)
	docs := make(map[string]model.Document, len(set))
	for id, sd := range set {
		docs[id] = decodeStored(sd)
	}
	return docs
}

// Write merges the document into the owner's blob and rewrites it. A
// document without an id gets a fresh uuid, re-rolled if it would collide
// with an existing key. I/O and serialization failures surface to the
// caller; there is no further fallback behind this tier.
func (s *LocalStore) Write(doc model.Document, ownerID string) (string, error) {
	set := s.readSet(ownerID)

	if doc.ID == "" {
		for {
			id := uuid.NewString()
			if _, exists := set[id]; !exists {
				doc.ID = id
				break
			}
		}
	}
	doc.OwnerID = ownerID
	set[doc.ID] = encodeStored(doc)

	if err := s.writeSet(ownerID, set); err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Delete removes the id from the owner's blob. A missing id is a no-op.
func (s *LocalStore) Delete(id, ownerID string) error {
	set := s.readSet(ownerID)
	if _, ok := set[id]; !ok {
		return nil
	}
	delete(set, id)
	return s.writeSet(ownerID, set)
}

func (s *LocalStore) readSet(ownerID string) map[string]storedDocument {
	blob, ok, err := s.store.Get(s.key(ownerID))
	if err != nil || !ok {
		if err != nil {
			logger.Sugar.Errorf("Failed to read local documents for owner %s: %v", ownerID, err)
		}
		return make(map[string]storedDocument)
	}
	var set map[string]storedDocument
	if err := json.Unmarshal(blob, &set); err != nil {
		logger.Sugar.Errorf("Corrupt local document blob for owner %s, treating as empty: %v", ownerID, err)
		return make(map[string]storedDocument)
	}
	if set == nil {
		set = make(map[string]storedDocument)
	}
	return set
}

func (s *LocalStore) writeSet(ownerID string, set map[string]storedDocument) error {
	blob, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("serialize documents for owner %s: %w", ownerID, err)
	}
	return s.store.Set(s.key(ownerID), blob)
}

func encodeStored(d model.Document) storedDocument {
	return storedDocument{
		ID:        d.ID,
		Title:     d.Title,
		Content:   d.Content,
		OwnerID:   d.OwnerID,
		CreatedAt: d.CreatedAt.Format(storedTimeLayout),
		UpdatedAt: d.UpdatedAt.Format(storedTimeLayout),
	}
}

func decodeStored(sd storedDocument) model.Document {
	return model.Document{
		ID:        sd.ID,
		Title:     sd.Title,
		Content:   sd.Content,
		OwnerID:   sd.OwnerID,
		CreatedAt: parseStoredTime(sd.CreatedAt),
		UpdatedAt: parseStoredTime(sd.UpdatedAt),
	}
}

// parseStoredTime tolerates a bad date the same way a missing blob is
// tolerated: the zero time sorts the document last instead of failing the
// whole read.
func parseStoredTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(storedTimeLayout, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
