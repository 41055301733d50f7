package repository

import (
	"context"
	"fmt"

	"markdraft/internal/document/model"
	"markdraft/pkg/logger"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const documentsCollection = "documents"

// FirestoreStore implements RemoteStore on a Firestore collection. Queries
// rely on a composite index over (ownerId, updatedAt); when that index is
// missing Firestore answers FailedPrecondition, which surfaces as
// ErrNotProvisioned.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

var _ RemoteStore = (*FirestoreStore)(nil)

func (r *FirestoreStore) ReadAll(ctx context.Context, ownerID string) (map[string]model.Document, error) {
	iter := r.client.Collection(documentsCollection).
		Where("ownerId", "==", ownerID).
		OrderBy("updatedAt", firestore.Desc).
		Documents(ctx)
	defer iter.Stop()

	docs := make(map[string]model.Document)
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			if status.Code(err) == codes.FailedPrecondition {
				return nil, fmt.Errorf("%w: composite index for ownerId+updatedAt missing: %v", ErrNotProvisioned, err)
			}
			return nil, err
		}
		var d model.Document
		if err := snap.DataTo(&d); err != nil {
			logger.Sugar.Errorf("Failed to decode document %s: %v", snap.Ref.ID, err)
			continue
		}
		d.ID = snap.Ref.ID
		docs[d.ID] = d
	}
	return docs, nil
}

func (r *FirestoreStore) Write(ctx context.Context, doc model.Document, ownerID string) (string, error) {
	if doc.ID != "" {
		// Field-path update of exactly title, content and updatedAt;
		// createdAt and ownerId keep their server-side values.
		_, err := r.client.Collection(documentsCollection).Doc(doc.ID).Update(ctx, []firestore.Update{
			{Path: "title", Value: doc.Title},
			{Path: "content", Value: doc.Content},
			{Path: "updatedAt", Value: doc.UpdatedAt},
		})
		if err != nil {
			logger.Sugar.Errorf("Failed to update document %s: %v", doc.ID, err)
			return "", err
		}
		return doc.ID, nil
	}

	doc.OwnerID = ownerID
	ref, _, err := r.client.Collection(documentsCollection).Add(ctx, doc)
	if err != nil {
		logger.Sugar.Errorf("Failed to insert document for owner %s: %v", ownerID, err)
		return "", err
	}
	return ref.ID, nil
}

func (r *FirestoreStore) Delete(ctx context.Context, id, _ string) error {
	// Firestore deletes are idempotent: removing an absent doc succeeds.
	if _, err := r.client.Collection(documentsCollection).Doc(id).Delete(ctx); err != nil {
		logger.Sugar.Errorf("Failed to delete document %s: %v", id, err)
		return err
	}
	return nil
}
