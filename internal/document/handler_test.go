package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"markdraft/internal/document/model"
	"markdraft/internal/document/repository"
	"markdraft/internal/document/service"
	"markdraft/internal/localstore"
	"markdraft/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryRemote is a minimal in-memory RemoteStore for handler tests.
type memoryRemote struct {
	docs map[string]model.Document
	seq  int
}

func (m *memoryRemote) ReadAll(_ context.Context, ownerID string) (map[string]model.Document, error) {
	out := make(map[string]model.Document)
	for id, d := range m.docs {
		if d.OwnerID == ownerID {
			out[id] = d
		}
	}
	return out, nil
}

func (m *memoryRemote) Write(_ context.Context, doc model.Document, ownerID string) (string, error) {
	if doc.ID == "" {
		m.seq++
		doc.ID = fmt.Sprintf("doc-%d", m.seq)
	}
	doc.OwnerID = ownerID
	m.docs[doc.ID] = doc
	return doc.ID, nil
}

func (m *memoryRemote) Delete(_ context.Context, id, _ string) error {
	if m.docs == nil {
		return errors.New("no store")
	}
	delete(m.docs, id)
	return nil
}

func newHandler(t *testing.T) *DocumentHandler {
	t.Helper()
	backing, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	local := repository.NewLocalStore(backing, "documents_")
	svc := service.NewDocumentService(&memoryRemote{docs: make(map[string]model.Document)}, local)
	return NewDocumentHandler(svc)
}

func asOwner(r *http.Request, ownerID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.OwnerIDKey, ownerID))
}

func TestSaveAndListDocuments(t *testing.T) {
	h := newHandler(t)

	body := `{"title":"","content":"# hello"}`
	req := asOwner(httptest.NewRequest(http.MethodPost, "/api/documents/save", strings.NewReader(body)), "u1")
	rr := httptest.NewRecorder()
	h.SaveDocument(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var saved model.SaveDocResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.DocID)

	req = asOwner(httptest.NewRequest(http.MethodGet, "/api/documents", nil), "u1")
	rr = httptest.NewRecorder()
	h.GetDocuments(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var docs []model.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, model.DefaultTitle, docs[0].Title)
	assert.Equal(t, "# hello", docs[0].Content)
}

func TestSaveDocumentWithoutOwner(t *testing.T) {
	h := newHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/documents/save", strings.NewReader(`{"content":"x"}`))
	rr := httptest.NewRecorder()
	h.SaveDocument(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSaveDocumentBadBody(t *testing.T) {
	h := newHandler(t)

	req := asOwner(httptest.NewRequest(http.MethodPost, "/api/documents/save", strings.NewReader("{bad")), "u1")
	rr := httptest.NewRecorder()
	h.SaveDocument(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDeleteDocument(t *testing.T) {
	h := newHandler(t)

	req := asOwner(httptest.NewRequest(http.MethodPost, "/api/documents/save", strings.NewReader(`{"title":"T","content":"c"}`)), "u1")
	rr := httptest.NewRecorder()
	h.SaveDocument(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var saved model.SaveDocResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))

	req = asOwner(httptest.NewRequest(http.MethodDelete, "/api/documents/delete?docId="+saved.DocID, nil), "u1")
	rr = httptest.NewRecorder()
	h.DeleteDocument(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)

	req = asOwner(httptest.NewRequest(http.MethodGet, "/api/documents", nil), "u1")
	rr = httptest.NewRecorder()
	h.GetDocuments(rr, req)
	var docs []model.Document
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &docs))
	assert.Empty(t, docs)
}

func TestDeleteDocumentMissingID(t *testing.T) {
	h := newHandler(t)

	req := asOwner(httptest.NewRequest(http.MethodDelete, "/api/documents/delete", nil), "u1")
	rr := httptest.NewRecorder()
	h.DeleteDocument(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetDocumentsIsOwnerScopedUnderConcurrency(t *testing.T) {
	backing, err := localstore.New(t.TempDir())
	require.NoError(t, err)
	local := repository.NewLocalStore(backing, "documents_")
	remote := &memoryRemote{docs: map[string]model.Document{
		"a1": {ID: "a1", Title: "Alice's", Content: "alice-secret", OwnerID: "alice"},
		"b1": {ID: "b1", Title: "Bob's", Content: "bob-stuff", OwnerID: "bob"},
	}}
	h := NewDocumentHandler(service.NewDocumentService(remote, local))

	var wg sync.WaitGroup
	for _, owner := range []string{"alice", "bob"} {
		wg.Add(1)
		go func(owner string) {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				req := asOwner(httptest.NewRequest(http.MethodGet, "/api/documents", nil), owner)
				rr := httptest.NewRecorder()
				h.GetDocuments(rr, req)

				var docs []model.Document
				if err := json.Unmarshal(rr.Body.Bytes(), &docs); err != nil {
					t.Errorf("owner %s: bad response: %v", owner, err)
					return
				}
				for _, d := range docs {
					if d.OwnerID != owner {
						t.Errorf("owner %s received document %s belonging to %s", owner, d.ID, d.OwnerID)
						return
					}
				}
			}
		}(owner)
	}
	wg.Wait()
}

func TestMethodNotAllowed(t *testing.T) {
	h := newHandler(t)

	req := asOwner(httptest.NewRequest(http.MethodPut, "/api/documents", nil), "u1")
	rr := httptest.NewRecorder()
	h.GetDocuments(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
