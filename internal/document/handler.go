package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"markdraft/internal/document/model"
	"markdraft/internal/document/service"
	"markdraft/middleware"
	"markdraft/pkg/logger"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// GetDocuments reloads the owner's documents through the coordinator and
// returns them newest-first. Never fails: an unreachable remote store
// degrades through the local fallback, worst case an empty list.
func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := middleware.OwnerID(r)
	h.Service.LoadAll(r.Context(), ownerID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.Service.List(ownerID))
}

func (h *DocumentHandler) SaveDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req model.SaveDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ownerID := middleware.OwnerID(r)
	doc := model.Document{ID: req.ID, Title: req.Title, Content: req.Content}

	docID, err := h.Service.Save(r.Context(), ownerID, doc)
	if err != nil {
		if errors.Is(err, service.ErrNotAuthenticated) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		logger.Sugar.Errorf("Error saving document: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.SaveDocResponse{DocID: docID})
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	ownerID := middleware.OwnerID(r)
	if err := h.Service.Delete(r.Context(), ownerID, docID); err != nil {
		if errors.Is(err, service.ErrNotAuthenticated) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		logger.Sugar.Errorf("Handler: Failed to delete document %s: %v", docID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Document deleted successfully"))
}
