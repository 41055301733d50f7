// Package export serves the markdown preview and PDF download endpoints.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"markdraft/internal/markdown"
	"markdraft/internal/pdf"
	"markdraft/pkg/logger"
)

type Handler struct {
	Renderer *markdown.Renderer
	Exporter *pdf.Exporter
}

func NewHandler(renderer *markdown.Renderer, exporter *pdf.Exporter) *Handler {
	return &Handler{Renderer: renderer, Exporter: exporter}
}

type renderRequest struct {
	Content string `json:"content"`
}

type renderResponse struct {
	HTML string `json:"html"`
}

// Render converts markdown to an HTML fragment. Always succeeds; broken
// input yields the renderer's fixed error fragment.
func (h *Handler) Render(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(renderResponse{HTML: h.Renderer.Render(req.Content)})
}

type exportRequest struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

// Export renders markdown to print-styled HTML and streams the generated
// PDF as a download. One export at a time; a second request while busy
// gets 409.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.Exporter.IsGenerating() {
		http.Error(w, "An export is already in progress", http.StatusConflict)
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	htmlContent := h.Renderer.Render(req.Content)
	filename, data, err := h.Exporter.Export(r.Context(), htmlContent, req.Filename)
	if err != nil {
		if errors.Is(err, pdf.ErrEmptyContent) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Sugar.Errorf("PDF generation error: %v", err)
		http.Error(w, "PDF generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
