package router

import (
	"net/http"

	"markdraft/internal/assist"
	docHandler "markdraft/internal/document"
	"markdraft/internal/document/service"
	"markdraft/internal/export"
	"markdraft/middleware"
	"markdraft/socket"
)

// Deps are the wired services the HTTP layer exposes.
type Deps struct {
	Documents *service.DocumentService
	Hub       *socket.Hub
	Export    *export.Handler
	Assist    *assist.Handler
}

func Setup(deps Deps) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware

	// WebSocket editor sessions
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(deps.Hub, w, r, middleware.OwnerID(r))
	})
	mux.Handle("/ws", auth(wsHandler))

	// Documents
	documents := docHandler.NewDocumentHandler(deps.Documents)
	mux.Handle("/api/documents", auth(http.HandlerFunc(documents.GetDocuments)))
	mux.Handle("/api/documents/save", auth(http.HandlerFunc(documents.SaveDocument)))
	mux.Handle("/api/documents/delete", auth(http.HandlerFunc(documents.DeleteDocument)))

	// Preview and export
	mux.Handle("/api/render", auth(http.HandlerFunc(deps.Export.Render)))
	mux.Handle("/api/export", auth(http.HandlerFunc(deps.Export.Export)))

	// AI assistance, settings, profile
	mux.Handle("/api/ai/generate", auth(http.HandlerFunc(deps.Assist.Generate)))
	mux.Handle("/api/ai/validate-key", auth(http.HandlerFunc(deps.Assist.ValidateKey)))
	mux.Handle("/api/settings/ai", auth(http.HandlerFunc(deps.Assist.AISettings)))
	mux.Handle("/api/profile", auth(http.HandlerFunc(deps.Assist.Profile)))

	return middleware.CORSMiddleware(mux)
}
