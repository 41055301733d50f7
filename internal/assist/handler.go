// Package assist serves the AI writing operations and the settings and
// profile blobs they depend on.
package assist

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"markdraft/internal/ai"
	"markdraft/internal/settings"
	"markdraft/middleware"
	"markdraft/pkg/logger"
)

type Handler struct {
	Settings *settings.Manager

	mu       sync.Mutex
	services map[string]*ai.Service
}

func NewHandler(manager *settings.Manager) *Handler {
	return &Handler{Settings: manager, services: make(map[string]*ai.Service)}
}

// serviceFor returns the owner's dedicated AI service, created on first
// use. Owners never share a client: a shared instance would let one
// owner's request run under another owner's key, and would mix their
// operation histories.
func (h *Handler) serviceFor(ownerID string) *ai.Service {
	h.mu.Lock()
	defer h.mu.Unlock()
	svc, ok := h.services[ownerID]
	if !ok {
		svc = ai.NewService()
		h.services[ownerID] = svc
	}
	return svc
}

type generateRequest struct {
	Operation ai.Operation `json:"operation"`
	Text      string       `json:"text"`
}

type generateResponse struct {
	Result string `json:"result"`
}

// Generate runs one writing operation with the owner's API key and the
// persisted generation settings. The client is (re)initialized per request
// so a key or model change in the profile takes effect immediately.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "Text is required", http.StatusBadRequest)
		return
	}

	ownerID := middleware.OwnerID(r)
	svc := h.serviceFor(ownerID)
	profile := h.Settings.LoadProfile(ownerID)
	if err := svc.Initialize(r.Context(), profile.GeminiAPIKey, h.Settings.LoadAI()); err != nil {
		if errors.Is(err, ai.ErrNotInitialized) {
			http.Error(w, "No Gemini API key found. Add your API key in the profile.", http.StatusPreconditionFailed)
			return
		}
		logger.Sugar.Errorf("Failed to initialize Gemini service: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	result, err := svc.Generate(r.Context(), req.Operation, req.Text)
	if err != nil {
		logger.Sugar.Errorf("AI operation %s failed: %v", req.Operation, err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(generateResponse{Result: result})
}

type validateKeyRequest struct {
	APIKey string `json:"api_key"`
}

type validateKeyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req validateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	valid, msg := h.serviceFor(middleware.OwnerID(r)).ValidateAPIKey(r.Context(), req.APIKey)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(validateKeyResponse{Valid: valid, Error: msg})
}

// AISettings serves and updates the shared AI settings blob. Loads run the
// legacy migration, so a GET after an upgrade already returns the new
// layout.
func (h *Handler) AISettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.Settings.LoadAI())

	case http.MethodPut:
		var s settings.AISettings
		if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Settings.SaveAI(s); err != nil {
			logger.Sugar.Errorf("Failed to save AI settings: %v", err)
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Profile serves and updates the owner's profile blob.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.OwnerID(r)

	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(h.Settings.LoadProfile(ownerID))

	case http.MethodPut:
		var p settings.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if err := h.Settings.SaveProfile(ownerID, p); err != nil {
			logger.Sugar.Errorf("Failed to save profile for owner %s: %v", ownerID, err)
			http.Error(w, "Failed to save profile", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
