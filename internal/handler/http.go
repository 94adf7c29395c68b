package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/service"
)

// VerificationHandler serves the public document verification endpoint.
// Anyone holding a printed lease can check it against the system record;
// the response never includes financial or personal-identifying fields.
type VerificationHandler struct {
	verification *service.VerificationService
}

// NewVerificationHandler creates a VerificationHandler.
func NewVerificationHandler(verification *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verification: verification}
}

// Register mounts the handler's routes on mux.
func (h *VerificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/verify", h.verify)
}

type verifyResponse struct {
	Verified bool                      `json:"verified"`
	Lease    *service.PublicLeaseFacts `json:"lease,omitempty"`
}

func (h *VerificationHandler) verify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serial := r.URL.Query().Get("serial")
	hash := r.URL.Query().Get("hash")
	if serial == "" || hash == "" {
		http.Error(w, "serial and hash are required", http.StatusBadRequest)
		return
	}

	facts, verified, err := h.verification.VerifyPublic(r.Context(), serial, hash)
	if err != nil {
		log.Error().Err(err).Msg("Public verification lookup failed")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !verified {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(verifyResponse{Verified: false})
		return
	}
	json.NewEncoder(w).Encode(verifyResponse{Verified: true, Lease: facts})
}
