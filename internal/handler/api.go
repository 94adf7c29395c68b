package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Stan-Mash/lease-management-system-sub002/internal/model"
	"github.com/Stan-Mash/lease-management-system-sub002/internal/service"
)

// CoreHandler exposes the trust core's operations over HTTP. Consumers are
// internal (admin panel, PDF renderer); the public verification endpoint
// lives in VerificationHandler.
type CoreHandler struct {
	workflow     *service.WorkflowService
	otp          *service.OTPService
	signature    *service.SignatureService
	documents    *service.DocumentService
	verification *service.VerificationService
}

// NewCoreHandler creates a CoreHandler.
func NewCoreHandler(
	workflow *service.WorkflowService,
	otp *service.OTPService,
	signature *service.SignatureService,
	documents *service.DocumentService,
	verification *service.VerificationService,
) *CoreHandler {
	return &CoreHandler{
		workflow:     workflow,
		otp:          otp,
		signature:    signature,
		documents:    documents,
		verification: verification,
	}
}

// Register mounts the handler's routes on mux.
func (h *CoreHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/leases", h.createLease)
	mux.HandleFunc("POST /api/v1/leases/{id}/transition", h.transition)
	mux.HandleFunc("POST /api/v1/leases/{id}/serial", h.assignSerial)
	mux.HandleFunc("POST /api/v1/leases/{id}/otp", h.requestOTP)
	mux.HandleFunc("POST /api/v1/leases/{id}/otp/resend", h.resendOTP)
	mux.HandleFunc("POST /api/v1/leases/{id}/otp/verify", h.verifyOTP)
	mux.HandleFunc("POST /api/v1/leases/{id}/signature", h.captureSignature)
	mux.HandleFunc("GET /api/v1/leases/{id}/signing-status", h.signingStatus)
	mux.HandleFunc("POST /api/v1/documents", h.uploadDocument)
	mux.HandleFunc("POST /api/v1/documents/{id}/status", h.documentStatus)
	mux.HandleFunc("POST /api/v1/documents/{id}/integrity-check", h.integrityCheck)
	mux.HandleFunc("GET /api/v1/documents/{id}/audit", h.documentAudit)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the service taxonomy onto HTTP statuses. Everything in
// the taxonomy is recoverable and gets a 4xx with an actionable message.
func writeError(w http.ResponseWriter, err error) {
	var (
		invalidTransition    *service.InvalidTransitionError
		invalidDocTransition *service.InvalidDocumentTransitionError
		conflict             *service.TransitionConflictError
		sendingFailure       *service.SendingFailureError
	)
	switch {
	case errors.As(err, &invalidTransition), errors.As(err, &invalidDocTransition):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrRateLimitExceeded):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrAlreadySigned):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrSigningIncomplete):
		writeJSON(w, http.StatusPreconditionFailed, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrLeaseNotFound), errors.Is(err, service.ErrDocumentNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &sendingFailure):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		log.Error().Err(err).Msg("Internal error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func pathUUID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

type createLeaseRequest struct {
	ReferenceNumber string    `json:"reference_number"`
	TenantID        uuid.UUID `json:"tenant_id"`
	LandlordID      uuid.UUID `json:"landlord_id"`
	PropertyID      uuid.UUID `json:"property_id"`
	UnitLabel       string    `json:"unit_label"`
	MonthlyRent     int64     `json:"monthly_rent"`
	Deposit         int64     `json:"deposit"`
	Currency        string    `json:"currency"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
}

func (h *CoreHandler) createLease(w http.ResponseWriter, r *http.Request) {
	var req createLeaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	lease := &model.Lease{
		ReferenceNumber: req.ReferenceNumber,
		TenantID:        req.TenantID,
		LandlordID:      req.LandlordID,
		PropertyID:      req.PropertyID,
		UnitLabel:       req.UnitLabel,
		MonthlyRent:     req.MonthlyRent,
		Deposit:         req.Deposit,
		Currency:        req.Currency,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}
	if err := h.workflow.CreateDraft(r.Context(), lease); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, lease)
}

type transitionRequest struct {
	Target string    `json:"target"`
	Actor  uuid.UUID `json:"actor"`
}

func (h *CoreHandler) transition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	target, err := model.ParseWorkflowState(req.Target)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	lease, err := h.workflow.Transition(r.Context(), id, target, req.Actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

func (h *CoreHandler) assignSerial(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	lease, err := h.verification.AssignSerial(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lease)
}

type otpRequest struct {
	Phone string `json:"phone"`
}

type otpResponse struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	Delivered   bool      `json:"delivered"`
}

func (h *CoreHandler) requestOTP(w http.ResponseWriter, r *http.Request) {
	h.issueOTP(w, r, false)
}

func (h *CoreHandler) resendOTP(w http.ResponseWriter, r *http.Request) {
	h.issueOTP(w, r, true)
}

func (h *CoreHandler) issueOTP(w http.ResponseWriter, r *http.Request, resend bool) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req otpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "phone is required"})
		return
	}

	var (
		ch  *model.OTPChallenge
		err error
	)
	if resend {
		ch, err = h.otp.Resend(r.Context(), id, req.Phone, model.PurposeDigitalSigning)
	} else {
		ch, err = h.otp.GenerateAndSend(r.Context(), id, req.Phone, model.PurposeDigitalSigning)
	}
	if err != nil {
		var sendingFailure *service.SendingFailureError
		if errors.As(err, &sendingFailure) {
			// The code is persisted; the caller may retry delivery.
			writeJSON(w, http.StatusBadGateway, otpResponse{
				ChallengeID: sendingFailure.Challenge.ID,
				ExpiresAt:   sendingFailure.Challenge.ExpiresAt,
				Delivered:   false,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, otpResponse{ChallengeID: ch.ID, ExpiresAt: ch.ExpiresAt, Delivered: true})
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

func (h *CoreHandler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "code is required"})
		return
	}

	verified, err := h.otp.Verify(r.Context(), id, req.Code, model.PurposeDigitalSigning)
	if err != nil {
		writeError(w, err)
		return
	}
	if !verified {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: service.ErrExpiredOrInvalidCode.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

type signatureRequest struct {
	Image      []byte   `json:"image"`
	Modality   string   `json:"modality"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	ScreenInfo string   `json:"screen_info,omitempty"`
}

func (h *CoreHandler) captureSignature(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req signatureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Image) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "signature image is required"})
		return
	}

	rec, err := h.signature.CaptureSignature(r.Context(), id, service.CapturePayload{
		Image:      req.Image,
		Modality:   model.CaptureModality(req.Modality),
		Latitude:   req.Latitude,
		Longitude:  req.Longitude,
		UserAgent:  r.UserAgent(),
		ScreenInfo: req.ScreenInfo,
		IPAddress:  clientIP(r),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *CoreHandler) signingStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	status, err := h.signature.GetSigningStatus(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type uploadRequest struct {
	LeaseID  uuid.UUID `json:"lease_id"`
	FileName string    `json:"file_name"`
	Content  []byte    `json:"content"`
	Actor    uuid.UUID `json:"actor"`
}

func (h *CoreHandler) uploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Content) == 0 || req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "lease_id, file_name and content are required"})
		return
	}

	doc, err := h.documents.Upload(r.Context(), req.LeaseID, req.FileName, req.Content, req.Actor, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type documentStatusRequest struct {
	Target string     `json:"target"`
	Actor  *uuid.UUID `json:"actor,omitempty"`
}

func (h *CoreHandler) documentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	var req documentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	target := model.DocumentStatus(req.Target)
	if !target.IsValid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unknown document status"})
		return
	}

	doc, err := h.documents.TransitionStatus(r.Context(), id, target, req.Actor, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *CoreHandler) integrityCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	verified, err := h.documents.VerifyIntegrity(r.Context(), id, nil, clientIP(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"integrity_verified": verified})
}

func (h *CoreHandler) documentAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r)
	if !ok {
		return
	}
	entries, err := h.documents.AuditTrail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
