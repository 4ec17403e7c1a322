package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"satsguard/internal/audit"
	"satsguard/internal/funding"
)

const maxBodyBytes = 64 * 1024

// Server is the inbound HTTP surface for proposal approvals.
type Server struct {
	addr     string
	verifier *Verifier
	manager  *funding.Manager
	recorder *audit.Recorder
	logger   zerolog.Logger
	srv      *http.Server
}

// NewServer constructs the approval server.
func NewServer(addr string, verifier *Verifier, manager *funding.Manager, recorder *audit.Recorder, logger zerolog.Logger) *Server {
	s := &Server{
		addr:     addr,
		verifier: verifier,
		manager:  manager,
		recorder: recorder,
		logger:   logger.With().Str("component", "webhook_server").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Post("/webhook/approval", s.handleApproval)
	r.Get("/webhook/health", s.handleHealth)
	r.Get("/webhook/proposals/{id}", s.handleGetProposal)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("webhook server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown webhook server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	}
}

type approvalRequest struct {
	ProposalID string `json:"proposal_id"`
	Status     string `json:"status"`
	ApprovedBy string `json:"approved_by"`
	Notes      string `json:"notes"`
}

type approvalResponse struct {
	Success    bool   `json:"success"`
	ProposalID string `json:"proposal_id"`
	Status     string `json:"status"`
}

func (s *Server) handleApproval(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	timestamp := r.Header.Get("X-Timestamp")
	signature := r.Header.Get("X-Signature")
	if err := s.verifier.Verify(timestamp, body, signature); err != nil {
		s.recordAuthFailure(r)
		s.writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var req approvalRequest
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed approval body")
		return
	}
	if req.ProposalID == "" {
		s.writeError(w, http.StatusBadRequest, "proposal_id is required")
		return
	}

	var (
		proposal *funding.Proposal
		opErr    error
	)
	switch req.Status {
	case "approved":
		proposal, opErr = s.manager.Approve(r.Context(), req.ProposalID, req.ApprovedBy, req.Notes)
	case "rejected":
		proposal, opErr = s.manager.Reject(r.Context(), req.ProposalID, req.ApprovedBy, req.Notes)
	default:
		s.writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}

	if opErr != nil {
		var conflict *funding.StateConflictError
		switch {
		case errors.Is(opErr, funding.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "unknown proposal")
		case errors.As(opErr, &conflict):
			s.writeJSON(w, http.StatusConflict, map[string]any{
				"success":     false,
				"proposal_id": conflict.ProposalID,
				"status":      string(conflict.Current),
				"error":       "state conflict",
			})
		default:
			s.logger.Error().Err(opErr).Str("proposal_id", req.ProposalID).Msg("approval processing failed")
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, approvalResponse{
		Success:    true,
		ProposalID: proposal.ID,
		Status:     string(proposal.Status),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	proposal, err := s.manager.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, funding.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "unknown proposal")
			return
		}
		s.logger.Error().Err(err).Str("proposal_id", id).Msg("proposal lookup failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"proposal_id": proposal.ID,
		"status":      string(proposal.Status),
		"amount_sats": proposal.AmountSats,
		"expires_at":  proposal.ExpiresAt,
	})
}

func (s *Server) recordAuthFailure(r *http.Request) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(r.Context(), audit.Event{
		Kind:   audit.KindAuthFailure,
		Action: "webhook_approval",
		Reason: "invalid signature or stale timestamp",
	})
	s.logger.Warn().Str("remote", r.RemoteAddr).Msg("webhook authentication failed")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
