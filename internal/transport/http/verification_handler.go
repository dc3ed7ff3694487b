// Copyright 2026 The Kitchen Konnect Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kitchenkonnect/kkauth/internal/identity"
	"github.com/kitchenkonnect/kkauth/internal/verification"
)

// VerificationResponse is the public view of a verification request.
type VerificationResponse struct {
	ID            string     `json:"id"`
	RequesterID   string     `json:"requester_id"`
	RequestedRole string     `json:"requested_role"`
	Justification string     `json:"justification"`
	Status        string     `json:"status"`
	ReviewerID    *string    `json:"reviewer_id"`
	ReviewedAt    *time.Time `json:"reviewed_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

func newVerificationResponse(req *verification.Request) VerificationResponse {
	return VerificationResponse{
		ID:            req.ID,
		RequesterID:   req.RequesterID,
		RequestedRole: req.RequestedRole.String(),
		Justification: req.Justification,
		Status:        string(req.Status),
		ReviewerID:    req.ReviewerID,
		ReviewedAt:    req.ReviewedAt,
		CreatedAt:     req.CreatedAt,
	}
}

// SubmitVerificationRequest asks for an elevated role for the caller.
type SubmitVerificationRequest struct {
	RequestedRole       string `json:"requested_role"`
	Justification       string `json:"justification"`
	VerificationMessage string `json:"verification_message"`
}

// SubmitVerification files a request for the caller. The subject cannot be
// chosen by the client.
func (h *Handler) SubmitVerification(w http.ResponseWriter, r *http.Request) {
	var req SubmitVerificationRequest
	if err := decodeJSON(r, &req, false); err != nil {
		respondError(w, r, err)
		return
	}

	role, err := identity.ParseRole(req.RequestedRole)
	if err != nil {
		respondError(w, r, verification.ErrInvalidRole)
		return
	}
	justification := req.Justification
	if justification == "" {
		justification = req.VerificationMessage
	}

	created, err := h.verificationService.Submit(r.Context(), GetUserID(r.Context()), role, justification)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, newVerificationResponse(created))
}

// ListVerificationRequests lists requests, filtered by ?status= when given.
func (h *Handler) ListVerificationRequests(w http.ResponseWriter, r *http.Request) {
	status, err := verification.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	reqs, err := h.verificationService.List(r.Context(), status)
	if err != nil {
		respondError(w, r, err)
		return
	}

	resp := make([]VerificationResponse, 0, len(reqs))
	for _, req := range reqs {
		resp = append(resp, newVerificationResponse(req))
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"requests": resp,
		"count":    len(resp),
	})
}

// GetVerificationRequest returns one request.
func (h *Handler) GetVerificationRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.verificationService.Get(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newVerificationResponse(req))
}

// ReviewRequest carries the reviewer's decision.
type ReviewRequest struct {
	Status string `json:"status"`
}

// ReviewVerificationRequest approves or rejects a pending request.
func (h *Handler) ReviewVerificationRequest(w http.ResponseWriter, r *http.Request) {
	var body ReviewRequest
	if err := decodeJSON(r, &body, false); err != nil {
		respondError(w, r, err)
		return
	}

	decision, err := verification.ParseStatus(body.Status)
	if err != nil {
		respondError(w, r, verification.ErrInvalidDecision)
		return
	}

	reviewed, err := h.verificationService.Review(r.Context(), GetUser(r.Context()), chi.URLParam(r, "requestID"), decision)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, newVerificationResponse(reviewed))
}
