package service

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/earn-bid/pkg/app/errors"
	apphttp "github.com/chainsafe/earn-bid/pkg/app/http"
)

const maxBodySize = 1 << 20

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the bid workflow endpoints on the given chi router
func RegisterRoutes(r chi.Router, service Service, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Route("/bids", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.open))
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", apphttp.HandleError(h.get))
			r.Delete("/", apphttp.HandleError(h.close))
			r.Put("/amount", apphttp.HandleError(h.setAmount))
			r.Post("/amount/commit", apphttp.HandleError(h.commitAmount))
			r.Post("/connect", apphttp.HandleError(h.requestWallet))
			r.Post("/approve", apphttp.HandleError(h.approve))
			r.Post("/submit", apphttp.HandleError(h.submit))
		})
	})

	r.Post("/wallet/connect", apphttp.HandleError(h.connectWallet))
	r.Post("/wallet/disconnect", apphttp.HandleError(h.disconnectWallet))
}

func (h *HTTP) open(w http.ResponseWriter, r *http.Request) error {
	var req OpenRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	view, err := h.service.Open(r.Context(), &req)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusCreated, view)
	return nil
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	view, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, view)
	return nil
}

func (h *HTTP) close(w http.ResponseWriter, r *http.Request) error {
	if err := h.service.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

type amountRequest struct {
	Amount string `json:"amount"`
}

func (h *HTTP) setAmount(w http.ResponseWriter, r *http.Request) error {
	var req amountRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}
	view, err := h.service.SetAmount(r.Context(), chi.URLParam(r, "id"), req.Amount)
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, view)
	return nil
}

func (h *HTTP) commitAmount(w http.ResponseWriter, r *http.Request) error {
	view, err := h.service.CommitAmount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, view)
	return nil
}

func (h *HTTP) requestWallet(w http.ResponseWriter, r *http.Request) error {
	view, err := h.service.RequestWallet(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, view)
	return nil
}

// approve returns 202 once the approval is in flight; clients poll GET /bids/{id}.
func (h *HTTP) approve(w http.ResponseWriter, r *http.Request) error {
	view, err := h.service.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusAccepted, view)
	return nil
}

// submit returns 202 once the bid is in flight; clients poll GET /bids/{id}.
func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	view, err := h.service.SubmitBid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusAccepted, view)
	return nil
}

func (h *HTTP) connectWallet(w http.ResponseWriter, r *http.Request) error {
	st, err := h.service.ConnectWallet(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, st)
	return nil
}

func (h *HTTP) disconnectWallet(w http.ResponseWriter, r *http.Request) error {
	st, err := h.service.DisconnectWallet(r.Context())
	if err != nil {
		return err
	}
	h.writeJSON(w, http.StatusOK, st)
	return nil
}

func decodeBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func (h *HTTP) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to write response", zap.Error(err))
	}
}
