package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/ec-storefront/internal/api/middleware"
	"github.com/example/ec-storefront/internal/apperr"
	"github.com/example/ec-storefront/internal/command"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/notification"
	"github.com/example/ec-storefront/internal/query"
	"github.com/example/ec-storefront/internal/toast"
)

type Handlers struct {
	cmdHandler   *command.Handler
	queryHandler *query.Handler
	feed         *notification.Feed
	board        *toast.Board
	logger       *slog.Logger
}

func NewHandlers(cmdHandler *command.Handler, queryHandler *query.Handler, feed *notification.Feed, board *toast.Board, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cmdHandler:   cmdHandler,
		queryHandler: queryHandler,
		feed:         feed,
		board:        board,
		logger:       logger,
	}
}

// Order Handlers

type placeOrderRequest struct {
	StoreID      string            `json:"store_id"`
	Items        []order.OrderItem `json:"items"`
	Notes        string            `json:"notes,omitempty"`
	ContactEmail string            `json:"contact_email,omitempty"`
}

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var req placeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, err)
		return
	}

	o, err := h.cmdHandler.PlaceOrder(r.Context(), command.PlaceOrder{
		StoreID:      req.StoreID,
		CustomerID:   actor.ID,
		Items:        req.Items,
		Notes:        req.Notes,
		ContactEmail: req.ContactEmail,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var statuses []order.Status
	for _, raw := range r.URL.Query()["status"] {
		s := order.Status(raw)
		if !s.Valid() {
			respondBadRequest(w, fmt.Errorf("unknown status %q", raw))
			return
		}
		statuses = append(statuses, s)
	}

	orders, err := h.queryHandler.ListOrders(r.Context(), actor, statuses...)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	o, err := h.queryHandler.GetOrder(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(o.Version)))
	respondJSON(w, http.StatusOK, o)
}

func (h *Handlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	events, err := h.queryHandler.History(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if events == nil {
		events = []order.Event{}
	}
	respondJSON(w, http.StatusOK, events)
}

type transitionRequest struct {
	Status order.Status `json:"status"`
}

func (h *Handlers) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, err)
		return
	}
	version, err := ifMatchVersion(r)
	if err != nil {
		respondBadRequest(w, err)
		return
	}

	o, err := h.cmdHandler.TransitionOrder(r.Context(), command.TransitionOrder{
		OrderID:         r.PathValue("id"),
		StoreID:         actor.ID,
		Status:          req.Status,
		ExpectedVersion: version,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

type cancellationRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handlers) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var req cancellationRequest
	if err := decodeOptional(r, &req); err != nil {
		respondBadRequest(w, err)
		return
	}

	o, err := h.cmdHandler.RequestCancellation(r.Context(), command.RequestCancellation{
		OrderID:    r.PathValue("id"),
		CustomerID: actor.ID,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

type decisionRequest struct {
	Decision order.Decision `json:"decision"`
	Reason   string         `json:"reason,omitempty"`
}

func (h *Handlers) DecideCancellation(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, err)
		return
	}

	o, err := h.cmdHandler.DecideCancellation(r.Context(), command.DecideCancellation{
		OrderID:  r.PathValue("id"),
		StoreID:  actor.ID,
		Decision: req.Decision,
		Reason:   req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Notification Handlers

func (h *Handlers) PullNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	respondJSON(w, http.StatusOK, h.feed.Pull(r.Context(), actor.Recipient()))
}

// StreamNotifications pushes the caller's feed as server-sent events until
// the client goes away.
func (h *Handlers) StreamNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	_ = h.feed.Subscribe(r.Context(), actor.Recipient(), func(events []order.Event) {
		for _, e := range events {
			data, err := json.Marshal(e)
			if err != nil {
				h.logger.Error("failed to encode notification", "error", err, "event_id", e.ID)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", e.ID, data)
		}
		flusher.Flush()
	})
}

// Toast Handlers

type toastsResponse struct {
	Toasts []toast.Item `json:"toasts"`
	Count  int          `json:"count"`
}

// SyncToasts drains the caller's feed into their toast queue and returns
// what is currently visible.
func (h *Handlers) SyncToasts(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	recipient := actor.Recipient()

	h.board.Deliver(recipient, h.feed.Pull(r.Context(), recipient))

	toasts := h.board.Active(recipient)
	respondJSON(w, http.StatusOK, toastsResponse{
		Toasts: toasts,
		Count:  len(toasts),
	})
}

func (h *Handlers) DismissToast(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFromContext(r.Context())
	h.board.Dismiss(actor.Recipient(), r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err, "method", r.Method, "path", r.URL.Path)
	}
	respondJSON(w, status, errorResponse{
		Error:     err.Error(),
		Kind:      apperr.Kind(err),
		Retryable: apperr.Retryable(err),
	})
}

func respondBadRequest(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusBadRequest, errorResponse{
		Error: err.Error(),
		Kind:  "bad_request",
	})
}

// decodeOptional decodes a JSON body if one was sent.
func decodeOptional(r *http.Request, dst any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// ifMatchVersion reads the order version a client last saw. An absent
// header means no staleness check.
func ifMatchVersion(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.Header.Get("If-Match"))
	if raw == "" || raw == "*" {
		return 0, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	v, err := strconv.Atoi(strings.Trim(raw, `"`))
	if err != nil || v < 1 {
		return 0, fmt.Errorf("invalid If-Match %q", r.Header.Get("If-Match"))
	}
	return v, nil
}
