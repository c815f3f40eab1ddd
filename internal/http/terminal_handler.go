package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/checkout"
)

const maxTerminalIDLength = 64

type ControllerRegistry interface {
	Get(terminalID string) *checkout.Controller
}

type TerminalHandler struct {
	registry ControllerRegistry
	logger   *zap.Logger
}

func NewTerminalHandler(registry ControllerRegistry, logger *zap.Logger) *TerminalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TerminalHandler{registry: registry, logger: logger}
}

// terminalID validates {terminal_id}. It writes the error response itself
// and returns false when the ID is unusable.
func terminalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "terminal_id"))
	if id == "" || len(id) > maxTerminalIDLength {
		respondError(w, http.StatusBadRequest, "invalid_terminal_id", "terminal_id must be 1 to 64 characters")
		return "", false
	}
	return id, true
}

func (h *TerminalHandler) controller(w http.ResponseWriter, r *http.Request) *checkout.Controller {
	id, ok := terminalID(w, r)
	if !ok {
		return nil
	}
	return h.registry.Get(id)
}

// mutate runs fn on the terminal's controller. When the controller was
// evicted between lookup and call, fn runs once more on its replacement.
func mutate[T any](h *TerminalHandler, id string, fn func(*checkout.Controller) (T, error)) (T, error) {
	v, err := fn(h.registry.Get(id))
	if errors.Is(err, domain.ErrSessionEvicted) {
		h.logger.Debug("terminal session evicted during request", zap.String("terminal_id", id))
		return fn(h.registry.Get(id))
	}
	return v, err
}

func decodeBody(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// GET /catalog
func (h *TerminalHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := c.Browse(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCatalogDTO(view))
}

// PUT /catalog/filter
func (h *TerminalHandler) SetFilter(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	var req FilterRequestDTO
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	view, err := mutate(h, id, func(c *checkout.Controller) (checkout.BrowseView, error) {
		if req.CategoryID != nil {
			if err := c.SelectCategory(*req.CategoryID); err != nil {
				return checkout.BrowseView{}, err
			}
		}
		if req.Search != nil {
			if err := c.SetSearch(*req.Search); err != nil {
				return checkout.BrowseView{}, err
			}
		}
		return c.Browse(r.Context())
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toCatalogDTO(view))
}

// GET /order
func (h *TerminalHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(c.Order()))
}

// DELETE /order
func (h *TerminalHandler) ClearOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	view, err := mutate(h, id, (*checkout.Controller).ClearItems)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}

// POST /order/items
func (h *TerminalHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	var req AddItemRequestDTO
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		view checkout.OrderView
		err  error
	)
	switch {
	case req.ProductID != "":
		quantity := 1
		if req.Quantity != nil {
			quantity = *req.Quantity
		}
		view, err = mutate(h, id, func(c *checkout.Controller) (checkout.OrderView, error) {
			return c.QuickAdd(r.Context(), req.ProductID, quantity)
		})
	case req.Barcode != "":
		view, err = mutate(h, id, func(c *checkout.Controller) (checkout.OrderView, error) {
			return c.QuickAddBarcode(r.Context(), req.Barcode)
		})
	default:
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id or barcode is required")
		return
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toOrderDTO(view))
}

// PUT /order/items/{product_id}
func (h *TerminalHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	var req QuantityRequestDTO
	if err := decodeBody(r, &req); err != nil || req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required")
		return
	}
	view, err := mutate(h, id, func(c *checkout.Controller) (checkout.OrderView, error) {
		return c.UpdateQuantity(chi.URLParam(r, "product_id"), *req.Quantity)
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}

// DELETE /order/items/{product_id}
func (h *TerminalHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	view, err := mutate(h, id, func(c *checkout.Controller) (checkout.OrderView, error) {
		return c.RemoveItem(chi.URLParam(r, "product_id"))
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}

// POST /adjustment
func (h *TerminalHandler) OpenAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	var req OpenAdjustmentRequestDTO
	if err := decodeBody(r, &req); err != nil || req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "product_id is required")
		return
	}
	view, err := mutate(h, id, func(c *checkout.Controller) (checkout.AdjustmentView, error) {
		return c.OpenAdjustment(r.Context(), req.ProductID)
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAdjustmentDTO(view))
}

// GET /adjustment
func (h *TerminalHandler) GetAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustment(w, r, func(c *checkout.Controller) (checkout.AdjustmentView, error) {
		return c.Adjustment()
	})
}

// POST /adjustment/increment
func (h *TerminalHandler) IncrementAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustment(w, r, (*checkout.Controller).IncrementStaged)
}

// POST /adjustment/decrement
func (h *TerminalHandler) DecrementAdjustment(w http.ResponseWriter, r *http.Request) {
	h.adjustment(w, r, (*checkout.Controller).DecrementStaged)
}

// PUT /adjustment/quantity
func (h *TerminalHandler) SetAdjustmentQuantity(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequestDTO
	if err := decodeBody(r, &req); err != nil || req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required")
		return
	}
	h.adjustment(w, r, func(c *checkout.Controller) (checkout.AdjustmentView, error) {
		return c.SetStaged(*req.Quantity)
	})
}

// POST /adjustment/commit
func (h *TerminalHandler) CommitAdjustment(w http.ResponseWriter, r *http.Request) {
	h.closeAdjustment(w, r, (*checkout.Controller).CommitAdjustment)
}

// POST /adjustment/remove
func (h *TerminalHandler) RemoveAdjusted(w http.ResponseWriter, r *http.Request) {
	h.closeAdjustment(w, r, (*checkout.Controller).RemoveAdjusted)
}

// DELETE /adjustment
func (h *TerminalHandler) CancelAdjustment(w http.ResponseWriter, r *http.Request) {
	h.closeAdjustment(w, r, (*checkout.Controller).CancelAdjustment)
}

func (h *TerminalHandler) adjustment(w http.ResponseWriter, r *http.Request, fn func(*checkout.Controller) (checkout.AdjustmentView, error)) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := fn(c)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAdjustmentDTO(view))
}

func (h *TerminalHandler) closeAdjustment(w http.ResponseWriter, r *http.Request, fn func(*checkout.Controller) (checkout.OrderView, error)) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := fn(c)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}

// POST /payment
func (h *TerminalHandler) OpenPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := terminalID(w, r)
	if !ok {
		return
	}
	view, err := mutate(h, id, (*checkout.Controller).OpenPayment)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toPaymentDTO(view))
}

// GET /payment
func (h *TerminalHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := c.PaymentPreview()
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(view))
}

// PUT /payment/received
// A null or absent amount clears the input, meaning exact payment.
func (h *TerminalHandler) SetReceived(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	var req ReceivedRequestDTO
	if err := decodeBody(r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var (
		view checkout.PaymentView
		err  error
	)
	if req.Amount == nil {
		view, err = c.ClearReceived()
	} else {
		view, err = c.SetReceived(*req.Amount)
	}
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toPaymentDTO(view))
}

// POST /payment/submit
// The commit is detached from the client connection so a dropped request
// cannot leave the sale half known; the commit timeout still bounds it.
func (h *TerminalHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	tx, err := c.SubmitPayment(context.WithoutCancel(r.Context()))
	if err != nil {
		h.logger.Warn("payment submit failed",
			zap.String("terminal_id", c.TerminalID()),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, toReceiptDTO(tx))
}

// DELETE /payment
func (h *TerminalHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := c.CancelPayment()
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}

// GET /receipt
func (h *TerminalHandler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	tx, err := c.Receipt(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toReceiptDTO(tx))
}

// POST /receipt/new-order
func (h *TerminalHandler) StartNewOrder(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	if c == nil {
		return
	}
	view, err := c.StartNewOrder()
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toOrderDTO(view))
}
