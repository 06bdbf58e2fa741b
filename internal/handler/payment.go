package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/StefanPetk0vic/Locus/internal/domain"
	"github.com/StefanPetk0vic/Locus/internal/middleware"
	"github.com/StefanPetk0vic/Locus/internal/service"
)

const (
	signatureHeader = "Stripe-Signature"
	maxWebhookBody  = 64 << 10
)

// PaymentHandler handles HTTP requests for payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// AddPaymentMethodRequest is the HTTP request body for saving a card.
type AddPaymentMethodRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// InvoiceResponse is the HTTP representation of an invoice.
type InvoiceResponse struct {
	ID        string     `json:"id"`
	RideID    string     `json:"ride_id"`
	Amount    float64    `json:"amount"`
	Currency  string     `json:"currency"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

func toInvoiceResponse(i *domain.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:        i.ID,
		RideID:    i.RideID,
		Amount:    i.Amount,
		Currency:  i.Currency,
		Status:    string(i.Status),
		CreatedAt: i.CreatedAt,
		PaidAt:    i.PaidAt,
	}
}

// Webhook handles POST /v1/payments/webhook. The body is read raw because
// the signature covers the exact bytes.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	if err := h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader(signatureHeader)); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"received": true})
}

// ListInvoices handles GET /v1/payments/invoices
func (h *PaymentHandler) ListInvoices(c *gin.Context) {
	invoices, err := h.paymentService.ListInvoices(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]InvoiceResponse, 0, len(invoices))
	for _, i := range invoices {
		out = append(out, toInvoiceResponse(i))
	}
	respondJSON(c, http.StatusOK, out)
}

// AddPaymentMethod handles POST /v1/payments/methods
func (h *PaymentHandler) AddPaymentMethod(c *gin.Context) {
	var req AddPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	card, err := h.paymentService.AddPaymentMethod(c.Request.Context(), middleware.CallerID(c), req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, card)
}

// GetPaymentMethod handles GET /v1/payments/methods. The body is null when
// no card is saved.
func (h *PaymentHandler) GetPaymentMethod(c *gin.Context) {
	card, err := h.paymentService.GetPaymentMethod(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, card)
}

// RemovePaymentMethod handles DELETE /v1/payments/methods
func (h *PaymentHandler) RemovePaymentMethod(c *gin.Context) {
	if err := h.paymentService.RemovePaymentMethod(c.Request.Context(), middleware.CallerID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
