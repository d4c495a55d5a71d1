package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/authcontext"
	paymentdomain "github.com/hashridge/hostbill/internal/payment/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type createPaymentRequest struct {
	CustomerID  string `json:"customer_id"`
	AmountCents int64  `json:"amount_cents"`
	Type        string `json:"type"`
	Narration   string `json:"narration"`
	PaidAt      string `json:"paid_at"`
}

func (s *Server) CreatePayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var paidAt *time.Time
	if raw := strings.TrimSpace(req.PaidAt); raw != "" {
		parsed, err := parseOptionalTime(raw, false)
		if err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		paidAt = parsed
	}

	resp, err := s.paymentSvc.Create(c.Request.Context(), paymentdomain.CreatePaymentRequest{
		CustomerID:  strings.TrimSpace(req.CustomerID),
		AmountCents: req.AmountCents,
		Type:        strings.TrimSpace(req.Type),
		Narration:   strings.TrimSpace(req.Narration),
		PaidAt:      paidAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPayments(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID string `form:"customer_id"`
		InvoiceID  string `form:"invoice_id"`
		Type       string `form:"type"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.paymentSvc.List(c.Request.Context(), paymentdomain.ListPaymentRequest{
		Pagination: query.Pagination,
		CustomerID: strings.TrimSpace(query.CustomerID),
		InvoiceID:  strings.TrimSpace(query.InvoiceID),
		Type:       strings.TrimSpace(query.Type),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type linkPaymentRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// LinkPayment attaches a payment to an invoice and reconciles it; the
// response reports the running total and whether the invoice flipped PAID.
func (s *Server) LinkPayment(c *gin.Context) {
	var req linkPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.paymentSvc.RecordPayment(c.Request.Context(),
		strings.TrimSpace(req.InvoiceID), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) UnlinkPayment(c *gin.Context) {
	payment, err := s.paymentSvc.UnlinkPayment(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": payment})
}

func (s *Server) DeletePayment(c *gin.Context) {
	if err := s.paymentSvc.DeletePayment(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) GetCustomerBalance(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	identity, ok := authcontext.IdentityFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	if !identity.Role.IsAdminTier() && identity.UserID.String() != id {
		AbortWithError(c, ErrForbidden)
		return
	}

	summary, err := s.paymentSvc.CustomerBalance(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": summary})
}
