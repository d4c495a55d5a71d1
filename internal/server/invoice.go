package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/authcontext"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type createInvoiceRequest struct {
	CustomerID     string `json:"customer_id"`
	MinerCount     *int64 `json:"miner_count"`
	UnitPriceCents *int64 `json:"unit_price_cents"`
	Notes          string `json:"notes"`
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.Create(c.Request.Context(), invoicedomain.CreateInvoiceRequest{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		MinerCount:     req.MinerCount,
		UnitPriceCents: req.UnitPriceCents,
		Notes:          strings.TrimSpace(req.Notes),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var query struct {
		pagination.Pagination
		CustomerID    string `form:"customer_id"`
		Status        string `form:"status"`
		InvoiceNumber string `form:"invoice_number"`
		GeneratedFrom string `form:"generated_from"`
		GeneratedTo   string `form:"generated_to"`
		DueFrom       string `form:"due_from"`
		DueTo         string `form:"due_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	generatedFrom, err := parseOptionalTime(query.GeneratedFrom, false)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	generatedTo, err := parseOptionalTime(query.GeneratedTo, true)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dueFrom, err := parseOptionalTime(query.DueFrom, false)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	dueTo, err := parseOptionalTime(query.DueTo, true)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	customerID := strings.TrimSpace(query.CustomerID)
	// Client-tier callers only ever see their own invoices.
	if identity, ok := authcontext.IdentityFromContext(c.Request.Context()); ok && !identity.Role.IsAdminTier() {
		customerID = identity.UserID.String()
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), invoicedomain.ListInvoiceRequest{
		Pagination:    query.Pagination,
		CustomerID:    customerID,
		Status:        strings.TrimSpace(query.Status),
		InvoiceNumber: strings.TrimSpace(query.InvoiceNumber),
		GeneratedFrom: generatedFrom,
		GeneratedTo:   generatedTo,
		DueFrom:       dueFrom,
		DueTo:         dueTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.canReadInvoice(c, invoice) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

type updateDraftRequest struct {
	MinerCount     *int64  `json:"miner_count"`
	UnitPriceCents *int64  `json:"unit_price_cents"`
	Notes          *string `json:"notes"`
}

func (s *Server) UpdateDraftInvoice(c *gin.Context) {
	var req updateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.invoiceSvc.UpdateDraft(c.Request.Context(), invoicedomain.UpdateDraftRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		MinerCount:     req.MinerCount,
		UnitPriceCents: req.UnitPriceCents,
		Notes:          req.Notes,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// IssueInvoice flips DRAFT to ISSUED. A failed customer email is reported,
// not rolled back; the response carries email_sent either way.
func (s *Server) IssueInvoice(c *gin.Context) {
	result, err := s.invoiceSvc.Issue(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Cancel(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) RefundInvoice(c *gin.Context) {
	invoice, err := s.invoiceSvc.Refund(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) GetInvoicePDF(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	invoice, err := s.invoiceSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !s.canReadInvoice(c, invoice) {
		return
	}

	doc, err := s.invoiceSvc.RenderPDF(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="invoice-`+invoice.InvoiceNumber+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (s *Server) canReadInvoice(c *gin.Context, invoice invoicedomain.Invoice) bool {
	identity, ok := authcontext.IdentityFromContext(c.Request.Context())
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return false
	}
	if !identity.Role.IsAdminTier() && identity.UserID != invoice.CustomerID {
		AbortWithError(c, ErrForbidden)
		return false
	}
	return true
}
