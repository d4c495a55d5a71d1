package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/hashridge/hostbill/internal/pricing/domain"
)

type createPricingConfigRequest struct {
	CustomerID     string `json:"customer_id"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Currency       string `json:"currency"`
	EffectiveFrom  string `json:"effective_from"`
}

func (s *Server) CreatePricingConfig(c *gin.Context) {
	var req createPricingConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	effectiveFrom, err := parseOptionalTime(req.EffectiveFrom, false)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if effectiveFrom == nil {
		now := time.Now().UTC()
		effectiveFrom = &now
	}

	resp, err := s.pricingSvc.CreateConfig(c.Request.Context(), pricingdomain.CreateConfigRequest{
		CustomerID:     strings.TrimSpace(req.CustomerID),
		UnitPriceCents: req.UnitPriceCents,
		Currency:       strings.TrimSpace(req.Currency),
		EffectiveFrom:  *effectiveFrom,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListPricingConfigs(c *gin.Context) {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		AbortWithError(c, pricingdomain.ErrInvalidCustomer)
		return
	}

	configs, err := s.pricingSvc.ListByCustomer(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"pricing_configs": configs}})
}

// ResolveUnitPrice answers what rate applies for a customer at a date,
// default fallback included.
func (s *Server) ResolveUnitPrice(c *gin.Context) {
	customerID := strings.TrimSpace(c.Query("customer_id"))
	if customerID == "" {
		AbortWithError(c, pricingdomain.ErrInvalidCustomer)
		return
	}

	atDate, err := parseOptionalTime(c.Query("at"), false)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if atDate == nil {
		now := time.Now().UTC()
		atDate = &now
	}

	resolved, err := s.pricingSvc.ResolveUnitPrice(c.Request.Context(), customerID, *atDate)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resolved})
}
