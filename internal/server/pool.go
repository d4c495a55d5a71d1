package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/authcontext"
)

// GetCustomerPoolStats aggregates the pool's view of one customer's
// subaccount. Pool outages degrade to nulls instead of failing the request.
func (s *Server) GetCustomerPoolStats(c *gin.Context) {
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

	customer, err := s.customerSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if customer.PoolSubaccount == nil || strings.TrimSpace(*customer.PoolSubaccount) == "" {
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"subaccount": nil}})
		return
	}
	subaccount := *customer.PoolSubaccount

	stats := gin.H{"subaccount": subaccount}
	if workers, ok := s.poolClient.WorkerCount(c.Request.Context(), subaccount); ok {
		stats["worker_count"] = workers
	} else {
		stats["worker_count"] = nil
	}
	if hashrate, ok := s.poolClient.Hashrate(c.Request.Context(), subaccount); ok {
		stats["hashrate"] = hashrate
	} else {
		stats["hashrate"] = nil
	}
	if revenue, ok := s.poolClient.Revenue(c.Request.Context(), subaccount); ok {
		stats["revenue"] = revenue
	} else {
		stats["revenue"] = nil
	}

	c.JSON(http.StatusOK, gin.H{"data": stats})
}

// ProxyPool passes an allow-listed read-only pool API call through,
// stripping everything but the permitted query params.
func (s *Server) ProxyPool(c *gin.Context) {
	path := strings.Trim(strings.TrimSpace(c.Param("path")), "/")

	result, err := s.poolClient.Proxy(c.Request.Context(), "pool/"+path, c.Request.URL.Query())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	contentType := result.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	c.Data(result.StatusCode, contentType, result.Body)
}
