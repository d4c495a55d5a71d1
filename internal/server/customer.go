package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/authcontext"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/pkg/db/pagination"
)

type createCustomerRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Role           string `json:"role"`
	PoolSubaccount string `json:"pool_subaccount"`
	GroupName      string `json:"group_name"`
}

func (s *Server) CreateCustomer(c *gin.Context) {
	var req createCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Create(c.Request.Context(), customerdomain.CreateCustomerRequest{
		Name:           strings.TrimSpace(req.Name),
		Email:          strings.TrimSpace(req.Email),
		Role:           strings.TrimSpace(req.Role),
		PoolSubaccount: strings.TrimSpace(req.PoolSubaccount),
		GroupName:      strings.TrimSpace(req.GroupName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCustomers(c *gin.Context) {
	var query struct {
		pagination.Pagination
		Name            string `form:"name"`
		Email           string `form:"email"`
		GroupName       string `form:"group_name"`
		IncludeArchived bool   `form:"include_archived"`
		CreatedFrom     string `form:"created_from"`
		CreatedTo       string `form:"created_to"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	createdFrom, err := parseOptionalTime(query.CreatedFrom, false)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	createdTo, err := parseOptionalTime(query.CreatedTo, true)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.List(c.Request.Context(), customerdomain.ListCustomerRequest{
		Pagination:      query.Pagination,
		Name:            strings.TrimSpace(query.Name),
		Email:           strings.TrimSpace(query.Email),
		GroupName:       strings.TrimSpace(query.GroupName),
		IncludeArchived: query.IncludeArchived,
		CreatedFrom:     createdFrom,
		CreatedTo:       createdTo,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetCustomerByID serves admins and the customer reading its own record.
func (s *Server) GetCustomerByID(c *gin.Context) {
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

	resp, err := s.customerSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type updateCustomerRequest struct {
	Name           *string `json:"name"`
	PoolSubaccount *string `json:"pool_subaccount"`
	GroupName      *string `json:"group_name"`
}

func (s *Server) UpdateCustomer(c *gin.Context) {
	var req updateCustomerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.customerSvc.Update(c.Request.Context(), customerdomain.UpdateCustomerRequest{
		ID:             strings.TrimSpace(c.Param("id")),
		Name:           req.Name,
		PoolSubaccount: req.PoolSubaccount,
		GroupName:      req.GroupName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ArchiveCustomer(c *gin.Context) {
	if err := s.customerSvc.Archive(c.Request.Context(), strings.TrimSpace(c.Param("id"))); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}
