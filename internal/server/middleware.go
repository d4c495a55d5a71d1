package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/authcontext"
)

// AuthRequired verifies the bearer token and stamps the caller identity
// onto the request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || parts[0] != "Bearer" || strings.TrimSpace(parts[1]) == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(parts[1])
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := authcontext.WithIdentity(c.Request.Context(), identity)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// AdminRequired gates admin-tier routes. Runs after AuthRequired.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := authcontext.IdentityFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if !identity.Role.IsAdminTier() {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}
