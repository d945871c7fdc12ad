package httpkit

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// Caller is the authenticated principal that AuthRequired stored on the
// gin context.
type Caller struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the caller carries role.
func (c Caller) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// CallerFrom reads the caller from the gin context. ok is false on routes
// that did not pass through AuthRequired.
func CallerFrom(c *gin.Context) (Caller, bool) {
	userID := c.GetString(ContextUserIDKey)
	if userID == "" {
		return Caller{}, false
	}
	roles, _ := c.Get(ContextRolesKey)
	list, _ := roles.([]string)
	return Caller{UserID: userID, Roles: list}, true
}

// RequireCaller is CallerFrom that aborts with 401 when no caller is present.
func RequireCaller(c *gin.Context) (Caller, bool) {
	caller, ok := CallerFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
	return caller, ok
}
