package utils

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

const (
	RoleAdmin = "admin"

	principalKey = "principal"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"user_role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

func SetPrincipal(ctx *gin.Context, p Principal) {
	ctx.Set(principalKey, p)
}

func GetActiveUser(ctx *gin.Context) (Principal, error) {
	value, exists := ctx.Get(principalKey)
	if !exists {
		return Principal{}, fmt.Errorf("error occurred, not authorized to access this resource")
	}

	user, ok := value.(Principal)
	if !ok {
		return Principal{}, fmt.Errorf("an error occurred")
	}

	return user, nil
}
