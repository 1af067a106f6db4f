package api

import (
	"net/http"
	"strconv"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api/apistrings"
	basemodels "github.com/SwiftFiat/SwiftFiat-Settlement/models"
	activitylogs "github.com/SwiftFiat/SwiftFiat-Settlement/services/activity_logs"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/gin-gonic/gin"
)

type ActivityLog struct {
	server  *Server
	service *activitylogs.ActivityLog
}

func (h ActivityLog) router(server *Server) {
	h.server = server
	h.service = server.services.Audit
	if h.service == nil {
		return
	}

	serverGroupV1 := server.router.Group("/api/v1/activitylogs", server.AuthenticatedMiddleware())
	serverGroupV1.GET("", h.getOwnActivity)
	serverGroupV1.GET("/:id", h.getUserActivity)
}

func (h *ActivityLog) getOwnActivity(c *gin.Context) {
	user, err := utils.GetActiveUser(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}
	h.list(c, user.UserID)
}

// getUserActivity is for support staff looking into a reconciliation case.
func (h *ActivityLog) getUserActivity(c *gin.Context) {
	user, _ := utils.GetActiveUser(c)
	if !user.IsAdmin() {
		c.JSON(http.StatusForbidden, basemodels.NewError("forbidden"))
		return
	}

	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, basemodels.NewError("invalid user ID"))
		return
	}
	h.list(c, userID)
}

func (h *ActivityLog) list(c *gin.Context, userID int64) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	logs, err := h.service.GetByUser(c.Request.Context(), userID, int32(limit), int32(offset))
	if err != nil {
		h.server.logger.WithField("error", err.Error()).Error("failed to get activity logs")
		c.JSON(http.StatusInternalServerError, basemodels.NewError("failed to get activity logs"))
		return
	}

	c.JSON(http.StatusOK, basemodels.NewSuccess("Activity logs retrieved successfully", logs))
}
