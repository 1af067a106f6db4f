package api

import (
	"net/http"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api/apistrings"
	models "github.com/SwiftFiat/SwiftFiat-Settlement/api/models"
	basemodels "github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/gin-gonic/gin"
)

type Wallet struct {
	server        *Server
	walletService *wallet.WalletService
}

func (w Wallet) router(server *Server) {
	w.server = server
	w.walletService = server.services.Wallets

	serverGroupV1 := server.router.Group("/api/v1/wallets", server.AuthenticatedMiddleware())
	serverGroupV1.POST("", w.createWallet)
	serverGroupV1.GET("/balance", w.getBalance)
	serverGroupV1.PATCH("/settings", w.updateSettings)
	serverGroupV1.GET("/transactions", w.getTransactions)
	serverGroupV1.GET("/stats", w.getStats)
}

func (w *Wallet) createWallet(ctx *gin.Context) {
	var request models.CreateWalletRequest
	// An empty body creates a personal wallet.
	if ctx.Request.ContentLength != 0 {
		if err := ctx.ShouldBindJSON(&request); err != nil {
			ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidWalletInput))
			return
		}
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	created, err := w.walletService.CreateWallet(ctx.Request.Context(), activeUser.UserID, request.Type, request.LightningAddress)
	if err != nil {
		w.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, basemodels.NewSuccess("User Wallet Created Successfully", models.ToWalletResponse(created)))
}

func (w *Wallet) getBalance(ctx *gin.Context) {
	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	balance, err := w.walletService.GetBalance(ctx.Request.Context(), activeUser.UserID)
	if err != nil {
		w.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Wallet Balance Fetched Successfully", balance))
}

func (w *Wallet) updateSettings(ctx *gin.Context) {
	var request models.UpdateWalletSettingsRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidWalletInput))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	updated, err := w.walletService.UpdateSettings(ctx.Request.Context(), activeUser.UserID, request.Type, request.LightningAddress)
	if err != nil {
		w.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Wallet Settings Updated Successfully", models.ToWalletResponse(updated)))
}

func (w *Wallet) getTransactions(ctx *gin.Context) {
	var query models.TransactionHistoryQuery
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidPageArgs))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	history, err := w.walletService.GetTransactionHistory(ctx.Request.Context(), activeUser.UserID, query.Page, query.Limit, query.Status)
	if err != nil {
		w.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Transactions Fetched Successfully", models.ToTransactionHistoryResponse(history)))
}

func (w *Wallet) getStats(ctx *gin.Context) {
	query := models.StatsQuery{Days: 30}
	if err := ctx.ShouldBindQuery(&query); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidStatsWindow))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	stats, err := w.walletService.GetTransactionStats(ctx.Request.Context(), activeUser.UserID, query.Days)
	if err != nil {
		w.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Transaction Stats Fetched Successfully", stats))
}
