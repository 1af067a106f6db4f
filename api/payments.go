package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/SwiftFiat/SwiftFiat-Settlement/api/apistrings"
	models "github.com/SwiftFiat/SwiftFiat-Settlement/api/models"
	basemodels "github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers/mobilemoney"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/payment"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Payment struct {
	server  *Server
	service *payment.PaymentService
}

func (p Payment) router(server *Server) {
	p.server = server
	p.service = server.services.Payments

	serverGroupV1 := server.router.Group("/api/v1/payments")
	serverGroupV1.POST("", server.AuthenticatedMiddleware(), p.initiate)
	serverGroupV1.POST("/callback/mpesa/:token", p.mpesaCallback)
	serverGroupV1.GET("/:id", server.AuthenticatedMiddleware(), p.getTransaction)
	serverGroupV1.POST("/:id/cancel", server.AuthenticatedMiddleware(), p.cancel)
}

func (p *Payment) initiate(ctx *gin.Context) {
	var request models.InitiatePaymentRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidPaymentInput, err.Error()))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	result, err := p.service.Initiate(ctx.Request.Context(), payment.InitiateRequest{
		UserID:      activeUser.UserID,
		Amount:      request.Amount,
		Currency:    request.Currency,
		PhoneNumber: request.PhoneNumber,
		Payee:       request.Payee,
		Description: request.Description,
		MerchantID:  request.MerchantID,
		Metadata:    request.Metadata,
	})
	if err != nil {
		p.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusCreated, basemodels.NewSuccess("Payment Initiated Successfully", models.ToInitiatePaymentResponse(result)))
}

// mpesaCallback always acknowledges an authentic callback. Daraja retries
// anything else, and a callback we cannot use will not become usable on
// redelivery. The path token is only known to Daraja through the callback
// URL registered with each collection request.
func (p *Payment) mpesaCallback(ctx *gin.Context) {
	expected := p.server.config.MpesaCallbackToken
	if expected == "" || subtle.ConstantTimeCompare([]byte(ctx.Param("token")), []byte(expected)) != 1 {
		p.server.logger.WithField("client_ip", ctx.ClientIP()).Warn("rejected mpesa callback with an invalid token")
		ctx.JSON(http.StatusNotFound, basemodels.NewError(apistrings.NotFound))
		return
	}

	ack := models.CallbackAck{ResultCode: 0, ResultDesc: apistrings.CallbackAccepted}

	payload, err := ctx.GetRawData()
	if err != nil {
		p.server.logger.WithField("error", err.Error()).Error("could not read mpesa callback body")
		ctx.JSON(http.StatusOK, ack)
		return
	}

	result, err := mobilemoney.ParseSTKCallback(payload)
	if err != nil {
		p.server.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"payload": string(payload),
		}).Warn("discarding malformed mpesa callback")
		ctx.JSON(http.StatusOK, ack)
		return
	}

	// Settlement must finish even if Daraja hangs up first.
	outcome, err := p.service.Complete(context.WithoutCancel(ctx.Request.Context()), result)
	if err != nil {
		p.server.logger.WithFields(logrus.Fields{
			"checkout_request_id": result.CheckoutRequestID,
			"error":               err.Error(),
		}).Error("mpesa callback not applied")
	} else {
		p.server.logger.WithFields(logrus.Fields{
			"checkout_request_id": result.CheckoutRequestID,
			"outcome":             outcome,
		}).Info("mpesa callback processed")
	}

	ctx.JSON(http.StatusOK, ack)
}

func (p *Payment) getTransaction(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidTransactionID))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	txn, err := p.service.GetTransaction(ctx.Request.Context(), id, activeUser.UserID)
	if err != nil {
		p.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Transaction Fetched Successfully", models.ToTransactionResponse(txn)))
}

func (p *Payment) cancel(ctx *gin.Context) {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, basemodels.NewError(apistrings.InvalidTransactionID))
		return
	}

	activeUser, err := utils.GetActiveUser(ctx)
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, basemodels.NewError(apistrings.UserNotFound))
		return
	}

	txn, err := p.service.Cancel(ctx.Request.Context(), id, activeUser.UserID)
	if err != nil {
		p.server.respondError(ctx, err)
		return
	}

	ctx.JSON(http.StatusOK, basemodels.NewSuccess("Transaction Cancelled Successfully", models.ToTransactionResponse(txn)))
}
