package api

import (
	"fmt"
	"net/http"

	apierrors "github.com/SwiftFiat/SwiftFiat-Settlement/api/errors"
	"github.com/SwiftFiat/SwiftFiat-Settlement/models"
	"github.com/SwiftFiat/SwiftFiat-Settlement/providers"
	activitylogs "github.com/SwiftFiat/SwiftFiat-Settlement/services/activity_logs"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/monitoring/logging"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/payment"
	"github.com/SwiftFiat/SwiftFiat-Settlement/services/wallet"
	"github.com/SwiftFiat/SwiftFiat-Settlement/utils"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Services are the collaborators the HTTP layer dispatches to. They are
// built once in main and shared by every handler.
type Services struct {
	Payments  *payment.PaymentService
	Wallets   *wallet.WalletService
	Audit     *activitylogs.ActivityLog
	Providers *providers.ProviderService
	Gatherer  prometheus.Gatherer
}

type Server struct {
	router   *gin.Engine
	config   *utils.Config
	logger   *logging.Logger
	tokens   *utils.TokenVerifier
	services Services
}

func NewServer(c *utils.Config, l *logging.Logger, services Services) *Server {
	if c.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	g := gin.New()
	g.Use(gin.Recovery())
	g.Use(CORSMiddleware())
	g.Use(l.LoggingMiddleWare())

	s := &Server{
		router:   g,
		config:   c,
		logger:   l,
		tokens:   utils.NewTokenVerifier(c),
		services: services,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.GET("/", s.health)

	if s.services.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.services.Gatherer, promhttp.HandlerOpts{})))
	}

	/// Register Object Routers Below
	Payment{}.router(s)
	Wallet{}.router(s)
	ActivityLog{}.router(s)
}

func (s *Server) health(ctx *gin.Context) {
	data := gin.H{}
	if s.services.Providers != nil {
		data["providers"] = s.services.Providers.CircuitStates()
	}
	ctx.JSON(http.StatusOK, models.SuccessResponse{
		Status:  "success",
		Message: "Welcome to SwiftFiat Settlement!",
		Data:    data,
		Version: utils.REVISION,
	})
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	return s.router.Run(fmt.Sprintf(":%v", s.config.ServerPort))
}

// respondError writes err using the status its kind maps to. Server-side
// failures are logged with their cause; the client only sees a generic
// message.
func (s *Server) respondError(ctx *gin.Context, err error) {
	status := apierrors.StatusCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(logrus.Fields{
			"path":  ctx.FullPath(),
			"error": err.Error(),
		}).Error("request failed")
	}
	ctx.JSON(status, models.NewError(apierrors.Message(err)))
}
