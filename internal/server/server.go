// Package server exposes the panel HTTP API consumed by the web client.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hostlify/hostlify/internal/auth"
	autoscalingdomain "github.com/hostlify/hostlify/internal/autoscaling/domain"
	billingdomain "github.com/hostlify/hostlify/internal/billing/domain"
	"github.com/hostlify/hostlify/internal/config"
	gatewaydomain "github.com/hostlify/hostlify/internal/gateway/domain"
	hostingdomain "github.com/hostlify/hostlify/internal/hosting/domain"
	meteringdomain "github.com/hostlify/hostlify/internal/metering/domain"
	obsmetrics "github.com/hostlify/hostlify/internal/observability/metrics"
	plandomain "github.com/hostlify/hostlify/internal/plan/domain"
	promodomain "github.com/hostlify/hostlify/internal/promo/domain"
	"github.com/hostlify/hostlify/internal/ratelimit"
	statisticsdomain "github.com/hostlify/hostlify/internal/statistics/domain"
	userdomain "github.com/hostlify/hostlify/internal/user/domain"
	walletdomain "github.com/hostlify/hostlify/internal/wallet/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmetrics.GinMiddleware(obsmetrics.HTTP()))
	r.Use(requestLogMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	tokens  *auth.Tokens
	limiter *ratelimit.APILimiter

	userSvc    userdomain.Service
	walletSvc  walletdomain.Service
	hostingSvc hostingdomain.Service
	planRepo   plandomain.Repository
	meterSvc   meteringdomain.Service
	engineSvc  autoscalingdomain.Engine
	billingSvc billingdomain.Service
	promoSvc   promodomain.Service
	gatewaySvc gatewaydomain.Service
	statsSvc   statisticsdomain.Service
}

type ServerParams struct {
	fx.In

	Gin     *gin.Engine
	Cfg     config.Config
	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Tokens  *auth.Tokens
	Limiter *ratelimit.APILimiter `optional:"true"`

	UserSvc    userdomain.Service
	WalletSvc  walletdomain.Service
	HostingSvc hostingdomain.Service
	PlanRepo   plandomain.Repository
	MeterSvc   meteringdomain.Service
	EngineSvc  autoscalingdomain.Engine
	BillingSvc billingdomain.Service
	PromoSvc   promodomain.Service
	GatewaySvc gatewaydomain.Service
	StatsSvc   statisticsdomain.Service
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		tokens:     p.Tokens,
		limiter:    p.Limiter,
		userSvc:    p.UserSvc,
		walletSvc:  p.WalletSvc,
		hostingSvc: p.HostingSvc,
		planRepo:   p.PlanRepo,
		meterSvc:   p.MeterSvc,
		engineSvc:  p.EngineSvc,
		billingSvc: p.BillingSvc,
		promoSvc:   p.PromoSvc,
		gatewaySvc: p.GatewaySvc,
		statsSvc:   p.StatsSvc,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine { return s.engine }

func (s *Server) registerRoutes() {
	r := s.engine

	authGroup := r.Group("/auth")
	{
		authGroup.POST("/register", s.RegisterUser)
		authGroup.POST("/login", s.Login)
		authGroup.GET("/me", s.AuthRequired(), s.Me)
	}

	r.GET("/hosting/plans", s.ListPlans)
	r.POST("/payments/callback/:provider", s.PaymentCallback)

	api := r.Group("/", s.AuthRequired(), s.RateLimited())
	{
		api.GET("/wallet", s.GetWallet)
		api.GET("/wallet/transactions", s.ListTransactions)
		api.POST("/wallet/add-funds", s.AddFunds)
		api.POST("/wallet/promo-code", s.ApplyPromoCode)

		api.GET("/hosting/services", s.ListServices)
		api.GET("/hosting/services/:id", s.GetService)
		api.PUT("/hosting/services/:id/autoscaling", s.SetAutoscaling)
		api.GET("/hosting/services/:id/resource-usage", s.ResourceUsage)
		api.GET("/hosting/services/:id/scaling-logs", s.ListScalingLogs)
		api.POST("/hosting/services/:id/renew", s.RenewService)
		api.POST("/hosting/purchase", s.Purchase)

		api.POST("/promo-codes/validate", s.ValidatePromoCode)

		api.GET("/statistics/resources", s.StatisticsResources)
		api.GET("/statistics/spending", s.StatisticsSpending)
		api.GET("/statistics/eco", s.StatisticsEco)
	}
}

func requestLogMiddleware(log *zap.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
		}
		if status >= http.StatusInternalServerError {
			log.Error("request failed", fields...)
		} else {
			log.Debug("request", fields...)
		}
	}
}
