// Package server wires the HTTP surface: routing, auth gates, and the
// error-to-status mapping.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/hashridge/hostbill/internal/audit"
	auditdomain "github.com/hashridge/hostbill/internal/audit/domain"
	"github.com/hashridge/hostbill/internal/auth"
	"github.com/hashridge/hostbill/internal/config"
	"github.com/hashridge/hostbill/internal/customer"
	customerdomain "github.com/hashridge/hostbill/internal/customer/domain"
	"github.com/hashridge/hostbill/internal/invoice"
	invoicedomain "github.com/hashridge/hostbill/internal/invoice/domain"
	"github.com/hashridge/hostbill/internal/notification"
	notificationdomain "github.com/hashridge/hostbill/internal/notification/domain"
	"github.com/hashridge/hostbill/internal/observability"
	obslogger "github.com/hashridge/hostbill/internal/observability/logger"
	obsmetrics "github.com/hashridge/hostbill/internal/observability/metrics"
	obstracing "github.com/hashridge/hostbill/internal/observability/tracing"
	"github.com/hashridge/hostbill/internal/payment"
	paymentdomain "github.com/hashridge/hostbill/internal/payment/domain"
	"github.com/hashridge/hostbill/internal/payment/webhook"
	"github.com/hashridge/hostbill/internal/pool"
	"github.com/hashridge/hostbill/internal/pricing"
	pricingdomain "github.com/hashridge/hostbill/internal/pricing/domain"
	"github.com/hashridge/hostbill/internal/providers/email"
	"github.com/hashridge/hostbill/internal/providers/pdf"
	"github.com/hashridge/hostbill/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	auth.Module,
	customer.Module,
	pricing.Module,
	email.Module,
	pdf.Module,
	pool.Module,
	invoice.Module,
	notification.Module,
	payment.Module,
	scheduler.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Log:             log,
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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
	engine      *gin.Engine
	cfg         config.Config
	db          *gorm.DB
	genID       *snowflake.Node
	verifier    auth.Verifier
	auditSvc    auditdomain.Service
	customerSvc customerdomain.Service
	pricingSvc  pricingdomain.Service
	invoiceSvc  invoicedomain.Service
	paymentSvc  paymentdomain.Service
	webhookSvc  webhook.Ingestor
	notifySvc   notificationdomain.Service
	poolClient  pool.Client
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	DB          *gorm.DB
	GenID       *snowflake.Node
	Verifier    auth.Verifier
	AuditSvc    auditdomain.Service
	CustomerSvc customerdomain.Service
	PricingSvc  pricingdomain.Service
	InvoiceSvc  invoicedomain.Service
	PaymentSvc  paymentdomain.Service
	WebhookSvc  webhook.Ingestor
	NotifySvc   notificationdomain.Service
	PoolClient  pool.Client
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		db:          p.DB,
		genID:       p.GenID,
		verifier:    p.Verifier,
		auditSvc:    p.AuditSvc,
		customerSvc: p.CustomerSvc,
		pricingSvc:  p.PricingSvc,
		invoiceSvc:  p.InvoiceSvc,
		paymentSvc:  p.PaymentSvc,
		webhookSvc:  p.WebhookSvc,
		notifySvc:   p.NotifySvc,
		poolClient:  p.PoolClient,
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.AuthRequired())

	// -------- Customers --------
	api.GET("/customers", s.AdminRequired(), s.ListCustomers)
	api.POST("/customers", s.AdminRequired(), s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomerByID)
	api.PUT("/customers/:id", s.AdminRequired(), s.UpdateCustomer)
	api.DELETE("/customers/:id", s.AdminRequired(), s.ArchiveCustomer)
	api.GET("/customers/:id/balance", s.GetCustomerBalance)
	api.GET("/customers/:id/pool-stats", s.GetCustomerPoolStats)

	// -------- Pricing --------
	api.GET("/pricing-configs", s.AdminRequired(), s.ListPricingConfigs)
	api.POST("/pricing-configs", s.AdminRequired(), s.CreatePricingConfig)
	api.GET("/pricing-configs/resolve", s.AdminRequired(), s.ResolveUnitPrice)

	// -------- Invoices --------
	api.GET("/invoices", s.ListInvoices)
	api.POST("/invoices", s.AdminRequired(), s.CreateInvoice)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id", s.AdminRequired(), s.UpdateDraftInvoice)
	api.POST("/invoices/:id/issue", s.AdminRequired(), s.IssueInvoice)
	api.POST("/invoices/:id/cancel", s.AdminRequired(), s.CancelInvoice)
	api.POST("/invoices/:id/refund", s.AdminRequired(), s.RefundInvoice)
	api.GET("/invoices/:id/pdf", s.GetInvoicePDF)

	// -------- Payments --------
	api.GET("/payments", s.AdminRequired(), s.ListPayments)
	api.POST("/payments", s.AdminRequired(), s.CreatePayment)
	api.POST("/payments/:id/link", s.AdminRequired(), s.LinkPayment)
	api.POST("/payments/:id/unlink", s.AdminRequired(), s.UnlinkPayment)
	api.DELETE("/payments/:id", s.AdminRequired(), s.DeletePayment)

	// -------- Audit / Notifications --------
	api.GET("/audit-logs", s.AdminRequired(), s.ListAuditLogs)
	api.GET("/notifications", s.AdminRequired(), s.ListNotifications)

	// -------- Pool proxy --------
	api.GET("/pool/*path", s.AdminRequired(), s.ProxyPool)
}

func (s *Server) registerWebhookRoutes() {
	// Unauthenticated; the adapter's signature check is the gate.
	s.engine.POST("/webhooks/:provider", s.HandlePaymentWebhook)
}
