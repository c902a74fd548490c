package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PostingSvc     ports.PostingService
	CompanySvc     ports.CompanyService
	RebalanceSvc   ports.RebalanceService
	MigrationSvc   ports.MigrationService
	QuerySvc       ports.QueryService
	EventBuilder   *service.EventBuilder
	SigSvc         ports.SignatureService
	TokenSvc       ports.TokenService
	HMACSecrets    map[string]string
	NonceStore     ports.NonceStore   // nil = replay protection disabled
	RateLimitStore middleware.Limiter // nil = rate limiting disabled
	AuditSvc       ports.AuditService // nil = audit logging disabled
	HealthCheckers []ports.HealthChecker
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		rule, ok := rules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- HMAC-signed collaborator events ---
	hmacAuth := middleware.HMACAuth(deps.HMACSecrets, deps.SigSvc, deps.NonceStore, deps.Logger)
	eventHandler := NewEventHandler(deps.PostingSvc, deps.EventBuilder)
	registrationHandler := NewRegistrationHandler(deps.CompanySvc)
	events := v1.Group("/events", hmacAuth, rl("events"))
	{
		events.POST("/companies", registrationHandler.Register)
		events.POST("/postings", eventHandler.Post)
		events.POST("/sales", eventHandler.Sale)
		events.POST("/sales/refund", eventHandler.Refund)
		events.POST("/sales/cancel", eventHandler.Cancel)
		events.POST("/payments/settled", eventHandler.PaymentSettled)
		events.POST("/coupons", eventHandler.Coupon)
	}

	// --- JWT-authenticated read views ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	companyHandler := NewCompanyHandler(deps.QuerySvc)
	companies := v1.Group("/companies/:id", jwtAuth, middleware.RequireCompanyScope("id"))
	{
		companies.GET("/balances", rl("queries"), companyHandler.Balances)
		companies.GET("/usage", rl("queries"), companyHandler.Usage)
		companies.GET("/wallets/:type/transactions", rl("queries"), companyHandler.Transactions)
		companies.GET("/wallets/:type/transactions/export", rl("exports"), companyHandler.Export)
	}

	// --- Maintenance (admin role) ---
	adminHandler := NewAdminHandler(deps.RebalanceSvc, deps.MigrationSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin(), rl("admin"))
	{
		admin.POST("/rebalance", adminHandler.Rebalance)
		admin.POST("/migrate", adminHandler.Migrate)
		admin.POST("/backfill-links", adminHandler.BackfillLinks)
	}

	return r
}
