package middleware

import (
	"encoding/json"
	"net/http"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// CtxAuditResource lets a handler name the resource it touched.
const CtxAuditResource = "audit_resource_id"

// AuditLog creates an audit middleware that logs successful write operations.
// It maps route templates to audit actions.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method != http.MethodPost {
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath())
		if action == "" {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(CtxRequestID),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			Actor:        c.GetString(CtxActor),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.GetString(CtxAuditResource),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func mapRouteToAction(route string) (domain.AuditAction, string) {
	switch route {
	case "/api/v1/events/postings",
		"/api/v1/events/sales",
		"/api/v1/events/payments/settled",
		"/api/v1/events/coupons":
		return domain.AuditActionPosting, "posting"
	case "/api/v1/events/sales/refund", "/api/v1/events/sales/cancel":
		return domain.AuditActionReversal, "posting"
	case "/api/v1/events/companies":
		return domain.AuditActionRegister, "company"
	case "/api/v1/admin/rebalance":
		return domain.AuditActionRebalance, "wallet"
	case "/api/v1/admin/migrate":
		return domain.AuditActionMigrate, "wallet"
	case "/api/v1/admin/backfill-links":
		return domain.AuditActionBackfill, "transaction"
	}
	return "", ""
}
