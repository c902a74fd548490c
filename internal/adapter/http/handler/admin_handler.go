package handler

import (
	"fmt"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler exposes the maintenance operations.
type AdminHandler struct {
	rebalanceSvc ports.RebalanceService
	migrationSvc ports.MigrationService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(rebalanceSvc ports.RebalanceService, migrationSvc ports.MigrationService) *AdminHandler {
	return &AdminHandler{rebalanceSvc: rebalanceSvc, migrationSvc: migrationSvc}
}

// Rebalance handles POST /api/v1/admin/rebalance. An empty body rebalances
// every wallet.
func (h *AdminHandler) Rebalance(c *gin.Context) {
	var req dto.RebalanceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
	}

	result, err := h.rebalanceSvc.Rebalance(c.Request.Context(), domain.RebalanceScope{CompanyID: req.CompanyID})
	if err != nil {
		response.Error(c, err)
		return
	}

	if req.CompanyID != nil {
		c.Set(middleware.CtxAuditResource, fmt.Sprintf("company:%d", *req.CompanyID))
	}
	response.OK(c, dto.RebalanceResponse{Success: true, Updated: result.Updated, Total: result.Total})
}

// Migrate handles POST /api/v1/admin/migrate.
func (h *AdminHandler) Migrate(c *gin.Context) {
	var req dto.MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	sel := domain.MigrationSelector{SourceCompanyID: req.SourceCompanyID}
	for _, t := range req.WalletTypes {
		sel.WalletTypes = append(sel.WalletTypes, domain.WalletType(t))
	}
	for _, raw := range req.WalletIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.Error(c, apperror.Validation(fmt.Sprintf("invalid wallet id %q", raw)))
			return
		}
		sel.WalletIDs = append(sel.WalletIDs, id)
	}

	result, err := h.migrationSvc.Migrate(c.Request.Context(), sel, req.CorrectCompanyID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, fmt.Sprintf("company:%d", req.CorrectCompanyID))
	response.OK(c, dto.MigrateResponse{
		Success:  true,
		Migrated: result.Migrated,
		Created:  result.Created,
		Message: fmt.Sprintf("merged %d wallet(s) and reassigned %d wallet(s) to company %d",
			result.Migrated, result.Created, req.CorrectCompanyID),
	})
}

// BackfillLinks handles POST /api/v1/admin/backfill-links.
func (h *AdminHandler) BackfillLinks(c *gin.Context) {
	result, err := h.migrationSvc.BackfillLinks(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.BackfillResponse{Success: true, Groups: result.Groups, Linked: result.Linked})
}
