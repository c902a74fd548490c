package handler

import (
	"strconv"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// RegistrationHandler receives tenant registrations from the platform.
type RegistrationHandler struct {
	companySvc ports.CompanyService
}

// NewRegistrationHandler creates a new RegistrationHandler.
func NewRegistrationHandler(companySvc ports.CompanyService) *RegistrationHandler {
	return &RegistrationHandler{companySvc: companySvc}
}

// Register handles POST /api/v1/events/companies.
// Answers 201 for a new company and 200 when it was already registered.
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.CompanyRegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	company, created, err := h.companySvc.Register(c.Request.Context(), domain.Company{ID: req.CompanyID, Name: req.Name})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxAuditResource, strconv.FormatInt(company.ID, 10))
	resp := dto.CompanyResponse{ID: company.ID, Name: company.Name, CreatedAt: company.CreatedAt, Created: created}
	if created {
		response.Created(c, resp)
		return
	}
	response.OK(c, resp)
}
