package handler

import (
	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// EventHandler receives business events from collaborating services.
type EventHandler struct {
	postingSvc ports.PostingService
	builder    *service.EventBuilder
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(postingSvc ports.PostingService, builder *service.EventBuilder) *EventHandler {
	return &EventHandler{postingSvc: postingSvc, builder: builder}
}

// Post handles POST /api/v1/events/postings.
func (h *EventHandler) Post(c *gin.Context) {
	var req dto.PostingEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	h.apply(c, req.ToDomain())
}

// Sale handles POST /api/v1/events/sales.
func (h *EventHandler) Sale(c *gin.Context) {
	var req dto.SaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	event, err := h.builder.Sale(service.SaleCompleted{
		OrderID:        req.OrderID,
		PlanID:         req.PlanID,
		BuyerCompanyID: req.BuyerCompanyID,
		Total:          req.Total,
		ProviderCost:   req.ProviderCost,
		ProcessorFee:   req.ProcessorFee,
		Tax:            req.Tax,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.apply(c, event)
}

// Refund handles POST /api/v1/events/sales/refund.
func (h *EventHandler) Refund(c *gin.Context) {
	h.reverse(c, h.builder.Refund)
}

// Cancel handles POST /api/v1/events/sales/cancel.
func (h *EventHandler) Cancel(c *gin.Context) {
	h.reverse(c, h.builder.Cancellation)
}

// PaymentSettled handles POST /api/v1/events/payments/settled.
func (h *EventHandler) PaymentSettled(c *gin.Context) {
	var req dto.PaymentSettledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	event, err := h.builder.Settlement(service.PaymentSettled{
		PaymentID:   req.PaymentID,
		CompanyID:   req.CompanyID,
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.apply(c, event)
}

// Coupon handles POST /api/v1/events/coupons.
func (h *EventHandler) Coupon(c *gin.Context) {
	var req dto.CouponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	event, err := h.builder.Coupon(service.CouponGranted{
		CouponID:  req.CouponID,
		CompanyID: req.CompanyID,
		Amount:    req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	h.apply(c, event)
}

func (h *EventHandler) reverse(c *gin.Context, build func(orderID, reason string) ports.ReverseRequest) {
	var req dto.ReversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.postingSvc.Reverse(c.Request.Context(), build(req.OrderID, req.Reason))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondPosting(c, result)
}

func (h *EventHandler) apply(c *gin.Context, event domain.PostingEvent) {
	result, err := h.postingSvc.Post(c.Request.Context(), event)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondPosting(c, result)
}

// respondPosting answers 201 for a newly applied group and 200 for a duplicate.
func respondPosting(c *gin.Context, result *domain.PostingResult) {
	c.Set(middleware.CtxAuditResource, result.Key)
	if result.Duplicate {
		response.OK(c, dto.NewPostingResponse(result))
		return
	}
	response.Created(c, dto.NewPostingResponse(result))
}
