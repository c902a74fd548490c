package handler

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"wallet-ledger/internal/adapter/http/dto"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/apperror"
	"wallet-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const defaultHistoryLimit = 50

// CompanyHandler serves the per-company read views.
type CompanyHandler struct {
	querySvc ports.QueryService
	now      func() time.Time
}

// NewCompanyHandler creates a new CompanyHandler.
func NewCompanyHandler(querySvc ports.QueryService) *CompanyHandler {
	return &CompanyHandler{querySvc: querySvc, now: time.Now}
}

// Balances handles GET /api/v1/companies/:id/balances.
func (h *CompanyHandler) Balances(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	balances, err := h.querySvc.BalancesByType(c.Request.Context(), companyID)
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.BalancesResponse{CompanyID: companyID, Balances: make(map[string]decimal.Decimal, len(balances))}
	for walletType, balance := range balances {
		resp.Balances[string(walletType)] = balance
	}
	response.OK(c, resp)
}

// Transactions handles GET /api/v1/companies/:id/wallets/:type/transactions.
func (h *CompanyHandler) Transactions(c *gin.Context) {
	companyID, walletType, filter, _, err := h.historyParams(c, defaultHistoryLimit)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.querySvc.TransactionHistory(c.Request.Context(), companyID, walletType, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewHistoryResponse(entries))
}

// Export handles GET /api/v1/companies/:id/wallets/:type/transactions/export.
// Without a limit the whole filtered history is exported.
func (h *CompanyHandler) Export(c *gin.Context) {
	companyID, walletType, filter, currency, err := h.historyParams(c, 0)
	if err != nil {
		response.Error(c, err)
		return
	}

	entries, err := h.querySvc.TransactionHistory(c.Request.Context(), companyID, walletType, filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.querySvc.ExportCSV(&buf, entries, currency); err != nil {
		response.Error(c, err)
		return
	}

	filename := fmt.Sprintf("company-%d-%s-%s.csv", companyID, walletType, h.now().UTC().Format("20060102"))
	response.CSV(c, filename, buf.Bytes())
}

// Usage handles GET /api/v1/companies/:id/usage?period=day|week|month|all.
func (h *CompanyHandler) Usage(c *gin.Context) {
	companyID, err := companyParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var q dto.UsageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	if q.Period == "" {
		q.Period = "all"
	}

	from, err := service.UsagePeriodStart(q.Period, h.now())
	if err != nil {
		response.Error(c, err)
		return
	}

	items, err := h.querySvc.CompanyUsage(c.Request.Context(), companyID, from, nil)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.UsageResponse{CompanyID: companyID, Period: q.Period, Items: items})
}

func (h *CompanyHandler) historyParams(c *gin.Context, defaultLimit int) (int64, domain.WalletType, ports.TransactionFilter, string, error) {
	var filter ports.TransactionFilter

	companyID, err := companyParam(c)
	if err != nil {
		return 0, "", filter, "", err
	}

	var q dto.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		return 0, "", filter, "", apperror.Validation(err.Error())
	}

	filter.Limit = q.Limit
	if filter.Limit == 0 {
		filter.Limit = defaultLimit
	}
	filter.Offset = q.Offset

	if q.Type != "" {
		txType := domain.TransactionType(q.Type)
		if !txType.Valid() {
			return 0, "", filter, "", apperror.Validation(fmt.Sprintf("invalid transaction type %q", q.Type))
		}
		filter.Type = &txType
	}
	if filter.From, err = parseTime("from", q.From); err != nil {
		return 0, "", filter, "", err
	}
	if filter.To, err = parseTime("to", q.To); err != nil {
		return 0, "", filter, "", err
	}

	return companyID, domain.WalletType(c.Param("type")), filter, q.Currency, nil
}

func companyParam(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.Validation("company id must be a positive integer")
	}
	return id, nil
}

func parseTime(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperror.Validation(fmt.Sprintf("%s must be an RFC 3339 timestamp", name))
	}
	return &t, nil
}
