package ports

import (
	"context"
	"io"
	"time"

	"wallet-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
	BuildCanonicalString(method, path string, timestamp int64, nonce string, body string) string
}

// TokenService validates JWTs issued by the surrounding platform.
type TokenService interface {
	Generate(subject string, companyID int64, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject   string
	CompanyID int64
	Role      string
}

// IsAdmin returns true if the token may run maintenance operations.
func (c *TokenClaims) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Token roles.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore manages nonce uniqueness for replay attack prevention.
type NonceStore interface {
	// CheckAndSet atomically checks if nonce exists, sets it if not.
	// Returns true if nonce is new (valid), false if already used.
	CheckAndSet(ctx context.Context, keyID string, nonce string, ttl time.Duration) (bool, error)
}

// EventPublisher announces applied posting groups to downstream consumers.
type EventPublisher interface {
	PublishPosted(ctx context.Context, result *domain.PostingResult) error
}

// AuditService records maintenance and posting actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// PostingService applies business events as conserved, linked posting groups.
type PostingService interface {
	Post(ctx context.Context, event domain.PostingEvent) (*domain.PostingResult, error)
	// Reverse writes the compensating group for the event recorded under originalKey.
	Reverse(ctx context.Context, req ReverseRequest) (*domain.PostingResult, error)
}

// ReverseRequest identifies a previously applied event to compensate.
type ReverseRequest struct {
	OriginalKey string
	Kind        string // refund or cancellation
	Reason      string
}

// CompanyService registers tenant companies announced by the platform.
type CompanyService interface {
	// Register creates the company, or returns the existing one with created=false.
	Register(ctx context.Context, company domain.Company) (result *domain.Company, created bool, err error)
}

// RebalanceService reconciles cached balances with the transaction log.
type RebalanceService interface {
	Rebalance(ctx context.Context, scope domain.RebalanceScope) (*domain.RebalanceResult, error)
}

// MigrationService fixes wallet ownership and backfills legacy links.
type MigrationService interface {
	Migrate(ctx context.Context, sel domain.MigrationSelector, correctCompanyID int64) (*domain.MigrationResult, error)
	BackfillLinks(ctx context.Context) (*domain.BackfillResult, error)
}

// QueryService defines the read-side views.
type QueryService interface {
	BalancesByType(ctx context.Context, companyID int64) (map[domain.WalletType]decimal.Decimal, error)
	TransactionHistory(ctx context.Context, companyID int64, walletType domain.WalletType, filter TransactionFilter) ([]domain.HistoryEntry, error)
	CompanyUsage(ctx context.Context, companyID int64, from, to *time.Time) ([]domain.UsageTotals, error)
	ExportCSV(w io.Writer, entries []domain.HistoryEntry, currency string) error
}
