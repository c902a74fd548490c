package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

// CompanyServiceImpl implements ports.CompanyService.
type CompanyServiceImpl struct {
	companyRepo ports.CompanyRepository
	log         zerolog.Logger
	now         func() time.Time
}

// NewCompanyService creates a new CompanyServiceImpl.
func NewCompanyService(companyRepo ports.CompanyRepository, log zerolog.Logger) *CompanyServiceImpl {
	return &CompanyServiceImpl{
		companyRepo: companyRepo,
		log:         log,
		// Microseconds match what TIMESTAMPTZ keeps, so the read-back compares equal.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Register creates a tenant company. Registering the same id and name again
// is a no-op; the same id under another name is rejected.
func (s *CompanyServiceImpl) Register(ctx context.Context, company domain.Company) (*domain.Company, bool, error) {
	company.Name = strings.TrimSpace(company.Name)
	if company.ID <= 0 {
		return nil, false, apperror.Validation("company id must be positive")
	}
	if company.Name == "" {
		return nil, false, apperror.Validation("company name is required")
	}

	existing, err := s.companyRepo.GetByID(ctx, company.ID)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get company: %w", err))
	}
	if existing != nil {
		return s.sameCompany(existing, company.Name)
	}

	company.CreatedAt = s.now()
	if err := s.companyRepo.Create(ctx, &company); err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("create company: %w", err))
	}

	// Create ignores an id registered concurrently, so read back the winner.
	stored, err := s.companyRepo.GetByID(ctx, company.ID)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get company: %w", err))
	}
	if stored == nil {
		return nil, false, apperror.InternalError(fmt.Errorf("company %d missing after create", company.ID))
	}
	if !stored.CreatedAt.Equal(company.CreatedAt) {
		return s.sameCompany(stored, company.Name)
	}

	s.log.Info().Int64("company_id", stored.ID).Str("name", stored.Name).Msg("company registered")
	return stored, true, nil
}

func (s *CompanyServiceImpl) sameCompany(existing *domain.Company, name string) (*domain.Company, bool, error) {
	if existing.Name != name {
		return nil, false, apperror.Validation(fmt.Sprintf("company %d is already registered as %q", existing.ID, existing.Name))
	}
	return existing, false, nil
}
