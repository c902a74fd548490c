package memory

import (
	"context"

	"wallet-ledger/internal/core/domain"
)

// CompanyRepo implements ports.CompanyRepository.
type CompanyRepo struct {
	store *Store
}

// NewCompanyRepo creates a new CompanyRepo.
func NewCompanyRepo(store *Store) *CompanyRepo {
	return &CompanyRepo{store: store}
}

// Create stores a company, ignoring an existing id.
func (r *CompanyRepo) Create(_ context.Context, c *domain.Company) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, ok := r.store.companies[c.ID]; ok {
		return nil
	}
	company := *c
	if company.CreatedAt.IsZero() {
		company.CreatedAt = r.store.now()
	}
	r.store.companies[c.ID] = company
	return nil
}

// GetByID fetches a company by id.
func (r *CompanyRepo) GetByID(_ context.Context, id int64) (*domain.Company, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	c, ok := r.store.companies[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}
