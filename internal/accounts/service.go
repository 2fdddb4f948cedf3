package accounts

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/meridian-erp/meridian/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates account master data operations.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateInput groups fields required to open an account.
type CreateInput struct {
	Code          string
	Name          string
	Type          AccountType
	Currency      string
	IsNominal     bool
	AllowNegative bool
	ActorID       int64
}

// Create opens a new account with a zero balance.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if input.Code == "" || input.Name == "" {
		return Account{}, errors.New("accounts: code and name required")
	}
	switch input.Type {
	case AccountTypeCash, AccountTypeBank, AccountTypeEWallet, AccountTypeNominal:
	default:
		return Account{}, fmt.Errorf("accounts: unknown type %q", input.Type)
	}
	if input.Currency == "" {
		input.Currency = "USD"
	}
	if input.Type == AccountTypeNominal {
		input.IsNominal = true
	}
	account, err := s.repo.Insert(ctx, Account{
		Code:          input.Code,
		Name:          input.Name,
		Type:          input.Type,
		Currency:      input.Currency,
		IsNominal:     input.IsNominal,
		AllowNegative: input.AllowNegative,
	})
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "account.create",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", account.ID),
			Meta:     map[string]any{"code": account.Code, "type": string(account.Type)},
		})
	}
	return account, nil
}

// List returns accounts, optionally including deactivated ones.
func (s *Service) List(ctx context.Context, includeInactive bool) ([]Account, error) {
	return s.repo.List(ctx, includeInactive)
}

// Get fetches one account.
func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

// Update changes mutable metadata. Balance, code and type are not touchable
// through this path.
func (s *Service) Update(ctx context.Context, id int64, name string, allowNegative bool, actorID int64) (Account, error) {
	if name == "" {
		return Account{}, errors.New("accounts: name required")
	}
	account, err := s.repo.UpdateMetadata(ctx, id, name, allowNegative)
	if err != nil {
		return Account{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "account.update",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", id),
			Meta:     map[string]any{"name": name, "allow_negative": allowNegative},
		})
	}
	return account, nil
}

// Deactivate closes the account to new legs. Existing history stays intact.
func (s *Service) Deactivate(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "account.deactivate",
			Entity:   "account",
			EntityID: fmt.Sprintf("%d", id),
		})
	}
	return nil
}

// Drift describes a cached balance that disagrees with the leg history.
type Drift struct {
	AccountID int64  `json:"account_id"`
	Code      string `json:"code"`
	Cached    string `json:"cached"`
	Computed  string `json:"computed"`
}

// VerifyBalances recomputes every account balance from the leg history and
// reports drift. The ledger engine updates the cache inside the same
// transaction as every leg insert, so any drift here is a defect.
func (s *Service) VerifyBalances(ctx context.Context) ([]Drift, error) {
	all, err := s.repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	drifts := make([]Drift, len(all))
	found := make([]bool, len(all))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, account := range all {
		g.Go(func() error {
			computed, err := s.repo.SumLegs(ctx, account.ID)
			if err != nil {
				return err
			}
			if !computed.Equal(account.Balance) {
				drifts[i] = Drift{
					AccountID: account.ID,
					Code:      account.Code,
					Cached:    account.Balance.String(),
					Computed:  computed.String(),
				}
				found[i] = true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Drift
	for i, ok := range found {
		if ok {
			out = append(out, drifts[i])
		}
	}
	return out, nil
}
