package ledger

import (
	"context"
	"fmt"
	"sync"

	id "capcall/pkg/domain"
	"capcall/pkg/platform/sentinel"
)

// InMemory is the in-process ledger used for development and tests. Apply is
// two-phase under one mutex: every op is validated against a staged view
// first, then the staged view replaces the live one. A failed check therefore
// leaves no partial movement behind.
type InMemory struct {
	mu       sync.Mutex
	mints    map[id.MintID]*Mint
	accounts map[id.AccountID]*Account
}

// NewInMemory returns an empty ledger.
func NewInMemory() *InMemory {
	return &InMemory{
		mints:    make(map[id.MintID]*Mint),
		accounts: make(map[id.AccountID]*Account),
	}
}

func (l *InMemory) CreateMint(_ context.Context, authority id.AuthorityID) (id.MintID, error) {
	if authority.IsNil() {
		return id.MintID{}, fmt.Errorf("create mint: authority is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	mintID := id.NewMintID()
	l.mints[mintID] = &Mint{ID: mintID, Authority: authority}
	return mintID, nil
}

func (l *InMemory) CreateAccount(_ context.Context, mint id.MintID, owner id.AuthorityID) (id.AccountID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.mints[mint]; !ok {
		return id.AccountID{}, fmt.Errorf("create account: mint %s: %w", mint, sentinel.ErrNotFound)
	}
	accountID := id.NewAccountID()
	l.accounts[accountID] = &Account{ID: accountID, Mint: mint, Owner: owner}
	return accountID, nil
}

func (l *InMemory) Account(_ context.Context, account id.AccountID) (Account, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	acc, ok := l.accounts[account]
	if !ok {
		return Account{}, fmt.Errorf("account %s: %w", account, sentinel.ErrNotFound)
	}
	return *acc, nil
}

func (l *InMemory) MintInfo(_ context.Context, mint id.MintID) (Mint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.mints[mint]
	if !ok {
		return Mint{}, fmt.Errorf("mint %s: %w", mint, sentinel.ErrNotFound)
	}
	return *m, nil
}

// Apply validates and commits ops as one unit.
func (l *InMemory) Apply(_ context.Context, ops ...Op) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := l.stage()
	for i, op := range ops {
		if err := staged.apply(op); err != nil {
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
		}
	}
	l.mints = staged.mints
	l.accounts = staged.accounts
	return nil
}

type stagedState struct {
	mints    map[id.MintID]*Mint
	accounts map[id.AccountID]*Account
}

func (l *InMemory) stage() *stagedState {
	s := &stagedState{
		mints:    make(map[id.MintID]*Mint, len(l.mints)),
		accounts: make(map[id.AccountID]*Account, len(l.accounts)),
	}
	for k, v := range l.mints {
		m := *v
		s.mints[k] = &m
	}
	for k, v := range l.accounts {
		a := *v
		s.accounts[k] = &a
	}
	return s
}

func (s *stagedState) account(accountID id.AccountID) (*Account, error) {
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, sentinel.ErrNotFound)
	}
	return acc, nil
}

func (s *stagedState) apply(op Op) error {
	switch op.Kind {
	case OpTransfer:
		from, err := s.account(op.From)
		if err != nil {
			return err
		}
		to, err := s.account(op.To)
		if err != nil {
			return err
		}
		if from.Owner != op.Authority {
			return fmt.Errorf("transfer from %s: authority mismatch", op.From)
		}
		if from.Mint != to.Mint {
			return fmt.Errorf("transfer %s -> %s: mint mismatch", op.From, op.To)
		}
		if from.Balance < op.Amount {
			return fmt.Errorf("transfer from %s: %w", op.From, sentinel.ErrInsufficientFunds)
		}
		from.Balance -= op.Amount
		to.Balance += op.Amount
		return nil

	case OpMint:
		m, ok := s.mints[op.Mint]
		if !ok {
			return fmt.Errorf("mint %s: %w", op.Mint, sentinel.ErrNotFound)
		}
		to, err := s.account(op.To)
		if err != nil {
			return err
		}
		if m.Authority != op.Authority {
			return fmt.Errorf("mint %s: authority mismatch", op.Mint)
		}
		if to.Mint != op.Mint {
			return fmt.Errorf("mint %s into %s: mint mismatch", op.Mint, op.To)
		}
		m.Supply += op.Amount
		to.Balance += op.Amount
		return nil

	case OpBurn:
		m, ok := s.mints[op.Mint]
		if !ok {
			return fmt.Errorf("mint %s: %w", op.Mint, sentinel.ErrNotFound)
		}
		from, err := s.account(op.From)
		if err != nil {
			return err
		}
		if from.Owner != op.Authority {
			return fmt.Errorf("burn from %s: authority mismatch", op.From)
		}
		if from.Mint != op.Mint {
			return fmt.Errorf("burn %s from %s: mint mismatch", op.Mint, op.From)
		}
		if from.Balance < op.Amount {
			return fmt.Errorf("burn from %s: %w", op.From, sentinel.ErrInsufficientFunds)
		}
		from.Balance -= op.Amount
		m.Supply -= op.Amount
		return nil

	case OpClose:
		acc, err := s.account(op.From)
		if err != nil {
			return err
		}
		if acc.Owner != op.Authority {
			return fmt.Errorf("close %s: authority mismatch", op.From)
		}
		if acc.Balance > 0 {
			dest, err := s.account(op.To)
			if err != nil {
				return err
			}
			if dest.Mint != acc.Mint {
				return fmt.Errorf("close %s: residual destination mint mismatch", op.From)
			}
			dest.Balance += acc.Balance
			acc.Balance = 0
		}
		delete(s.accounts, op.From)
		return nil

	default:
		return fmt.Errorf("unknown op kind %q", op.Kind)
	}
}
