package substrate

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"mpesapool/internal/ledger"
	"mpesapool/internal/model"
)

// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
var ErrInsufficientBalance = errors.New("insufficient substrate balance")

// Accounts is the account substrate the pool ledger settles against.
type Accounts = ledger.Accounts

var _ Accounts = (*Memory)(nil)

// Memory is an in-process account substrate keyed by address.
type Memory struct {
	mu       sync.RWMutex
	balances map[common.Address]ledger.Amount
	height   uint64
}

// NewMemory returns an empty substrate at height zero.
func NewMemory() *Memory {
	return &Memory{balances: make(map[common.Address]ledger.Amount)}
}

// FromGenesis returns a substrate seeded with genesis balances.
func FromGenesis(genesis model.Genesis) (*Memory, error) {
	m := NewMemory()
	if err := m.Load(genesis.Accounts); err != nil {
		return nil, err
	}
	return m, nil
}

// Load adds the given balances to the substrate.
func (m *Memory) Load(records []model.AccountRecord) error {
	for _, rec := range records {
		if !common.IsHexAddress(rec.Account) {
			return fmt.Errorf("invalid account %q", rec.Account)
		}
		amount, err := ledger.ParseAmount(rec.Balance)
		if err != nil {
			return fmt.Errorf("account %s: %w", rec.Account, err)
		}
		if err := m.Credit(common.HexToAddress(rec.Account), amount); err != nil {
			return err
		}
	}
	return nil
}

// SpendableBalance returns the account's balance, zero if unknown.
func (m *Memory) SpendableBalance(account common.Address) ledger.Amount {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account]
}

// Transfer moves amount between two accounts.
func (m *Memory) Transfer(from, to common.Address, amount ledger.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	src := m.balances[from]
	if src.Lt(&amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Hex(), src.Dec(), amount.Dec())
	}
	dst := m.balances[to]
	if _, overflow := dst.AddOverflow(&dst, &amount); overflow {
		return fmt.Errorf("balance overflow for %s", to.Hex())
	}
	src.Sub(&src, &amount)

	m.balances[from] = src
	m.balances[to] = dst
	return nil
}

// Credit mints amount into account. It is used for genesis balances only.
func (m *Memory) Credit(account common.Address, amount ledger.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal := m.balances[account]
	if _, overflow := bal.AddOverflow(&bal, &amount); overflow {
		return fmt.Errorf("balance overflow for %s", account.Hex())
	}
	m.balances[account] = bal
	return nil
}

// CurrentBlockHeight returns the height set by the block driver.
func (m *Memory) CurrentBlockHeight() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height
}

// SetHeight advances the substrate to height. Heights never move backwards.
func (m *Memory) SetHeight(height uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if height < m.height {
		return fmt.Errorf("height %d is behind current height %d", height, m.height)
	}
	m.height = height
	return nil
}

// Balances exports non-zero balances ordered by account.
func (m *Memory) Balances() []model.AccountRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	accounts := make([]common.Address, 0, len(m.balances))
	for addr, bal := range m.balances {
		if !bal.IsZero() {
			accounts = append(accounts, addr)
		}
	}
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i][:], accounts[j][:]) < 0
	})

	out := make([]model.AccountRecord, 0, len(accounts))
	for _, addr := range accounts {
		bal := m.balances[addr]
		out = append(out, model.AccountRecord{Account: addr.Hex(), Balance: bal.Dec()})
	}
	return out
}
