// Package ledger owns all money and outcome-token balances. Every mutating
// operation keeps the available/locked split consistent: a reservation is
// always paired with exactly one release, settle, or burn, and a lock
// underflow is a programming defect surfaced as ErrLockUnderflow rather
// than silently clamped.
package ledger

import (
	"errors"
	"fmt"

	"github.com/omarkets/exchange-engine/internal/model"
)

var (
	ErrAccountExists     = errors.New("ledger: account already exists")
	ErrAccountNotFound   = errors.New("ledger: account not found")
	ErrInsufficientFunds = errors.New("ledger: insufficient balance")
	ErrInsufficientStock = errors.New("ledger: insufficient stock balance")
	ErrLockUnderflow     = errors.New("ledger: lock accounting underflow")
)

// Account holds one user's money and per-symbol outcome positions.
type Account struct {
	Money     model.Money
	Positions map[string]model.SymbolPosition
}

// Ledger is the in-memory account table. It is not safe for concurrent
// use; the sequencer serializes all access.
type Ledger struct {
	accounts map[string]*Account
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// CreateAccount registers a new user with zero balances.
func (l *Ledger) CreateAccount(userID string) error {
	if _, ok := l.accounts[userID]; ok {
		return fmt.Errorf("%w: %s", ErrAccountExists, userID)
	}
	l.accounts[userID] = &Account{
		Positions: make(map[string]model.SymbolPosition),
	}
	return nil
}

// Exists reports whether the user has an account.
func (l *Ledger) Exists(userID string) bool {
	_, ok := l.accounts[userID]
	return ok
}

// Reset drops every account. Operational/test hook only.
func (l *Ledger) Reset() {
	l.accounts = make(map[string]*Account)
}

func (l *Ledger) account(userID string) (*Account, error) {
	a, ok := l.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, userID)
	}
	return a, nil
}

// --- Money operations (minor units) ---

// Deposit credits available money. Top-up path.
func (l *Ledger) Deposit(userID string, amount int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	a.Money.Balance += amount
	return nil
}

// Reserve moves amount from available to locked, failing if the user
// cannot cover it.
func (l *Ledger) Reserve(userID string, amount int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	if a.Money.Balance < amount {
		return fmt.Errorf("%w: user %s needs %d, has %d", ErrInsufficientFunds, userID, amount, a.Money.Balance)
	}
	a.Money.Balance -= amount
	a.Money.Locked += amount
	return nil
}

// Release reverses a reservation, moving amount from locked back to
// available.
func (l *Ledger) Release(userID string, amount int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	if a.Money.Locked < amount {
		return fmt.Errorf("%w: release %d exceeds lock %d for %s", ErrLockUnderflow, amount, a.Money.Locked, userID)
	}
	a.Money.Locked -= amount
	a.Money.Balance += amount
	return nil
}

// Settle pays amount out of the payer's lock into the payee's available
// balance. Fill path: the payer reserved the funds when the order was
// accepted.
func (l *Ledger) Settle(payerID, payeeID string, amount int64) error {
	payer, err := l.account(payerID)
	if err != nil {
		return err
	}
	payee, err := l.account(payeeID)
	if err != nil {
		return err
	}
	if payer.Money.Locked < amount {
		return fmt.Errorf("%w: settle %d exceeds lock %d for %s", ErrLockUnderflow, amount, payer.Money.Locked, payerID)
	}
	payer.Money.Locked -= amount
	payee.Money.Balance += amount
	return nil
}

// BurnLocked consumes amount from the user's lock without paying anyone.
// Mint-on-match path: the burned locks of the two buyers collateralize the
// freshly minted pair.
func (l *Ledger) BurnLocked(userID string, amount int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	if a.Money.Locked < amount {
		return fmt.Errorf("%w: burn %d exceeds lock %d for %s", ErrLockUnderflow, amount, a.Money.Locked, userID)
	}
	a.Money.Locked -= amount
	return nil
}

// DebitAvailable spends amount directly from available money. Mint path.
func (l *Ledger) DebitAvailable(userID string, amount int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	if a.Money.Balance < amount {
		return fmt.Errorf("%w: user %s needs %d, has %d", ErrInsufficientFunds, userID, amount, a.Money.Balance)
	}
	a.Money.Balance -= amount
	return nil
}

// --- Stock operations ---

// position returns the user's holding record for (symbol, outcome),
// creating it when create is set. Creation is reserved for the mint and
// fill-credit paths; every other caller treats a missing record as zero.
func (l *Ledger) position(a *Account, symbol string, outcome model.Outcome, create bool) *model.Position {
	sp, ok := a.Positions[symbol]
	if !ok {
		if !create {
			return nil
		}
		sp = make(model.SymbolPosition)
		a.Positions[symbol] = sp
	}
	p, ok := sp[outcome]
	if !ok {
		if !create {
			return nil
		}
		p = &model.Position{}
		sp[outcome] = p
	}
	return p
}

// CreditStock credits qty tokens of one outcome to the user's available
// position, initializing a fresh record if the symbol is new to them.
func (l *Ledger) CreditStock(userID, symbol string, outcome model.Outcome, qty int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	l.position(a, symbol, outcome, true).Quantity += qty
	return nil
}

// AvailableStock returns the user's spendable quantity of one outcome.
func (l *Ledger) AvailableStock(userID, symbol string, outcome model.Outcome) int64 {
	a, ok := l.accounts[userID]
	if !ok {
		return 0
	}
	p := l.position(a, symbol, outcome, false)
	if p == nil {
		return 0
	}
	return p.Quantity
}

// HoldsSymbol reports whether the user has ever held either outcome of
// the symbol.
func (l *Ledger) HoldsSymbol(userID, symbol string) bool {
	a, ok := l.accounts[userID]
	if !ok {
		return false
	}
	_, ok = a.Positions[symbol]
	return ok
}

// LockStock reserves qty tokens against a resting Exit order.
func (l *Ledger) LockStock(userID, symbol string, outcome model.Outcome, qty int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	p := l.position(a, symbol, outcome, false)
	if p == nil || p.Quantity < qty {
		return fmt.Errorf("%w: user %s %s/%s", ErrInsufficientStock, userID, symbol, outcome)
	}
	p.Quantity -= qty
	p.Locked += qty
	return nil
}

// UnlockStock reverses a stock reservation. Cancellation path.
func (l *Ledger) UnlockStock(userID, symbol string, outcome model.Outcome, qty int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	p := l.position(a, symbol, outcome, false)
	if p == nil || p.Locked < qty {
		return fmt.Errorf("%w: unlock %d of %s/%s for %s", ErrLockUnderflow, qty, symbol, outcome, userID)
	}
	p.Locked -= qty
	p.Quantity += qty
	return nil
}

// ConsumeLockedStock removes qty from the user's locked stock. Exit fill
// path: the tokens transfer to the taker via CreditStock.
func (l *Ledger) ConsumeLockedStock(userID, symbol string, outcome model.Outcome, qty int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	p := l.position(a, symbol, outcome, false)
	if p == nil || p.Locked < qty {
		return fmt.Errorf("%w: consume %d of %s/%s for %s", ErrLockUnderflow, qty, symbol, outcome, userID)
	}
	p.Locked -= qty
	return nil
}

// ConsumeAvailableStock removes qty from the user's available stock.
// Immediate sell-fill path: no lock is taken because the counter-party
// already reserved funds.
func (l *Ledger) ConsumeAvailableStock(userID, symbol string, outcome model.Outcome, qty int64) error {
	a, err := l.account(userID)
	if err != nil {
		return err
	}
	p := l.position(a, symbol, outcome, false)
	if p == nil || p.Quantity < qty {
		return fmt.Errorf("%w: user %s %s/%s", ErrInsufficientStock, userID, symbol, outcome)
	}
	p.Quantity -= qty
	return nil
}

// --- Views (copies; callers never see live state) ---

// BalanceOf returns one user's money balance.
func (l *Ledger) BalanceOf(userID string) (model.Money, error) {
	a, err := l.account(userID)
	if err != nil {
		return model.Money{}, err
	}
	return a.Money, nil
}

// Balances returns every user's money balance.
func (l *Ledger) Balances() map[string]model.Money {
	out := make(map[string]model.Money, len(l.accounts))
	for id, a := range l.accounts {
		out[id] = a.Money
	}
	return out
}

// PositionsOf returns one user's holdings across all symbols.
func (l *Ledger) PositionsOf(userID string) (map[string]model.SymbolPosition, error) {
	a, err := l.account(userID)
	if err != nil {
		return nil, err
	}
	return copyPositions(a.Positions), nil
}

// Positions returns every user's holdings.
func (l *Ledger) Positions() map[string]map[string]model.SymbolPosition {
	out := make(map[string]map[string]model.SymbolPosition, len(l.accounts))
	for id, a := range l.accounts {
		if len(a.Positions) == 0 {
			continue
		}
		out[id] = copyPositions(a.Positions)
	}
	return out
}

func copyPositions(src map[string]model.SymbolPosition) map[string]model.SymbolPosition {
	out := make(map[string]model.SymbolPosition, len(src))
	for symbol, sp := range src {
		cp := make(model.SymbolPosition, len(sp))
		for outcome, p := range sp {
			c := *p
			cp[outcome] = &c
		}
		out[symbol] = cp
	}
	return out
}
