// Package vault implements the voucher redemption engine: signature
// verification, exact-match nonce replay protection, cumulative claimed
// accounting, and the owner/signer/admin/router role model that gates every
// state-mutating entry point.
package vault

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/halcyonpay/payout-vault/internal/voucher"
)

// Transferor performs the authoritative native-coin payout.
type Transferor interface {
	Transfer(ctx context.Context, to common.Address, amount *big.Int) error
}

// Gateway is the opaque administrative collaborator: generic external calls
// and the swap-to-native helper. The engine only gates access to it.
type Gateway interface {
	DispatchCall(ctx context.Context, target common.Address, value *big.Int, signature string, data []byte) ([]byte, error)
	Swap(ctx context.Context, token, router common.Address, amountIn, amountOutMin *big.Int, path []common.Address) error
}

// Store persists engine state and the audit journal. Writes happen inside
// the engine lock, after the in-memory mutation has been committed.
type Store interface {
	SaveAccount(ctx context.Context, account common.Address, nonce uint64, claimed *big.Int) error
	SaveRoles(ctx context.Context, snap RolesSnapshot) error
	AppendEvent(ctx context.Context, ev Event) error
}

// Params configures a new Engine.
type Params struct {
	Owner          common.Address
	Signer         common.Address
	AllowContracts bool
	Transferor     Transferor
	Gateway        Gateway
	Store          Store // optional; nil disables persistence
	Log            *zap.Logger
}

// Engine serializes every state mutation behind one mutex, reproducing the
// single-writer, all-or-nothing execution model the redemption rules assume.
// The transfer happens while the lock is held so no caller can observe a
// nonce/claimed pair mid-redemption.
type Engine struct {
	mu      sync.Mutex
	roles   roles
	nonces  map[common.Address]uint64
	claimed map[common.Address]*big.Int

	transferor Transferor
	gateway    Gateway
	store      Store
	log        *zap.Logger
}

func New(p Params) *Engine {
	st := p.Store
	if st == nil {
		st = noopStore{}
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		roles:      newRoles(p.Owner, p.Signer, p.AllowContracts),
		nonces:     make(map[common.Address]uint64),
		claimed:    make(map[common.Address]*big.Int),
		transferor: p.Transferor,
		gateway:    p.Gateway,
		store:      st,
		log:        log,
	}
}

// Hydrate loads persisted state into a freshly constructed engine. Must be
// called before the engine starts serving requests.
func (e *Engine) Hydrate(snap *RolesSnapshot, nonces map[common.Address]uint64, claimed map[common.Address]*big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if snap != nil {
		e.roles.restore(*snap)
	}
	for addr, n := range nonces {
		e.nonces[addr] = n
	}
	for addr, c := range claimed {
		e.claimed[addr] = new(big.Int).Set(c)
	}
}

// Claim redeems a payout voucher. The whole redemption is one atomic unit:
// any failure leaves the nonce, the claimed total, and the journal untouched.
//
//	verify signature → exact nonce match → caller policy → transfer →
//	advance nonce, credit total → persist → audit event
func (e *Engine) Claim(ctx context.Context, submitter common.Address, v *voucher.PayoutVoucher) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	signer, ok := voucher.RecoverSigner(v)
	// A recovered zero address is never authorized, even when recovery
	// nominally succeeded.
	if !ok || signer == (common.Address{}) || signer != e.roles.signer {
		return ErrNotSignedBySigner
	}

	if v.Nonce != e.nonces[v.Account] {
		return fmt.Errorf("%w: voucher %d, account %d", ErrNonceMismatch, v.Nonce, e.nonces[v.Account])
	}

	if !e.roles.allowContracts && submitter != v.Account {
		return ErrContractCallerRejected
	}

	amount := v.Amount
	if amount == nil {
		amount = new(big.Int)
	}

	// The transfer is the irreversible side effect, so it runs before any
	// state advances; a failure here aborts the unit with nothing mutated.
	if err := e.transferor.Transfer(ctx, v.Account, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	e.nonces[v.Account]++
	total, exists := e.claimed[v.Account]
	if !exists {
		total = new(big.Int)
		e.claimed[v.Account] = total
	}
	total.Add(total, amount)

	if err := e.store.SaveAccount(ctx, v.Account, e.nonces[v.Account], total); err != nil {
		// The transfer already happened; memory must advance. The store is
		// reconciled from memory on the next snapshot, so log and continue.
		e.log.Error("persist account after claim", zap.String("account", v.Account.Hex()), zap.Error(err))
	}
	e.emit(ctx, Event{Type: EventClaim, Address: v.Account, Amount: new(big.Int).Set(amount), At: time.Now().Unix()})

	e.log.Info("voucher redeemed",
		zap.String("account", v.Account.Hex()),
		zap.String("amount", amount.String()),
		zap.Uint64("nonce", v.Nonce),
	)
	return nil
}

// DispatchCall forwards an arbitrary external call through the gateway.
// Owner only; the call itself is opaque to the engine. The lock is held for
// the duration of the call, same as Claim, so the ownership check and the
// call form one unit.
func (e *Engine) DispatchCall(ctx context.Context, caller, target common.Address, value *big.Int, signature string, data []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireOwner(caller); err != nil {
		return nil, err
	}

	out, err := e.gateway.DispatchCall(ctx, target, value, signature, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCallReverted, err)
	}
	return out, nil
}

// Swap routes a token balance through an allowlisted exchange router.
// Requires admin membership and an allowlisted router. The gates hold until
// the gateway returns: a revocation cannot land between the check and the
// call, it queues behind the in-flight swap.
func (e *Engine) Swap(ctx context.Context, caller, token, router common.Address, amountIn, amountOutMin *big.Int, path []common.Address) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.roles.adminSet[caller] {
		return ErrNotAdmin
	}
	if !e.roles.routers[router] {
		return ErrRouterNotAllowed
	}

	if err := e.gateway.Swap(ctx, token, router, amountIn, amountOutMin, path); err != nil {
		return fmt.Errorf("%w: %v", ErrCallReverted, err)
	}
	return nil
}

// NotifyDeposit records a passive value receipt in the audit journal.
func (e *Engine) NotifyDeposit(ctx context.Context, sender common.Address, amount *big.Int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emit(ctx, Event{Type: EventDeposit, Address: sender, Amount: new(big.Int).Set(amount), At: time.Now().Unix()})
	e.log.Info("deposit received", zap.String("sender", sender.Hex()), zap.String("amount", amount.String()))
}

// NonceOf returns the current nonce for an account (default 0).
func (e *Engine) NonceOf(account common.Address) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nonces[account]
}

// ClaimedOf returns the cumulative claimed total for an account (default 0).
func (e *Engine) ClaimedOf(account common.Address) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if total, ok := e.claimed[account]; ok {
		return new(big.Int).Set(total)
	}
	return new(big.Int)
}

// emit appends an audit event to the journal. Called with the lock held,
// only after the operation has fully succeeded.
func (e *Engine) emit(ctx context.Context, ev Event) {
	if err := e.store.AppendEvent(ctx, ev); err != nil {
		e.log.Error("append audit event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}

type noopStore struct{}

func (noopStore) SaveAccount(context.Context, common.Address, uint64, *big.Int) error { return nil }
func (noopStore) SaveRoles(context.Context, RolesSnapshot) error                      { return nil }
func (noopStore) AppendEvent(context.Context, Event) error                            { return nil }
