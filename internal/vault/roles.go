package vault

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// RouterChange toggles one router-allowlist entry inside UpdateSettings.
type RouterChange struct {
	Address common.Address `json:"address"`
	Allowed bool           `json:"allowed"`
}

// RolesSnapshot is the serializable form of the role state, used for
// persistence and for read-only inspection.
type RolesSnapshot struct {
	Owner          common.Address   `json:"owner"`
	Signer         common.Address   `json:"signer"`
	AllowContracts bool             `json:"allow_contracts"`
	AdminSlots     []common.Address `json:"admin_slots"`
	AdminCount     int              `json:"admin_count"`
	Routers        []common.Address `json:"routers"`
}

// roles holds the mutable role state. Admin removal zeroes the slot in
// place instead of compacting, so adminCount and len(adminSlots) diverge
// after a removal; AdminSlots exposes the raw list, tombstones included.
type roles struct {
	owner          common.Address
	signer         common.Address
	allowContracts bool
	adminSlots     []common.Address
	adminSet       map[common.Address]bool
	adminCount     int
	routers        map[common.Address]bool
}

func newRoles(owner, signer common.Address, allowContracts bool) roles {
	return roles{
		owner:          owner,
		signer:         signer,
		allowContracts: allowContracts,
		adminSet:       make(map[common.Address]bool),
		routers:        make(map[common.Address]bool),
	}
}

func (r *roles) snapshot() RolesSnapshot {
	slots := make([]common.Address, len(r.adminSlots))
	copy(slots, r.adminSlots)
	routers := make([]common.Address, 0, len(r.routers))
	for addr, ok := range r.routers {
		if ok {
			routers = append(routers, addr)
		}
	}
	return RolesSnapshot{
		Owner:          r.owner,
		Signer:         r.signer,
		AllowContracts: r.allowContracts,
		AdminSlots:     slots,
		AdminCount:     r.adminCount,
		Routers:        routers,
	}
}

func (r *roles) restore(snap RolesSnapshot) {
	r.owner = snap.Owner
	r.signer = snap.Signer
	r.allowContracts = snap.AllowContracts
	r.adminSlots = make([]common.Address, len(snap.AdminSlots))
	copy(r.adminSlots, snap.AdminSlots)
	r.adminSet = make(map[common.Address]bool)
	for _, addr := range snap.AdminSlots {
		if addr != (common.Address{}) {
			r.adminSet[addr] = true
		}
	}
	r.adminCount = snap.AdminCount
	r.routers = make(map[common.Address]bool)
	for _, addr := range snap.Routers {
		r.routers[addr] = true
	}
}

// UpdateSettings replaces owner, signer, and the contract-caller policy, and
// applies a batch of router allowlist toggles. Owner only.
func (e *Engine) UpdateSettings(ctx context.Context, caller, newOwner, newSigner common.Address, allowContracts bool, routerChanges []RouterChange) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.roles.owner {
		return ErrNotOwner
	}
	if newOwner == (common.Address{}) {
		return ErrInvalidOwner
	}
	if newSigner == (common.Address{}) {
		return ErrInvalidSigner
	}

	e.roles.owner = newOwner
	e.roles.signer = newSigner
	e.roles.allowContracts = allowContracts
	for _, ch := range routerChanges {
		e.roles.routers[ch.Address] = ch.Allowed
		e.emit(ctx, Event{Type: EventSetRouter, Address: ch.Address, Allowed: ch.Allowed, At: time.Now().Unix()})
	}
	e.persistRoles(ctx)

	e.log.Info("settings updated",
		zap.String("owner", newOwner.Hex()),
		zap.String("signer", newSigner.Hex()),
		zap.Bool("allow_contracts", allowContracts),
		zap.Int("router_changes", len(routerChanges)),
	)
	return nil
}

// SetAdmin adds an admin or removes one by slot index. Owner only.
//
// Removal zeroes the slot; the list is never compacted, so later slots keep
// their indices and the raw list retains a zero-address entry.
func (e *Engine) SetAdmin(ctx context.Context, caller, addr common.Address, add bool, index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.roles.owner {
		return ErrNotOwner
	}

	if add {
		if e.roles.adminSet[addr] {
			return ErrAdminExists
		}
		e.roles.adminSlots = append(e.roles.adminSlots, addr)
		e.roles.adminSet[addr] = true
		e.roles.adminCount++
		index = len(e.roles.adminSlots) - 1
	} else {
		if index < 0 || index >= len(e.roles.adminSlots) || e.roles.adminSlots[index] != addr {
			return ErrIndexMismatch
		}
		e.roles.adminSlots[index] = common.Address{}
		delete(e.roles.adminSet, addr)
		e.roles.adminCount--
	}

	e.emit(ctx, Event{Type: EventSetAdmin, Address: addr, Added: add, Index: index, At: time.Now().Unix()})
	e.persistRoles(ctx)

	e.log.Info("admin set updated",
		zap.String("admin", addr.Hex()),
		zap.Bool("added", add),
		zap.Int("index", index),
	)
	return nil
}

// SetRouter toggles a single router-allowlist entry. Owner only.
func (e *Engine) SetRouter(ctx context.Context, caller, addr common.Address, allowed bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.roles.owner {
		return ErrNotOwner
	}
	e.roles.routers[addr] = allowed
	e.emit(ctx, Event{Type: EventSetRouter, Address: addr, Allowed: allowed, At: time.Now().Unix()})
	e.persistRoles(ctx)

	e.log.Info("router allowlist updated", zap.String("router", addr.Hex()), zap.Bool("allowed", allowed))
	return nil
}

// persistRoles writes the role snapshot through to the store. Called with
// the engine lock held, after the in-memory mutation.
func (e *Engine) persistRoles(ctx context.Context) {
	if err := e.store.SaveRoles(ctx, e.roles.snapshot()); err != nil {
		e.log.Error("persist roles", zap.Error(err))
	}
}

// Roles returns a point-in-time snapshot of the role state.
func (e *Engine) Roles() RolesSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.snapshot()
}

// IsAdmin reports admin-set membership.
func (e *Engine) IsAdmin(addr common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.adminSet[addr]
}

// RouterAllowed reports router-allowlist membership.
func (e *Engine) RouterAllowed(addr common.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.routers[addr]
}

// requireOwner must be called with the lock held.
func (e *Engine) requireOwner(caller common.Address) error {
	if caller != e.roles.owner {
		return ErrNotOwner
	}
	return nil
}
