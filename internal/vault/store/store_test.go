package store

import (
	"context"
	"math/big"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/halcyonpay/payout-vault/internal/vault"
	"github.com/halcyonpay/payout-vault/internal/voucher"
)

func newTestStore(t *testing.T) (*Store, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb), rdb
}

var (
	acctA = common.HexToAddress("0x1111111111111111111111111111111111111111")
	acctB = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

// ── Accounts ─────────────────────────────────────────────────────────────────

func TestSaveAccount_LoadAccounts_RoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	big1, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	if err := st.SaveAccount(ctx, acctA, 3, big1); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}
	if err := st.SaveAccount(ctx, acctB, 1, big.NewInt(50)); err != nil {
		t.Fatalf("SaveAccount: %v", err)
	}

	nonces, claimed, err := st.LoadAccounts(ctx)
	if err != nil {
		t.Fatalf("LoadAccounts: %v", err)
	}
	if nonces[acctA] != 3 || nonces[acctB] != 1 {
		t.Errorf("nonces: %+v", nonces)
	}
	if claimed[acctA].Cmp(big1) != 0 {
		t.Errorf("claimed A: got %s want %s", claimed[acctA], big1)
	}
	if claimed[acctB].Cmp(big.NewInt(50)) != 0 {
		t.Errorf("claimed B: got %s", claimed[acctB])
	}
}

func TestSaveAccount_Overwrites(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	if err := st.SaveAccount(ctx, acctA, 1, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	if err := st.SaveAccount(ctx, acctA, 2, big.NewInt(250)); err != nil {
		t.Fatal(err)
	}

	nonces, claimed, err := st.LoadAccounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if nonces[acctA] != 2 || claimed[acctA].Cmp(big.NewInt(250)) != 0 {
		t.Errorf("latest write lost: nonce=%d claimed=%s", nonces[acctA], claimed[acctA])
	}
}

func TestLoadAccounts_Empty(t *testing.T) {
	st, _ := newTestStore(t)

	nonces, claimed, err := st.LoadAccounts(context.Background())
	if err != nil {
		t.Fatalf("LoadAccounts on empty store: %v", err)
	}
	if len(nonces) != 0 || len(claimed) != 0 {
		t.Errorf("expected empty maps, got %d/%d entries", len(nonces), len(claimed))
	}
}

// ── Roles ────────────────────────────────────────────────────────────────────

func TestLoadRoles_NoneSaved(t *testing.T) {
	st, _ := newTestStore(t)

	snap, err := st.LoadRoles(context.Background())
	if err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}
	if snap != nil {
		t.Fatalf("expected nil snapshot, got %+v", snap)
	}
}

func TestSaveRoles_LoadRoles_RoundTrip(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	in := vault.RolesSnapshot{
		Owner:          common.HexToAddress("0xAA"),
		Signer:         common.HexToAddress("0xBB"),
		AllowContracts: true,
		AdminSlots:     []common.Address{common.HexToAddress("0xA1"), {}, common.HexToAddress("0xA3")},
		AdminCount:     2,
		Routers:        []common.Address{common.HexToAddress("0xF1")},
	}
	if err := st.SaveRoles(ctx, in); err != nil {
		t.Fatalf("SaveRoles: %v", err)
	}

	out, err := st.LoadRoles(ctx)
	if err != nil {
		t.Fatalf("LoadRoles: %v", err)
	}
	if out == nil {
		t.Fatal("expected snapshot, got nil")
	}
	if out.Owner != in.Owner || out.Signer != in.Signer || out.AllowContracts != in.AllowContracts {
		t.Errorf("header mismatch: %+v", out)
	}
	if len(out.AdminSlots) != 3 || out.AdminSlots[1] != (common.Address{}) {
		t.Errorf("tombstoned slot lost: %+v", out.AdminSlots)
	}
	if out.AdminCount != 2 {
		t.Errorf("admin count: got %d want 2", out.AdminCount)
	}
	if len(out.Routers) != 1 || out.Routers[0] != in.Routers[0] {
		t.Errorf("routers mismatch: %+v", out.Routers)
	}
}

// ── Events ───────────────────────────────────────────────────────────────────

func TestAppendEvent_RecentEvents(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	evs := []vault.Event{
		{Type: vault.EventClaim, Address: acctA, Amount: big.NewInt(100), At: 1000},
		{Type: vault.EventDeposit, Address: acctB, Amount: big.NewInt(5), At: 1001},
		{Type: vault.EventSetAdmin, Address: acctA, Added: true, Index: 0, At: 1002},
	}
	for _, ev := range evs {
		if err := st.AppendEvent(ctx, ev); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}

	got, err := st.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	if got[0].Type != vault.EventClaim || got[0].Amount.Cmp(big.NewInt(100)) != 0 {
		t.Errorf("first event mismatch: %+v", got[0])
	}
	if got[2].Type != vault.EventSetAdmin || !got[2].Added {
		t.Errorf("last event mismatch: %+v", got[2])
	}
}

func TestRecentEvents_Limit(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	for i := int64(0); i < 5; i++ {
		if err := st.AppendEvent(ctx, vault.Event{Type: vault.EventDeposit, Address: acctA, Amount: big.NewInt(i), At: i}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := st.RecentEvents(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	// Most recent two, oldest first.
	if got[0].Amount.Int64() != 3 || got[1].Amount.Int64() != 4 {
		t.Errorf("wrong window: %+v", got)
	}
}

func TestAppendEvent_SkipsCorruptEntries(t *testing.T) {
	st, rdb := newTestStore(t)
	ctx := context.Background()

	rdb.RPush(ctx, voucher.EventListKey, "not json") //nolint:errcheck
	if err := st.AppendEvent(ctx, vault.Event{Type: vault.EventClaim, Address: acctA, Amount: big.NewInt(1), At: 1}); err != nil {
		t.Fatal(err)
	}

	got, err := st.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != vault.EventClaim {
		t.Errorf("corrupt entry not skipped: %+v", got)
	}
}
