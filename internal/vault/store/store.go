// Package store persists vault state in Redis: per-account nonces and
// claimed totals in hashes, the role snapshot as JSON, and the audit
// journal as a bounded list.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/halcyonpay/payout-vault/internal/vault"
	"github.com/halcyonpay/payout-vault/internal/voucher"
)

// maxEvents bounds the audit journal; older entries are trimmed.
const maxEvents = 10_000

// Store is a redis-backed vault.Store.
type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// SaveAccount writes an account's nonce and claimed total through.
func (s *Store) SaveAccount(ctx context.Context, account common.Address, nonce uint64, claimed *big.Int) error {
	field := account.Hex()
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, voucher.NonceHashKey, field, strconv.FormatUint(nonce, 10))
	pipe.HSet(ctx, voucher.ClaimedHashKey, field, claimed.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save account %s: %w", field, err)
	}
	return nil
}

// SaveRoles stores the role snapshot as JSON.
func (s *Store) SaveRoles(ctx context.Context, snap vault.RolesSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal roles: %w", err)
	}
	return s.rdb.Set(ctx, voucher.RolesKey, string(raw), 0).Err()
}

// AppendEvent pushes an audit event onto the journal and trims it.
func (s *Store) AppendEvent(ctx context.Context, ev vault.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, voucher.EventListKey, string(raw))
	pipe.LTrim(ctx, voucher.EventListKey, -maxEvents, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// LoadAccounts reads back every persisted nonce and claimed total.
func (s *Store) LoadAccounts(ctx context.Context) (map[common.Address]uint64, map[common.Address]*big.Int, error) {
	rawNonces, err := s.rdb.HGetAll(ctx, voucher.NonceHashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load nonces: %w", err)
	}
	rawClaimed, err := s.rdb.HGetAll(ctx, voucher.ClaimedHashKey).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("load claimed: %w", err)
	}

	nonces := make(map[common.Address]uint64, len(rawNonces))
	for field, val := range rawNonces {
		n, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("corrupt nonce for %s: %w", field, err)
		}
		nonces[common.HexToAddress(field)] = n
	}

	claimed := make(map[common.Address]*big.Int, len(rawClaimed))
	for field, val := range rawClaimed {
		c, ok := new(big.Int).SetString(val, 10)
		if !ok {
			return nil, nil, fmt.Errorf("corrupt claimed total for %s: %q", field, val)
		}
		claimed[common.HexToAddress(field)] = c
	}
	return nonces, claimed, nil
}

// LoadRoles reads the role snapshot; (nil, nil) when none has been saved.
func (s *Store) LoadRoles(ctx context.Context) (*vault.RolesSnapshot, error) {
	raw, err := s.rdb.Get(ctx, voucher.RolesKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	var snap vault.RolesSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal roles: %w", err)
	}
	return &snap, nil
}

// RecentEvents returns up to n most recent audit events, oldest first.
func (s *Store) RecentEvents(ctx context.Context, n int64) ([]vault.Event, error) {
	raw, err := s.rdb.LRange(ctx, voucher.EventListKey, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	events := make([]vault.Event, 0, len(raw))
	for _, item := range raw {
		var ev vault.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}
