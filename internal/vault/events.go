package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EventType tags an audit event.
type EventType string

const (
	EventClaim     EventType = "claim"
	EventDeposit   EventType = "deposit"
	EventSetAdmin  EventType = "set_admin"
	EventSetRouter EventType = "set_router"
)

// Event is one entry in the audit journal. Events fire only after an
// operation has fully succeeded; a rejected operation leaves no trace.
type Event struct {
	Type    EventType      `json:"type"`
	Address common.Address `json:"address"`
	Amount  *big.Int       `json:"amount,omitempty"`
	Added   bool           `json:"added,omitempty"`
	Index   int            `json:"index,omitempty"`
	Allowed bool           `json:"allowed,omitempty"`
	At      int64          `json:"at"`
}
