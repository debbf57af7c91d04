// Package api exposes the vault over HTTP: public voucher submission,
// read-only accessors, and the owner/admin surface. Authorization beyond
// "who signed this request" lives in the engine; handlers only translate
// between JSON and engine calls.
package api

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/halcyonpay/payout-vault/internal/vault"
	"github.com/halcyonpay/payout-vault/internal/voucher"
)

// EventReader serves the audit-journal endpoint. Satisfied by store.Store.
type EventReader interface {
	RecentEvents(ctx context.Context, n int64) ([]vault.Event, error)
}

// Handler wires the vault routes onto a Gin engine.
type Handler struct {
	engine *vault.Engine
	events EventReader
	log    *zap.Logger
}

func NewHandler(engine *vault.Engine, events EventReader, log *zap.Logger) *Handler {
	return &Handler{engine: engine, events: events, log: log}
}

// Register mounts all routes. authMiddleware should already be applied to
// the group so every handler can rely on the caller identity.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/claim", h.handleClaim)
	rg.POST("/deposit", h.handleDeposit)

	rg.GET("/accounts/:addr/nonce", h.handleNonce)
	rg.GET("/accounts/:addr/claimed", h.handleClaimed)
	rg.GET("/events", h.handleEvents)

	rg.POST("/admin/settings", h.handleSettings)
	rg.POST("/admin/admins", h.handleSetAdmin)
	rg.POST("/admin/routers", h.handleSetRouter)
	rg.POST("/admin/dispatch", h.handleDispatch)
	rg.POST("/admin/swap", h.handleSwap)
}

// caller returns the wallet address the auth middleware verified.
func caller(c *gin.Context) common.Address {
	return common.HexToAddress(c.GetString(callerKey))
}

// failureStatus maps engine sentinels onto HTTP statuses. The taxonomy:
// bad voucher credentials → 401, role failures → 403, replay and
// admin-set conflicts → 409, malformed configuration values → 400,
// downstream chain failures → 502.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, vault.ErrNotSignedBySigner),
		errors.Is(err, vault.ErrContractCallerRejected):
		return http.StatusUnauthorized
	case errors.Is(err, vault.ErrNotOwner),
		errors.Is(err, vault.ErrNotAdmin),
		errors.Is(err, vault.ErrRouterNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, vault.ErrNonceMismatch),
		errors.Is(err, vault.ErrAdminExists),
		errors.Is(err, vault.ErrIndexMismatch):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInvalidOwner),
		errors.Is(err, vault.ErrInvalidSigner):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrTransferFailed),
		errors.Is(err, vault.ErrCallReverted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func abortWith(c *gin.Context, err error) {
	c.JSON(failureStatus(err), gin.H{"error": err.Error()})
}

// ── Claim ────────────────────────────────────────────────────────────────────

type claimRequest struct {
	Account   string `json:"account" binding:"required"`
	Amount    string `json:"amount" binding:"required"`
	Nonce     uint64 `json:"nonce"`
	Signature string `json:"signature" binding:"required"`
}

func (h *Handler) handleClaim(c *gin.Context) {
	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	account, ok := parseAddress(req.Account)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account address"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(req.Signature, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature hex"})
		return
	}

	v := &voucher.PayoutVoucher{Account: account, Amount: amount, Nonce: req.Nonce, Signature: sig}
	if err := h.engine.Claim(c.Request.Context(), caller(c), v); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account": account.Hex(),
		"amount":  amount.String(),
		"nonce":   req.Nonce,
	})
}

// ── Deposits ─────────────────────────────────────────────────────────────────

type depositRequest struct {
	Amount string `json:"amount" binding:"required"`
}

func (h *Handler) handleDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	h.engine.NotifyDeposit(c.Request.Context(), caller(c), amount)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ── Read-only accessors ──────────────────────────────────────────────────────

func (h *Handler) handleNonce(c *gin.Context) {
	addr, ok := parseAddress(c.Param("addr"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr.Hex(), "nonce": h.engine.NonceOf(addr)})
}

func (h *Handler) handleClaimed(c *gin.Context) {
	addr, ok := parseAddress(c.Param("addr"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": addr.Hex(), "claimed": h.engine.ClaimedOf(addr).String()})
}

func (h *Handler) handleEvents(c *gin.Context) {
	if h.events == nil {
		c.JSON(http.StatusOK, []vault.Event{})
		return
	}
	events, err := h.events.RecentEvents(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "journal unavailable"})
		return
	}
	c.JSON(http.StatusOK, events)
}

// ── Owner surface ────────────────────────────────────────────────────────────

type routerChangeRequest struct {
	Address string `json:"address" binding:"required"`
	Allowed bool   `json:"allowed"`
}

type settingsRequest struct {
	Owner          string                `json:"owner" binding:"required"`
	Signer         string                `json:"signer" binding:"required"`
	AllowContracts bool                  `json:"allow_contracts"`
	Routers        []routerChangeRequest `json:"routers"`
}

func (h *Handler) handleSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	// Zero-value rejection happens in the engine; here only shape checks.
	newOwner, ok := parseAddress(req.Owner)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner address"})
		return
	}
	newSigner, ok := parseAddress(req.Signer)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signer address"})
		return
	}
	changes := make([]vault.RouterChange, 0, len(req.Routers))
	for _, rc := range req.Routers {
		addr, ok := parseAddress(rc.Address)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid router address"})
			return
		}
		changes = append(changes, vault.RouterChange{Address: addr, Allowed: rc.Allowed})
	}

	if err := h.engine.UpdateSettings(c.Request.Context(), caller(c), newOwner, newSigner, req.AllowContracts, changes); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type setAdminRequest struct {
	Address string `json:"address" binding:"required"`
	Add     bool   `json:"add"`
	Index   int    `json:"index"`
}

func (h *Handler) handleSetAdmin(c *gin.Context) {
	var req setAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	if err := h.engine.SetAdmin(c.Request.Context(), caller(c), addr, req.Add, req.Index); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type setRouterRequest struct {
	Address string `json:"address" binding:"required"`
	Allowed bool   `json:"allowed"`
}

func (h *Handler) handleSetRouter(c *gin.Context) {
	var req setRouterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	addr, ok := parseAddress(req.Address)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid address"})
		return
	}
	if err := h.engine.SetRouter(c.Request.Context(), caller(c), addr, req.Allowed); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type dispatchRequest struct {
	Target    string `json:"target" binding:"required"`
	Value     string `json:"value"`
	Signature string `json:"signature"`
	Data      string `json:"data"`
}

func (h *Handler) handleDispatch(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	target, ok := parseAddress(req.Target)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid target address"})
		return
	}
	value := new(big.Int)
	if req.Value != "" {
		if value, ok = parseAmount(req.Value); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
			return
		}
	}
	data, err := hex.DecodeString(strings.TrimPrefix(req.Data, "0x"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid data hex"})
		return
	}

	out, err := h.engine.DispatchCall(c.Request.Context(), caller(c), target, value, req.Signature, data)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "0x" + hex.EncodeToString(out)})
}

// ── Admin surface ────────────────────────────────────────────────────────────

type swapRequest struct {
	Token        string   `json:"token" binding:"required"`
	Router       string   `json:"router" binding:"required"`
	AmountIn     string   `json:"amount_in" binding:"required"`
	AmountOutMin string   `json:"amount_out_min"`
	Path         []string `json:"path" binding:"required"`
}

func (h *Handler) handleSwap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token, ok := parseAddress(req.Token)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token address"})
		return
	}
	router, ok := parseAddress(req.Router)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid router address"})
		return
	}
	amountIn, ok := parseAmount(req.AmountIn)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount_in"})
		return
	}
	amountOutMin := new(big.Int)
	if req.AmountOutMin != "" {
		if amountOutMin, ok = parseAmount(req.AmountOutMin); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount_out_min"})
			return
		}
	}
	path := make([]common.Address, 0, len(req.Path))
	for _, p := range req.Path {
		addr, ok := parseAddress(p)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid path entry"})
			return
		}
		path = append(path, addr)
	}

	if err := h.engine.Swap(c.Request.Context(), caller(c), token, router, amountIn, amountOutMin, path); err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// parseAmount accepts a non-negative base-10 integer string.
func parseAmount(s string) (*big.Int, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return nil, false
	}
	return n, true
}
