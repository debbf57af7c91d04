package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/halcyonpay/payout-vault/internal/api"
	"github.com/halcyonpay/payout-vault/internal/config"
	"github.com/halcyonpay/payout-vault/internal/treasury"
	"github.com/halcyonpay/payout-vault/internal/vault"
	"github.com/halcyonpay/payout-vault/internal/vault/store"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Redis ─────────────────────────────────────────────────────────────────
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", zap.Error(err))
	}

	// ── Treasury (payout key + chain RPC) ─────────────────────────────────────
	tre, err := treasury.NewClient(cfg, log)
	if err != nil {
		log.Fatal("treasury client init failed", zap.Error(err))
	}
	log.Info("treasury ready",
		zap.String("address", tre.Address().Hex()),
		zap.String("chain_id", tre.ChainID().String()),
	)

	// ── Vault engine + persisted state ────────────────────────────────────────
	st := store.New(rdb)

	eng := vault.New(vault.Params{
		Owner:          common.HexToAddress(cfg.Vault.OwnerAddress),
		Signer:         common.HexToAddress(cfg.Vault.SignerAddress),
		AllowContracts: cfg.Vault.AllowContracts,
		Transferor:     tre,
		Gateway:        tre,
		Store:          st,
		Log:            log,
	})

	snap, err := st.LoadRoles(ctx)
	if err != nil {
		log.Fatal("load roles failed", zap.Error(err))
	}
	nonces, claimed, err := st.LoadAccounts(ctx)
	if err != nil {
		log.Fatal("load accounts failed", zap.Error(err))
	}
	eng.Hydrate(snap, nonces, claimed)
	log.Info("vault state hydrated", zap.Int("accounts", len(nonces)))

	// ── Deposit watcher ───────────────────────────────────────────────────────
	// Poll-detected deposits carry no sender, so they are journaled against
	// the zero address.
	go tre.WatchDeposits(ctx, time.Duration(cfg.Vault.DepositPollSec)*time.Second, func(amount *big.Int) {
		eng.NotifyDeposit(ctx, common.Address{}, amount)
	})

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	grp := r.Group("/api", api.AuthMiddleware(rdb))
	api.NewHandler(eng, st, log).Register(grp)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
