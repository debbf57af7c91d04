package api

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/halcyonpay/payout-vault/internal/sigcheck"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testSetup creates a miniredis instance, a Redis client, and a Gin engine
// with the auth middleware wired up.
func testSetup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *gin.Engine) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := gin.New()
	r.POST("/test", AuthMiddleware(rdb), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"wallet": c.GetString(callerKey)})
	})
	return mr, rdb, r
}

// buildRequest creates a valid signed HTTP request for testing.
// expiresOffset is relative to now (e.g. +2*time.Minute for valid, -1 for expired).
func buildRequest(t *testing.T, expiresOffset time.Duration, nonce string) (*http.Request, string) {
	t.Helper()
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	walletAddr := crypto.PubkeyToAddress(privKey.PublicKey).Hex()

	sr := SignedRequest{
		Action:     "POST /test",
		ExpiresAt:  time.Now().Add(expiresOffset).Unix(),
		Nonce:      nonce,
		Payload:    json.RawMessage(`{}`),
		ResourceID: "vault",
	}
	msgBytes, _ := json.Marshal(sr)
	msgB64 := base64.StdEncoding.EncodeToString(msgBytes)

	hash := sigcheck.HashMessage(msgBytes)
	sig, _ := crypto.Sign(hash, privKey)
	sig[64] += 27
	sigHex := "0x" + hex.EncodeToString(sig)

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-Wallet-Address", walletAddr)
	req.Header.Set("X-Signed-Message", msgB64)
	req.Header.Set("X-Wallet-Signature", sigHex)

	return req, walletAddr
}

func TestAuthMiddleware_ValidRequest(t *testing.T) {
	_, _, r := testSetup(t)

	req, wallet := buildRequest(t, 2*time.Minute, "nonce-valid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["wallet"] != wallet {
		t.Errorf("caller identity: got %q want %q", resp["wallet"], wallet)
	}
}

func TestAuthMiddleware_MissingHeaders(t *testing.T) {
	_, _, r := testSetup(t)

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAuthMiddleware_Expired(t *testing.T) {
	_, _, r := testSetup(t)

	req, _ := buildRequest(t, -1*time.Second, "nonce-expired-1") // already expired
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["error"] != "request expired" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestAuthMiddleware_TooFarInFuture(t *testing.T) {
	_, _, r := testSetup(t)

	req, _ := buildRequest(t, 10*time.Minute, "nonce-future-1") // > 5 min
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["error"] != "expires_at too far in future" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestAuthMiddleware_ForgedIdentity(t *testing.T) {
	_, _, r := testSetup(t)

	// Build valid request, then swap in a different wallet address
	req, _ := buildRequest(t, 2*time.Minute, "nonce-badsig-1")
	req.Header.Set("X-Wallet-Address", "0x000000000000000000000000000000000000dEaD")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["error"] != "invalid signature" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestAuthMiddleware_ActionBoundToRoute(t *testing.T) {
	_, _, r := testSetup(t)

	// A validly signed envelope naming a different endpoint must not be
	// accepted here.
	privKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	sr := SignedRequest{
		Action:     "POST /other",
		ExpiresAt:  time.Now().Add(2 * time.Minute).Unix(),
		Nonce:      "nonce-action-1",
		Payload:    json.RawMessage(`{}`),
		ResourceID: "vault",
	}
	msgBytes, _ := json.Marshal(sr)
	hash := sigcheck.HashMessage(msgBytes)
	sig, _ := crypto.Sign(hash, privKey)
	sig[64] += 27

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set("X-Wallet-Address", crypto.PubkeyToAddress(privKey.PublicKey).Hex())
	req.Header.Set("X-Signed-Message", base64.StdEncoding.EncodeToString(msgBytes))
	req.Header.Set("X-Wallet-Signature", "0x"+hex.EncodeToString(sig))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w.Body.Bytes(), &resp) //nolint:errcheck
	if resp["error"] != "action mismatch" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestAuthMiddleware_NonceReplay(t *testing.T) {
	_, _, r := testSetup(t)

	req1, _ := buildRequest(t, 2*time.Minute, "nonce-replay-1")
	req2, _ := buildRequest(t, 2*time.Minute, "nonce-replay-1") // same nonce, different key

	w1 := httptest.NewRecorder()
	r.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first request: expected 200, got %d: %s", w1.Code, w1.Body.String())
	}

	// Second request with the same envelope nonce: 401 even with a fresh key.
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	if w2.Code != http.StatusUnauthorized {
		t.Fatalf("replay: expected 401, got %d: %s", w2.Code, w2.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(w2.Body.Bytes(), &resp) //nolint:errcheck
	if resp["error"] != "nonce already used" {
		t.Errorf("unexpected error: %s", resp["error"])
	}
}

func TestAuthMiddleware_GarbageSignature(t *testing.T) {
	_, _, r := testSetup(t)

	req, _ := buildRequest(t, 2*time.Minute, "nonce-garbage-1")
	req.Header.Set("X-Wallet-Signature", "0xzzzz")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
