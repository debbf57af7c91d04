// signvoucher signs a payout voucher with the off-chain signer key and
// prints the JSON body ready for POST /api/claim.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/halcyonpay/payout-vault/internal/voucher"
)

func main() {
	keyHex := flag.String("key", os.Getenv("SIGNER_KEY"), "signer private key (hex, no 0x)")
	account := flag.String("account", "", "recipient account address")
	amountStr := flag.String("amount", "", "payout amount (base-10, wei)")
	nonce := flag.Uint64("nonce", 0, "account nonce the voucher is bound to")
	flag.Parse()

	if *keyHex == "" || *account == "" || *amountStr == "" {
		flag.Usage()
		os.Exit(2)
	}
	if !common.IsHexAddress(*account) {
		fmt.Fprintln(os.Stderr, "invalid account address")
		os.Exit(1)
	}
	amount, ok := new(big.Int).SetString(*amountStr, 10)
	if !ok || amount.Sign() < 0 {
		fmt.Fprintln(os.Stderr, "invalid amount")
		os.Exit(1)
	}
	key, err := crypto.HexToECDSA(*keyHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid signer key:", err)
		os.Exit(1)
	}

	v := &voucher.PayoutVoucher{
		Account: common.HexToAddress(*account),
		Amount:  amount,
		Nonce:   *nonce,
	}
	if err := voucher.Sign(v, key); err != nil {
		fmt.Fprintln(os.Stderr, "sign:", err)
		os.Exit(1)
	}

	body := struct {
		Account   string `json:"account"`
		Amount    string `json:"amount"`
		Nonce     uint64 `json:"nonce"`
		Signature string `json:"signature"`
	}{
		Account:   v.Account.Hex(),
		Amount:    v.Amount.String(),
		Nonce:     v.Nonce,
		Signature: "0x" + hex.EncodeToString(v.Signature),
	}
	out, _ := json.MarshalIndent(body, "", "  ")
	fmt.Println(string(out))
}
