package treasury

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

const erc20ABIJSON = `[
	{"type":"function","name":"approve","inputs":[
		{"name":"spender","type":"address"},
		{"name":"value","type":"uint256"}
	],"outputs":[{"type":"bool"}]}
]`

const routerABIJSON = `[
	{"type":"function","name":"swapExactTokensForETH","inputs":[
		{"name":"amountIn","type":"uint256"},
		{"name":"amountOutMin","type":"uint256"},
		{"name":"path","type":"address[]"},
		{"name":"to","type":"address"},
		{"name":"deadline","type":"uint256"}
	],"outputs":[{"name":"amounts","type":"uint256[]"}]}
]`

var (
	erc20ABI  = mustABI(erc20ABIJSON)
	routerABI = mustABI(routerABIJSON)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("treasury: bad ABI literal: %v", err))
	}
	return parsed
}

// selector returns the leading 4 bytes of keccak256(signature), the
// standard function-selector encoding.
func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

// dispatchData builds the calldata for a generic dispatch: an empty
// signature sends the payload as-is, otherwise the selector is prefixed.
func dispatchData(signature string, payload []byte) []byte {
	if signature == "" {
		return payload
	}
	return append(selector(signature), payload...)
}

// swapCalldata packs the router call. The deadline is the supplied wall
// clock, so the swap is only valid if it lands immediately.
func swapCalldata(amountIn, amountOutMin *big.Int, path []common.Address, recipient common.Address, now time.Time) ([]byte, error) {
	return routerABI.Pack("swapExactTokensForETH", amountIn, amountOutMin, path, recipient, big.NewInt(now.Unix()))
}

// DispatchCall performs an arbitrary external call from the treasury
// account. The call is simulated first so revert data surfaces as the
// returned error; on success the state-changing transaction is submitted
// and mined.
func (c *Client) DispatchCall(ctx context.Context, target common.Address, value *big.Int, signature string, data []byte) ([]byte, error) {
	calldata := dispatchData(signature, data)

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &target,
		Value: value,
		Data:  calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("simulate call: %w", err)
	}

	receipt, err := c.sendAndWait(ctx, &target, value, calldata, 0)
	if err != nil {
		return nil, err
	}
	c.log.Info("dispatch call mined",
		zap.String("target", target.Hex()),
		zap.String("signature", signature),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return out, nil
}

// Swap converts a stray token balance back to the native coin through an
// exchange router: approve the router for amountIn, then
// swapExactTokensForETH with the current time as the deadline. The router's
// own logic is opaque; only this two-call contract is assumed.
func (c *Client) Swap(ctx context.Context, token, router common.Address, amountIn, amountOutMin *big.Int, path []common.Address) error {
	approveData, err := erc20ABI.Pack("approve", router, amountIn)
	if err != nil {
		return fmt.Errorf("pack approve: %w", err)
	}
	if _, err := c.sendAndWait(ctx, &token, nil, approveData, 0); err != nil {
		return fmt.Errorf("approve: %w", err)
	}

	swapData, err := swapCalldata(amountIn, amountOutMin, path, c.from, time.Now())
	if err != nil {
		return fmt.Errorf("pack swap: %w", err)
	}
	receipt, err := c.sendAndWait(ctx, &router, nil, swapData, 0)
	if err != nil {
		return fmt.Errorf("swap: %w", err)
	}

	c.log.Info("swap mined",
		zap.String("token", token.Hex()),
		zap.String("router", router.Hex()),
		zap.String("amount_in", amountIn.String()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return nil
}
