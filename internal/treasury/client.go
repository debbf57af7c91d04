// Package treasury owns the payout key and every interaction with the
// chain: native transfers, generic owner-dispatched calls, and the
// approve-then-swap router helper.
package treasury

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/halcyonpay/payout-vault/internal/config"
)

const nativeTransferGas = 21_000

// Client wraps go-ethereum with the treasury signing key.
type Client struct {
	eth     *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address
	log     *zap.Logger
}

func NewClient(cfg *config.Config, log *zap.Logger) (*Client, error) {
	eth, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(cfg.Chain.TreasuryKey)
	if err != nil {
		return nil, fmt.Errorf("parse treasury key: %w", err)
	}

	return &Client{
		eth:     eth,
		chainID: big.NewInt(cfg.Chain.ChainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		log:     log,
	}, nil
}

// Address returns the treasury account address.
func (c *Client) Address() common.Address { return c.from }

// ChainID returns the configured chain ID.
func (c *Client) ChainID() *big.Int { return c.chainID }

// Balance returns the treasury's current native balance.
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, c.from, nil)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return bal, nil
}

// Transfer sends amount of the native coin to the recipient and waits for
// the transaction to be mined. A reverted receipt is an error: the caller
// treats any failure as "no funds moved".
func (c *Client) Transfer(ctx context.Context, to common.Address, amount *big.Int) error {
	receipt, err := c.sendAndWait(ctx, &to, amount, nil, nativeTransferGas)
	if err != nil {
		return err
	}
	c.log.Info("native transfer mined",
		zap.String("to", to.Hex()),
		zap.String("amount", amount.String()),
		zap.String("tx", receipt.TxHash.Hex()),
	)
	return nil
}

// sendAndWait builds, signs, submits, and waits for one transaction.
// gasLimit of 0 means estimate.
func (c *Client) sendAndWait(ctx context.Context, to *common.Address, value *big.Int, data []byte, gasLimit uint64) (*types.Receipt, error) {
	nonce, err := c.eth.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	if gasLimit == 0 {
		gasLimit, err = c.eth.EstimateGas(ctx, ethereum.CallMsg{
			From:  c.from,
			To:    to,
			Value: value,
			Data:  data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}

	receipt, err := bind.WaitMined(ctx, c.eth, signed)
	if err != nil {
		return nil, fmt.Errorf("wait mined: %w", err)
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, fmt.Errorf("tx reverted: %s", signed.Hash().Hex())
	}
	return receipt, nil
}
