// Package signer implements pair.Wallet and pair.ReceiptWaiter against a
// live go-ethereum RPC client: it signs and submits the calldata the Pair
// Processor assembles, then polls for the mined receipt. Private-key
// parsing follows the teacher's exchange/auth.go NewAuth (strip optional 0x
// prefix, crypto.HexToECDSA), adapted from EIP-712/HMAC request signing to
// plain EIP-1559 transaction signing since this process submits
// transactions directly rather than calling a CLOB REST API.
package signer

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"polymarket-mm/internal/pair"
	pairtypes "polymarket-mm/pkg/types"
)

// EthSender is the subset of ethclient.Client a Signer submits through.
type EthSender interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Signer holds one EOA and submits transactions on its behalf. A process
// may hold two — the primary signer and an optional Flashbots-RPC signer —
// matching config.WalletConfig's FlashbotRPC/FlashbotKey pair.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
	eth     EthSender
}

// New parses a hex private key (with or without 0x prefix) and binds it to
// eth for submission on the given chain.
func New(privateKeyHex string, chainID int64, eth EthSender) (*Signer, error) {
	keyHex := privateKeyHex
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: big.NewInt(chainID),
		eth:     eth,
	}, nil
}

// Address returns the signer's EOA address.
func (s *Signer) Address() common.Address { return s.address }

// SendTransaction signs tx with the held key and submits it, returning its hash.
func (s *Signer) SendTransaction(ctx context.Context, tx pairtypes.RawTx) (common.Hash, error) {
	nonce, err := s.eth.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   s.chainID,
		Nonce:     nonce,
		GasTipCap: tx.GasPrice,
		GasFeeCap: tx.GasPrice,
		Gas:       tx.Gas,
		To:        &tx.To,
		Value:     valueOrZero(tx.Value),
		Data:      tx.Data,
	})

	signed, err := types.SignTx(unsigned, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}
	return signed.Hash(), nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

// ReceiptPoller waits for a submitted transaction to mine by polling
// TransactionReceipt on a fixed interval, honouring ctx's deadline —
// pair.Processor supplies that deadline via context.WithTimeout at the call
// site per SPEC_FULL.md §5's "promiseTimeout expressed as plain context".
type ReceiptPoller struct {
	eth      EthSender
	interval time.Duration
}

// NewReceiptPoller constructs a poller. interval defaults to 2s if zero.
func NewReceiptPoller(eth EthSender, interval time.Duration) *ReceiptPoller {
	if interval == 0 {
		interval = 2 * time.Second
	}
	return &ReceiptPoller{eth: eth, interval: interval}
}

// WaitReceipt polls until txHash mines or ctx is done.
func (p *ReceiptPoller) WaitReceipt(ctx context.Context, txHash common.Hash) (*pair.Receipt, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		receipt, err := p.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			return &pair.Receipt{
				Status:            receipt.Status,
				GasUsed:           receipt.GasUsed,
				EffectiveGasPrice: receipt.EffectiveGasPrice,
				BlockNumber:       receipt.BlockNumber.Uint64(),
			}, nil
		}
		if err != ethereum.NotFound {
			return nil, fmt.Errorf("transaction receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// NewFromRPC dials rpcURL and returns a ready ethclient.Client, the
// concrete EthSender every Signer/ReceiptPoller in this process shares.
func NewFromRPC(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	return ethclient.DialContext(ctx, rpcURL)
}
