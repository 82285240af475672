// Package simulate implements the Transaction Simulator (C3): given an
// assembled calldata payload, estimate the gas it needs and classify
// whatever failure comes back. The bisection shape — a first probe at the
// gas cap, then narrowing between a failing low and a succeeding high until
// within a configured error ratio — is grounded directly on
// go-ethereum's eth/gasestimator package, adapted from local EVM execution
// to repeated eth_call probes over a JSON-RPC transport, since this is a
// bot client rather than a full node.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Config tunes the simulator. ErrorRatio stops bisection once hi-lo is
// within this fraction of lo, matching gasestimator's termination rule.
type Config struct {
	GasCap      uint64
	ErrorRatio  float64
	Headroom    float64 // multiplier applied to the final estimate, default 1.03
}

// ErrInsufficientFunds is classified by callers into HaltNoWalletFund,
// terminal for the whole round.
var ErrInsufficientFunds = errors.New("insufficient funds for gas")

// RevertError carries decodable node-side revert data; classified into
// HaltNoOpportunity.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string { return "execution reverted" }

// ContractCaller is the subset of ethclient.Client the simulator needs;
// narrowed to an interface so tests can fake an RPC node.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Simulator estimates gas and classifies the result.
type Simulator struct {
	caller ContractCaller
	cfg    Config
}

func New(caller ContractCaller, cfg Config) *Simulator {
	if cfg.ErrorRatio == 0 {
		cfg.ErrorRatio = 0.01
	}
	if cfg.Headroom == 0 {
		cfg.Headroom = 1.03
	}
	return &Simulator{caller: caller, cfg: cfg}
}

// EstimateGas probes call with a binary search over the gas budget between
// an intrinsic floor and cfg.GasCap. It returns the minimal viable gas
// limit, multiplied by the configured headroom, or a classified error:
// ErrInsufficientFunds, *RevertError, or a plain transport error (retryable).
func (s *Simulator) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	lo := intrinsicGas(call.Data)
	hi := s.cfg.GasCap
	if hi == 0 {
		hi = 30_000_000
	}

	// First probe at the cap: a revert or insufficient-funds failure there is final.
	call.Gas = hi
	if _, err := s.caller.CallContract(ctx, call, nil); err != nil {
		if classified := classify(err); classified != nil {
			return 0, classified
		}
	}

	for lo+1 < hi {
		mid := (lo + hi) / 2
		if float64(hi-lo) <= float64(lo)*s.cfg.ErrorRatio {
			break
		}

		call.Gas = mid
		_, err := s.caller.CallContract(ctx, call, nil)
		if err == nil {
			hi = mid
			continue
		}

		classified := classify(err)
		if classified == nil && !strings.Contains(strings.ToLower(err.Error()), "out of gas") {
			return 0, err // transport/timeout: retryable, caller decides
		}
		if revErr, ok := classified.(*RevertError); ok {
			return 0, revErr
		}
		if errors.Is(classified, ErrInsufficientFunds) {
			return 0, classified
		}
		// Out-of-gas-shaped failure: raise the floor and keep bisecting.
		lo = mid
	}

	if hi == s.cfg.GasCap {
		return 0, fmt.Errorf("gas required exceeds allowance (%d)", s.cfg.GasCap)
	}
	return applyHeadroom(hi, s.cfg.Headroom), nil
}

func applyHeadroom(gas uint64, headroom float64) uint64 {
	return uint64(float64(gas) * headroom)
}

// classify inspects an RPC error and returns a typed classification for
// insufficient-funds and revert errors, or nil for anything else (out-of-gas
// and transport errors alike; EstimateGas tells those apart by message).
func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return ErrInsufficientFunds
	case strings.Contains(msg, "execution reverted"):
		var revData []byte
		var de interface{ ErrorData() interface{} }
		if errors.As(err, &de) {
			if data, ok := de.ErrorData().(string); ok {
				revData = common.FromHex(data)
			}
		}
		return &RevertError{Data: revData}
	default:
		return nil
	}
}

// intrinsicGas is the base-21000 floor common to all legacy/EIP-1559
// transactions on EVM chains, used as the bisection's starting low bound.
func intrinsicGas(data []byte) uint64 {
	const txGas = 21000
	return txGas
}
