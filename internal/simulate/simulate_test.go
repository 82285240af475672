package simulate

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
)

// fakeCaller simulates a node that succeeds once call.Gas >= minGas.
type fakeCaller struct {
	minGas uint64
	err    error // when set, always returned regardless of gas
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	if call.Gas < f.minGas {
		return nil, errors.New("out of gas")
	}
	return nil, nil
}

func TestEstimateGasFailsWhenCapBelowMinimum(t *testing.T) {
	t.Parallel()
	c := &fakeCaller{minGas: 100000}
	sim := New(c, Config{GasCap: 21000 + 1, ErrorRatio: 0.01})

	gas, err := sim.EstimateGas(context.Background(), ethereum.CallMsg{})
	if err == nil {
		t.Fatalf("expected failure below minGas, got gas=%d", gas)
	}
}

func TestEstimateGasBisectsToMinimum(t *testing.T) {
	t.Parallel()
	c := &fakeCaller{minGas: 150000}
	sim := New(c, Config{GasCap: 500000, ErrorRatio: 0.01})

	gas, err := sim.EstimateGas(context.Background(), ethereum.CallMsg{})
	if err != nil {
		t.Fatalf("EstimateGas: %v", err)
	}
	if gas < c.minGas {
		t.Errorf("estimated gas %d below required minimum %d", gas, c.minGas)
	}
	// Headroom of 1.03 should not return something wildly larger.
	if gas > uint64(float64(c.minGas)*1.05) {
		t.Errorf("estimated gas %d too far above minimum %d", gas, c.minGas)
	}
}

func TestEstimateGasInsufficientFunds(t *testing.T) {
	t.Parallel()
	c := &fakeCaller{err: errors.New("insufficient funds for gas * price + value")}
	sim := New(c, Config{GasCap: 500000})

	_, err := sim.EstimateGas(context.Background(), ethereum.CallMsg{})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestEstimateGasRevertClassified(t *testing.T) {
	t.Parallel()
	c := &fakeCaller{err: errors.New("execution reverted: ratio greater than market price")}
	sim := New(c, Config{GasCap: 500000})

	_, err := sim.EstimateGas(context.Background(), ethereum.CallMsg{})
	var revErr *RevertError
	if !errors.As(err, &revErr) {
		t.Fatalf("expected *RevertError, got %v", err)
	}
}
