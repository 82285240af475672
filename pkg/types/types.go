// Package types holds the shared vocabulary of the clearing core: orders,
// bundled pairs, dryrun outcomes, and pair reports. No package under
// internal/ imports another internal package's concrete types for this
// vocabulary — everything routes through here, the same way the teacher's
// pkg/types had no internal dependency of its own.
package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Scale18 is the fixed-point base used for all ratios and amounts: 1e18.
var Scale18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ToFixed18 converts an amount expressed in `decimals` token decimals into
// 18-decimal fixed point: x * 10^(18-decimals). For decimals > 18 it divides
// instead, matching spec.md's scale18(x, d).
func ToFixed18(x *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(x)
	}
	if decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Mul(x, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Quo(x, factor)
}

// FromFixed18 is the inverse of ToFixed18; truncates when decimals < 18.
func FromFixed18(x *big.Int, decimals uint8) *big.Int {
	if decimals == 18 {
		return new(big.Int).Set(x)
	}
	if decimals < 18 {
		factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
		return new(big.Int).Quo(x, factor)
	}
	factor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals-18)), nil)
	return new(big.Int).Mul(x, factor)
}

// IO describes one input or output slot of an on-chain order: the token
// moved, its decimals, and the vault id it is held in.
type IO struct {
	Token    common.Address
	Decimals uint8
	VaultID  *big.Int
}

// Order is immutable for the lifetime of a round. It mirrors one resting
// limit order on the orderbook contract.
type Order struct {
	ID               common.Hash
	Owner            common.Address
	OrderbookAddress common.Address
	Inputs           []IO
	Outputs          []IO
	// Evaluable is the opaque on-chain executable payload (interpreter +
	// expression address pair) used to evaluate the order at clear time.
	Evaluable []byte
}

// Quote carries the order owner's demanded price and the current bound on
// clearable size, both in 18-decimal fixed point.
type Quote struct {
	MaxOutput *big.Int // vault balance on the sell side, 18-decimal
	Ratio     *big.Int // price demanded, output per input, 18-decimal
}

// TO is one buy/sell direction extracted from an Order: a Take-Order record.
type TO struct {
	Order       *Order
	InputIOIdx  int
	OutputIOIdx int
	Quote       Quote
}

// SellToken and BuyToken resolve the IO slots this TO trades.
func (t TO) SellToken() IO { return t.Order.Inputs[t.InputIOIdx] }
func (t TO) BuyToken() IO  { return t.Order.Outputs[t.OutputIOIdx] }

// BP is a Bundled Pair: every TO sharing (orderbook, sellToken, buyToken).
// TakeOrders is a non-empty ordered sequence; ratio is always 18-decimal
// regardless of the underlying tokens' native decimals.
type BP struct {
	Orderbook    common.Address
	SellToken    common.Address
	BuyToken     common.Address
	SellDecimals uint8
	BuyDecimals  uint8
	SellSymbol   string
	BuySymbol    string
	TakeOrders   []TO
}

// Clone returns a shallow copy of bp with a freshly allocated TakeOrders
// slice, so a dryrun can filter it down without mutating the round-owned BP.
func (bp BP) Clone() BP {
	out := bp
	out.TakeOrders = append([]TO(nil), bp.TakeOrders...)
	return out
}

// Mode is the tagged variant replacing the spec's raw 0..3 dryrun mode
// integer. Bundle clears every TO in the BP in one call; Single/Double/Triple
// duplicate the lead TO that many times so the contract can aggregate dust
// that would otherwise round to zero.
type Mode int

const (
	ModeBundle Mode = iota
	ModeSingle
	ModeDouble
	ModeTriple
)

// Expand returns the []TO to place into takeOrdersConfig.orders for this mode.
func (m Mode) Expand(bp BP) []TO {
	switch m {
	case ModeSingle:
		return []TO{bp.TakeOrders[0]}
	case ModeDouble:
		return []TO{bp.TakeOrders[0], bp.TakeOrders[0]}
	case ModeTriple:
		return []TO{bp.TakeOrders[0], bp.TakeOrders[0], bp.TakeOrders[0]}
	default:
		return bp.TakeOrders
	}
}

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeDouble:
		return "double"
	case ModeTriple:
		return "triple"
	default:
		return "bundle"
	}
}

// HaltReason is a typed halt-reason variant. Never string-matched; compared
// by value.
type HaltReason int

const (
	HaltNone HaltReason = iota
	HaltNoWalletFund
	HaltFailedToGetVaultBalance
	HaltFailedToGetGasPrice
	HaltFailedToGetEthPrice
	HaltFailedToGetPools
	HaltNoRoute
	HaltNoOpportunity
	HaltTxFailed
	HaltTxMineFailed
	HaltUnexpectedError
)

func (h HaltReason) String() string {
	switch h {
	case HaltNoWalletFund:
		return "NoWalletFund"
	case HaltFailedToGetVaultBalance:
		return "FailedToGetVaultBalance"
	case HaltFailedToGetGasPrice:
		return "FailedToGetGasPrice"
	case HaltFailedToGetEthPrice:
		return "FailedToGetEthPrice"
	case HaltFailedToGetPools:
		return "FailedToGetPools"
	case HaltNoRoute:
		return "NoRoute"
	case HaltNoOpportunity:
		return "NoOpportunity"
	case HaltTxFailed:
		return "TxFailed"
	case HaltTxMineFailed:
		return "TxMineFailed"
	case HaltUnexpectedError:
		return "UnexpectedError"
	default:
		return "None"
	}
}

// Terminal reports whether this halt reason ends the whole round, not just
// the current pair. Only NoWalletFund does.
func (h HaltReason) Terminal() bool { return h == HaltNoWalletFund }

// ErrorSnapshot captures everything the report needs about a failure without
// relying on opaque error strings: a short message, the error's name/kind, a
// decoded revert (when the node returned hex matching a known ABI), and a
// gas diagnostic when a receipt was available.
type ErrorSnapshot struct {
	Message      string
	Name         string
	Details      string
	RevertArgs   []interface{}
	GasDiagnostic string
	Severity     Severity
}

// Severity is attached to a telemetry-emitted ErrorSnapshot; it never
// affects control flow.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	default:
		return "LOW"
	}
}

// RawTx is an assembled, signed-or-unsigned transaction payload ready for
// gas estimation or submission.
type RawTx struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	Gas      uint64
	GasPrice *big.Int
}

// DryrunOutcome is the result of one C4/C5 probe at a given input size.
type DryrunOutcome struct {
	Success bool

	// Success fields.
	RawTx           RawTx
	MaxInput        *big.Int
	Price           *big.Int // marketPrice, 18-decimal
	RouteVisual     string
	GasCostInToken  *big.Int
	EstimatedProfit *big.Int
	OppBlockNumber  uint64

	// Failure fields.
	Reason        HaltReason
	HasPriceMatch bool
	NodeError     error
	ErrorSnapshot *ErrorSnapshot
}

// PairStatus is the coarse outcome bucket surfaced in a Pair Report.
type PairStatus int

const (
	StatusEmptyVault PairStatus = iota
	StatusNoOpportunity
	StatusFoundOpportunity
)

func (s PairStatus) String() string {
	switch s {
	case StatusEmptyVault:
		return "EmptyVault"
	case StatusFoundOpportunity:
		return "FoundOpportunity"
	default:
		return "NoOpportunity"
	}
}

// PairReport is the per-pair result the round runner collects and the
// telemetry layer serialises as a span with details.* attributes.
type PairReport struct {
	Status        PairStatus
	TokenPair     string
	BuyToken      common.Address
	SellToken     common.Address
	TxURL         string
	ClearedAmount *big.Int
	Income        *big.Int
	NetProfit     *big.Int
	GasCost       *big.Int
	ClearedOrders []common.Hash
	HaltReason    HaltReason
	Err           *ErrorSnapshot
	Timestamp     time.Time
}

// RouteQuote is C1's answer for a candidate route at a given input size.
type RouteQuote struct {
	Found       bool
	AmountOut   *big.Int
	RouteVisual string
	RouteCode   []byte
}
