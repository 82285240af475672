package dryrun

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// arbABIJSON declares the subset of the orderbook/arb contract surface this
// core calls: arb3 for route-processor clears, multicall/clear2/withdraw2
// for intra-orderbook clears, and balanceOf for vault reads. Packed with
// go-ethereum's accounts/abi the same way the MEV-searcher reference
// calldata builder in this pack packs router calls — abi.JSON once at
// package init, then Pack per call.
const arbABIJSON = `[
  {"type":"function","name":"arb3","inputs":[
    {"name":"orderbook","type":"address"},
    {"name":"takeOrdersConfig","type":"tuple","components":[
      {"name":"minimumInput","type":"uint256"},
      {"name":"maximumInput","type":"uint256"},
      {"name":"maximumIORatio","type":"uint256"},
      {"name":"orders","type":"bytes[]"},
      {"name":"data","type":"bytes"}
    ]},
    {"name":"task","type":"tuple","components":[
      {"name":"evaluable","type":"bytes"},
      {"name":"signedContext","type":"bytes[]"}
    ]}
  ],"outputs":[]},
  {"type":"function","name":"multicall","inputs":[{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]},
  {"type":"function","name":"clear2","inputs":[
    {"name":"orderA","type":"bytes"},
    {"name":"orderB","type":"bytes"},
    {"name":"clearConfig","type":"tuple","components":[
      {"name":"aliceInputIOIndex","type":"uint256"},
      {"name":"aliceOutputIOIndex","type":"uint256"},
      {"name":"bobInputIOIndex","type":"uint256"},
      {"name":"bobOutputIOIndex","type":"uint256"},
      {"name":"aliceBountyVaultId","type":"uint256"},
      {"name":"bobBountyVaultId","type":"uint256"}
    ]},
    {"name":"aliceSignedContext","type":"bytes[]"},
    {"name":"bobSignedContext","type":"bytes[]"}
  ],"outputs":[]},
  {"type":"function","name":"withdraw2","inputs":[
    {"name":"token","type":"address"},
    {"name":"vaultId","type":"uint256"},
    {"name":"targetAmount","type":"uint256"},
    {"name":"tasks","type":"bytes[]"}
  ],"outputs":[]},
  {"type":"function","name":"balanceOf","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var arbABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(arbABIJSON))
	if err != nil {
		panic("dryrun: invalid embedded ABI: " + err.Error())
	}
	arbABI = parsed
}

// clearConfig mirrors the clear2 clearConfig tuple above. Pack matches
// tuple components to struct fields by name (the ABI name with its first
// letter capitalised, or an abi tag), so the two vault-id fields carry tags.
type clearConfig struct {
	AliceInputIOIndex  *big.Int
	AliceOutputIOIndex *big.Int
	BobInputIOIndex    *big.Int
	BobOutputIOIndex   *big.Int
	AliceBountyVaultID *big.Int `abi:"aliceBountyVaultId"`
	BobBountyVaultID   *big.Int `abi:"bobBountyVaultId"`
}

// takeOrdersConfig mirrors the arb3 takeOrdersConfig tuple.
type takeOrdersConfig struct {
	MinimumInput   *big.Int
	MaximumInput   *big.Int
	MaximumIORatio *big.Int
	Orders         [][]byte
	Data           []byte
}

// task mirrors the arb3/withdraw2 task tuple: an evaluable expression plus
// signed context, used both to gate a zero-bounty run and to embed the
// gas-coverage requirement once headroom is known.
type task struct {
	Evaluable     []byte
	SignedContext [][]byte
}
