// Package orders implements round.OrderSource: it loads raw order records
// from a local JSON file, the "orders (file path)" configuration surface
// SPEC_FULL.md §1 describes as the external order-ingestion collaborator.
// The JSON-decode-into-typed-struct shape mirrors the teacher's
// market/scanner.go GammaMarket decoding, adapted from an HTTP response
// body to a file on disk since indexer/subgraph order feeds are out of
// scope for this core (see SPEC_FULL.md's Non-goals).
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"polymarket-mm/internal/bundler"
	"polymarket-mm/internal/config"
	"polymarket-mm/pkg/types"
)

// fileIO is the JSON shape of one order input/output leg.
type fileIO struct {
	Token    string `json:"token"`
	Decimals uint8  `json:"decimals"`
	VaultID  string `json:"vaultId"`
}

// fileOrder is the JSON shape one entry in the orders file takes.
type fileOrder struct {
	ID               string   `json:"id"`
	Owner            string   `json:"owner"`
	OrderbookAddress string   `json:"orderbookAddress"`
	Interpreter      string   `json:"interpreter"`
	Inputs           []fileIO `json:"inputs"`
	Outputs          []fileIO `json:"outputs"`
	Evaluable        string   `json:"evaluable"` // hex-encoded
}

// FileSource loads order records from a JSON file on every LoadOrders call,
// re-reading the file fresh each round so externally appended/removed
// orders are picked up without restarting the process.
type FileSource struct {
	path       string
	orderHash  string
	orderOwner string
	interp     string
}

// NewFileSource builds a FileSource from the orders section of Config.
// OrderHash/OrderOwner/OrderInterpreter, when set, filter the loaded set —
// the indexer filters SPEC_FULL.md §1's configuration surface names.
func NewFileSource(cfg config.OrdersConfig) *FileSource {
	return &FileSource{
		path:       cfg.Path,
		orderHash:  strings.ToLower(cfg.OrderHash),
		orderOwner: strings.ToLower(cfg.OrderOwner),
		interp:     strings.ToLower(cfg.OrderInterpreter),
	}
}

// LoadOrders reads and decodes the configured file, applying any configured
// filters, and returns one bundler.RawOrder per surviving order record.
func (s *FileSource) LoadOrders(ctx context.Context) ([]bundler.RawOrder, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read orders file %s: %w", s.path, err)
	}

	var fileOrders []fileOrder
	if err := json.Unmarshal(data, &fileOrders); err != nil {
		return nil, fmt.Errorf("decode orders file %s: %w", s.path, err)
	}

	raws := make([]bundler.RawOrder, 0, len(fileOrders))
	for _, fo := range fileOrders {
		if s.orderHash != "" && strings.ToLower(fo.ID) != s.orderHash {
			continue
		}
		if s.orderOwner != "" && strings.ToLower(fo.Owner) != s.orderOwner {
			continue
		}
		if s.interp != "" && strings.ToLower(fo.Interpreter) != s.interp {
			continue
		}

		order, err := fo.toOrder()
		if err != nil {
			return nil, fmt.Errorf("order %s: %w", fo.ID, err)
		}
		raws = append(raws, bundler.RawOrder{Order: order})
	}
	return raws, nil
}

func (fo fileOrder) toOrder() (*types.Order, error) {
	inputs, err := toIOs(fo.Inputs)
	if err != nil {
		return nil, fmt.Errorf("inputs: %w", err)
	}
	outputs, err := toIOs(fo.Outputs)
	if err != nil {
		return nil, fmt.Errorf("outputs: %w", err)
	}

	return &types.Order{
		ID:               common.HexToHash(fo.ID),
		Owner:            common.HexToAddress(fo.Owner),
		OrderbookAddress: common.HexToAddress(fo.OrderbookAddress),
		Inputs:           inputs,
		Outputs:          outputs,
		Evaluable:        common.FromHex(fo.Evaluable),
	}, nil
}

func toIOs(raw []fileIO) ([]types.IO, error) {
	ios := make([]types.IO, 0, len(raw))
	for _, io := range raw {
		vaultID, ok := new(big.Int).SetString(io.VaultID, 10)
		if !ok {
			return nil, fmt.Errorf("invalid vault id %q", io.VaultID)
		}
		ios = append(ios, types.IO{
			Token:    common.HexToAddress(io.Token),
			Decimals: io.Decimals,
			VaultID:  vaultID,
		})
	}
	return ios, nil
}
