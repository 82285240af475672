package orders

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"polymarket-mm/internal/config"
)

const sampleOrders = `[
	{
		"id": "0x01",
		"owner": "0x1111111111111111111111111111111111111111",
		"orderbookAddress": "0x2222222222222222222222222222222222222222",
		"interpreter": "0x3333333333333333333333333333333333333333",
		"inputs": [{"token": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "decimals": 18, "vaultId": "1"}],
		"outputs": [{"token": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "decimals": 6, "vaultId": "2"}],
		"evaluable": "0xdeadbeef"
	},
	{
		"id": "0x02",
		"owner": "0x4444444444444444444444444444444444444444",
		"orderbookAddress": "0x2222222222222222222222222222222222222222",
		"interpreter": "0x3333333333333333333333333333333333333333",
		"inputs": [{"token": "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "decimals": 18, "vaultId": "3"}],
		"outputs": [{"token": "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "decimals": 6, "vaultId": "4"}],
		"evaluable": "0xfeedface"
	}
]`

func writeSample(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write sample orders file: %v", err)
	}
	return path
}

func TestLoadOrdersNoFilters(t *testing.T) {
	t.Parallel()
	path := writeSample(t, sampleOrders)

	src := NewFileSource(config.OrdersConfig{Path: path})
	raws, err := src.LoadOrders(context.Background())
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(raws))
	}
	if raws[0].Order.ID.Hex() == raws[1].Order.ID.Hex() {
		t.Fatal("expected distinct order ids")
	}
}

func TestLoadOrdersFiltersByOwner(t *testing.T) {
	t.Parallel()
	path := writeSample(t, sampleOrders)

	src := NewFileSource(config.OrdersConfig{
		Path:       path,
		OrderOwner: "0x1111111111111111111111111111111111111111",
	})
	raws, err := src.LoadOrders(context.Background())
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("expected 1 order after owner filter, got %d", len(raws))
	}
}

func TestLoadOrdersFiltersByHash(t *testing.T) {
	t.Parallel()
	path := writeSample(t, sampleOrders)

	src := NewFileSource(config.OrdersConfig{Path: path, OrderHash: "0x02"})
	raws, err := src.LoadOrders(context.Background())
	if err != nil {
		t.Fatalf("LoadOrders: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("expected 1 order after hash filter, got %d", len(raws))
	}
}

func TestLoadOrdersMissingFile(t *testing.T) {
	t.Parallel()
	src := NewFileSource(config.OrdersConfig{Path: "/nonexistent/orders.json"})
	if _, err := src.LoadOrders(context.Background()); err == nil {
		t.Fatal("expected error for missing orders file")
	}
}

func TestLoadOrdersInvalidVaultID(t *testing.T) {
	t.Parallel()
	bad := `[{"id":"0x01","owner":"0x11","orderbookAddress":"0x22","inputs":[{"token":"0xaa","decimals":18,"vaultId":"not-a-number"}],"outputs":[]}]`
	path := writeSample(t, bad)

	src := NewFileSource(config.OrdersConfig{Path: path})
	if _, err := src.LoadOrders(context.Background()); err == nil {
		t.Fatal("expected error for invalid vault id")
	}
}
