package chain

import "testing"

func TestRegistry(t *testing.T) {
	for _, symbol := range []string{"BTC", "LTC", "DOGE"} {
		for _, network := range []Network{Mainnet, Testnet} {
			params, ok := Get(symbol, network)
			if !ok {
				t.Errorf("%s %s not registered", symbol, network)
				continue
			}
			if params.Symbol != symbol {
				t.Errorf("%s %s: symbol %q", symbol, network, params.Symbol)
			}
			if params.BytesPerInput == 0 || params.BytesPerOutput == 0 || params.TxOverhead == 0 {
				t.Errorf("%s %s: missing fee model constants", symbol, network)
			}
		}
	}

	if _, ok := Get("XYZ", Mainnet); ok {
		t.Error("unknown chain should not resolve")
	}
	if !IsSupported("BTC") || IsSupported("XYZ") {
		t.Error("IsSupported mismatch")
	}
}

func TestDerivationPath(t *testing.T) {
	tests := []struct {
		symbol  string
		network Network
		index   uint32
		want    string
	}{
		{"BTC", Mainnet, 0, "44'/0'/0'/0/0"},
		{"BTC", Mainnet, 5, "44'/0'/0'/0/5"},
		{"LTC", Mainnet, 0, "44'/2'/0'/0/0"},
		{"DOGE", Mainnet, 0, "44'/3'/0'/0/0"},
		{"BTC", Testnet, 0, "44'/1'/0'/0/0"},
	}

	for _, tt := range tests {
		params, ok := Get(tt.symbol, tt.network)
		if !ok {
			t.Fatalf("%s %s not registered", tt.symbol, tt.network)
		}
		if got := params.DerivationPath(0, 0, tt.index); got != tt.want {
			t.Errorf("%s %s index %d: got %q, want %q", tt.symbol, tt.network, tt.index, got, tt.want)
		}
	}
}

func TestAddressTypeOf(t *testing.T) {
	btc, _ := Get("BTC", Mainnet)

	if typ, ok := btc.AddressTypeOf(0x00); !ok || typ != AddressP2PKH {
		t.Errorf("0x00 on BTC: got %v %v", typ, ok)
	}
	if typ, ok := btc.AddressTypeOf(0x05); !ok || typ != AddressP2SH {
		t.Errorf("0x05 on BTC: got %v %v", typ, ok)
	}

	// A version byte from another network is a rejection, not a default.
	if _, ok := btc.AddressTypeOf(0x30); ok {
		t.Error("LTC version byte accepted on BTC")
	}
	if _, ok := btc.AddressTypeOf(0x6F); ok {
		t.Error("testnet version byte accepted on mainnet")
	}
}

func TestExplorerTxURL(t *testing.T) {
	btc, _ := Get("BTC", Mainnet)
	if got := btc.ExplorerTxURL("abc"); got != "https://mempool.space/tx/abc" {
		t.Errorf("ExplorerTxURL: %q", got)
	}

	bare := &Params{}
	if got := bare.ExplorerTxURL("abc"); got != "abc" {
		t.Errorf("no-explorer fallback: %q", got)
	}
}
