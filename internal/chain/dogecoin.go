package chain

func init() {
	// Dogecoin Mainnet
	Register("DOGE", Mainnet, &Params{
		Symbol:   "DOGE",
		Name:     "Dogecoin",
		Decimals: 8,

		// BIP44 coin type 3
		CoinType:       3,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x1E, // D...
		ScriptHashAddrID: 0x16, // 9... or A...
		WIF:              0x9E,

		HDPrivateKeyID: [4]byte{0x02, 0xfa, 0xc3, 0x98}, // dgpv
		HDPublicKeyID:  [4]byte{0x02, 0xfa, 0xca, 0xfd}, // dgub

		BytesPerInput:  148,
		BytesPerOutput: 34,
		TxOverhead:     10,

		ExplorerURL: "https://dogechain.info",
	})

	// Dogecoin Testnet
	Register("DOGE", Testnet, &Params{
		Symbol:   "DOGE",
		Name:     "Dogecoin Testnet",
		Decimals: 8,

		CoinType:       1,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x71, // n...
		ScriptHashAddrID: 0xC4, // 2...
		WIF:              0xF1,

		HDPrivateKeyID: [4]byte{0x04, 0x32, 0xa2, 0x43}, // tgpv
		HDPublicKeyID:  [4]byte{0x04, 0x32, 0xa9, 0xa8}, // tgub

		BytesPerInput:  148,
		BytesPerOutput: 34,
		TxOverhead:     10,

		ExplorerURL: "https://sochain.com/testnet/doge",
	})
}
