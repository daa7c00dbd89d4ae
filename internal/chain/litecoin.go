package chain

func init() {
	// Litecoin Mainnet
	Register("LTC", Mainnet, &Params{
		Symbol:   "LTC",
		Name:     "Litecoin",
		Decimals: 8,

		// BIP44 coin type 2
		CoinType:       2,
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x30, // L...
		ScriptHashAddrID: 0x32, // M...
		WIF:              0xB0,

		HDPrivateKeyID: [4]byte{0x01, 0x9d, 0x9c, 0xfe}, // Ltpv
		HDPublicKeyID:  [4]byte{0x01, 0x9d, 0xa4, 0x62}, // Ltub

		BytesPerInput:  148,
		BytesPerOutput: 34,
		TxOverhead:     10,

		ExplorerURL: "https://litecoinspace.org",
	})

	// Litecoin Testnet
	Register("LTC", Testnet, &Params{
		Symbol:   "LTC",
		Name:     "Litecoin Testnet",
		Decimals: 8,

		CoinType:       1, // Testnet uses coin type 1
		DefaultPurpose: 44,

		PubKeyHashAddrID: 0x6F, // m or n
		ScriptHashAddrID: 0x3A, // Q...
		WIF:              0xEF,

		HDPrivateKeyID: [4]byte{0x04, 0x36, 0xef, 0x7d}, // ttpv
		HDPublicKeyID:  [4]byte{0x04, 0x36, 0xf6, 0xe1}, // ttub

		BytesPerInput:  148,
		BytesPerOutput: 34,
		TxOverhead:     10,

		ExplorerURL: "https://litecoinspace.org/testnet",
	})
}
