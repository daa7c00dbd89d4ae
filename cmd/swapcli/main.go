// Package main provides swapcli - a command-line driver for the swap client.
//
// The lifecycle operations mirror the client surface: initiate, find,
// verify, claim, refund, plus wallet helpers (address, secret, send).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/7flash/chainabstractionlayer/internal/backend"
	"github.com/7flash/chainabstractionlayer/internal/chain"
	"github.com/7flash/chainabstractionlayer/internal/client"
	"github.com/7flash/chainabstractionlayer/internal/config"
	"github.com/7flash/chainabstractionlayer/internal/device"
	"github.com/7flash/chainabstractionlayer/internal/swap"
	"github.com/7flash/chainabstractionlayer/internal/wallet"
	"github.com/7flash/chainabstractionlayer/pkg/helpers"
	"github.com/7flash/chainabstractionlayer/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

const usage = `Usage: swapcli [flags] <command> [args]

Commands:
  address                              first unused wallet address
  secret <seed>                        derive a swap secret from a seed phrase
  send <address> <value>               send value (smallest unit) to address
  initiate <value> <recipient> <refund> <secretHash> <expiration>
  find <value> <recipient> <refund> <secretHash> <expiration>
  verify <txid> <value> <recipient> <refund> <secretHash> <expiration>
  claim <txid> <secret> <recipient> <refund> <secretHash> <expiration>
  find-claim <txid> <recipient> <refund> <secretHash> <expiration>
  refund <txid> <recipient> <refund> <secretHash> <expiration>
`

func main() {
	var (
		configFile  = flag.String("config", "", "Config file path (YAML)")
		chainFlag   = flag.String("chain", "BTC", "Chain symbol (BTC, LTC, DOGE)")
		testnet     = flag.Bool("testnet", false, "Use testnet")
		logLevel    = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{
		Level:      *logLevel,
		TimeFormat: time.TimeOnly,
	})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("swapcli %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	network := chain.Mainnet
	if *testnet {
		network = chain.Testnet
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
	} else {
		cfg = config.Default(*chainFlag, network)
		err = cfg.Validate()
	}
	if err != nil {
		log.Fatal("Failed to load config", "error", err)
	}
	if cfg.LogLevel != *logLevel {
		log.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}

	c, params, err := buildClient(cfg, log)
	if err != nil {
		log.Fatal("Failed to build client", "error", err)
	}

	ctx := context.Background()
	if err := run(ctx, c, params, args); err != nil {
		log.Fatal("Command failed", "error", err)
	}
}

// buildClient assembles the provider pipeline: query, wallet, swap.
func buildClient(cfg *config.Config, log *logging.Logger) (*client.Client, *chain.Params, error) {
	params, ok := chain.Get(cfg.Chain, cfg.Network)
	if !ok {
		return nil, nil, fmt.Errorf("unsupported chain %s on %s", cfg.Chain, cfg.Network)
	}

	backendCfg, err := cfg.BackendConfig()
	if err != nil {
		return nil, nil, err
	}
	be, err := backend.NewFromConfig(backendCfg, cfg.Network)
	if err != nil {
		return nil, nil, err
	}

	mnemonic := cfg.Mnemonic
	if mnemonic == "" {
		mnemonic = os.Getenv("SWAPCLI_MNEMONIC")
	}
	if mnemonic == "" {
		return nil, nil, fmt.Errorf("no mnemonic configured (set mnemonic in config or SWAPCLI_MNEMONIC)")
	}
	dev, err := device.NewLocalDevice(mnemonic, "", params)
	if err != nil {
		return nil, nil, err
	}

	c := client.New()
	providers := []client.Provider{
		backend.NewQueryProvider(be, cfg.FeePerByte),
		wallet.NewProvider(dev, params,
			wallet.WithAccount(cfg.Account),
			wallet.WithGapLimit(cfg.GapLimit)),
		swap.NewProvider(params),
	}
	for _, p := range providers {
		if err := c.AddProvider(p); err != nil {
			return nil, nil, err
		}
	}

	if err := c.Validate(
		client.MethodGetUnspentTransactions,
		client.MethodBroadcastTransaction,
		client.MethodGetUnusedAddress,
		client.MethodSendToAddress,
		client.MethodInitiateSwap,
		client.MethodClaimSwap,
		client.MethodRefundSwap,
	); err != nil {
		return nil, nil, err
	}

	log.Debug("client ready", "chain", cfg.Chain, "network", cfg.Network, "backend", backendCfg.Type)
	return c, params, nil
}

func run(ctx context.Context, c *client.Client, params *chain.Params, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "address":
		addr, err := c.GetUnusedAddress(ctx)
		if err != nil {
			return err
		}
		fmt.Println(addr.Value)
		return nil

	case "secret":
		if len(rest) != 1 {
			return fmt.Errorf("usage: secret <seed>")
		}
		secret, err := c.GenerateSecret(ctx, rest[0])
		if err != nil {
			return err
		}
		hash := client.HashSecret(secret)
		fmt.Printf("secret: %s\nsecretHash: %s\n",
			helpers.BytesToHex(secret), helpers.BytesToHex(hash[:]))
		return nil

	case "send":
		if len(rest) != 2 {
			return fmt.Errorf("usage: send <address> <value>")
		}
		value, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		txID, err := c.Invoke(ctx, client.MethodSendToAddress, rest[0], value)
		if err != nil {
			return err
		}
		fmt.Println(params.ExplorerTxURL(txID.(string)))
		return nil

	case "initiate":
		if len(rest) != 5 {
			return fmt.Errorf("usage: initiate <value> <recipient> <refund> <secretHash> <expiration>")
		}
		value, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		swapParams, err := parseSwapParams(rest[1], rest[2], rest[3], rest[4])
		if err != nil {
			return err
		}
		txID, err := c.InitiateSwap(ctx, value, swapParams)
		if err != nil {
			return err
		}
		fmt.Println(params.ExplorerTxURL(txID))
		return nil

	case "find":
		if len(rest) != 5 {
			return fmt.Errorf("usage: find <value> <recipient> <refund> <secretHash> <expiration>")
		}
		value, err := strconv.ParseUint(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		swapParams, err := parseSwapParams(rest[1], rest[2], rest[3], rest[4])
		if err != nil {
			return err
		}
		tx, err := c.FindInitiateSwapTransaction(ctx, value, swapParams)
		if err != nil {
			return err
		}
		if tx == nil {
			fmt.Println("not found")
			return nil
		}
		fmt.Println(tx.ID)
		return nil

	case "verify":
		if len(rest) != 6 {
			return fmt.Errorf("usage: verify <txid> <value> <recipient> <refund> <secretHash> <expiration>")
		}
		value, err := strconv.ParseUint(rest[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value: %w", err)
		}
		swapParams, err := parseSwapParams(rest[2], rest[3], rest[4], rest[5])
		if err != nil {
			return err
		}
		ok, err := c.VerifyInitiateSwapTransaction(ctx, rest[0], value, swapParams)
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil

	case "claim":
		if len(rest) != 6 {
			return fmt.Errorf("usage: claim <txid> <secret> <recipient> <refund> <secretHash> <expiration>")
		}
		secret := helpers.HexToBytes(rest[1])
		if secret == nil {
			return fmt.Errorf("invalid secret hex")
		}
		swapParams, err := parseSwapParams(rest[2], rest[3], rest[4], rest[5])
		if err != nil {
			return err
		}
		txID, err := c.ClaimSwap(ctx, rest[0], swapParams, secret)
		if err != nil {
			return err
		}
		fmt.Println(params.ExplorerTxURL(txID))
		return nil

	case "find-claim":
		if len(rest) != 5 {
			return fmt.Errorf("usage: find-claim <txid> <recipient> <refund> <secretHash> <expiration>")
		}
		swapParams, err := parseSwapParams(rest[1], rest[2], rest[3], rest[4])
		if err != nil {
			return err
		}
		tx, secret, err := c.FindClaimSwapTransaction(ctx, rest[0], swapParams)
		if err != nil {
			return err
		}
		if tx == nil {
			fmt.Println("not found")
			return nil
		}
		fmt.Printf("txid: %s\nsecret: %x\n", tx.ID, secret)
		return nil

	case "refund":
		if len(rest) != 5 {
			return fmt.Errorf("usage: refund <txid> <recipient> <refund> <secretHash> <expiration>")
		}
		swapParams, err := parseSwapParams(rest[1], rest[2], rest[3], rest[4])
		if err != nil {
			return err
		}
		txID, err := c.RefundSwap(ctx, rest[0], swapParams)
		if err != nil {
			return err
		}
		fmt.Println(params.ExplorerTxURL(txID))
		return nil

	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseSwapParams parses the common CLI swap parameter tuple.
func parseSwapParams(recipient, refund, secretHashHex, expiration string) (client.SwapParams, error) {
	if !helpers.IsHex(secretHashHex) {
		return client.SwapParams{}, fmt.Errorf("secretHash must be hex")
	}
	hashBytes := helpers.HexToBytes(secretHashHex)
	if len(hashBytes) != client.SecretHashSize {
		return client.SwapParams{}, fmt.Errorf("secretHash must be %d hex bytes", client.SecretHashSize)
	}

	exp, err := strconv.ParseInt(expiration, 10, 64)
	if err != nil {
		return client.SwapParams{}, fmt.Errorf("invalid expiration: %w", err)
	}

	params := client.SwapParams{
		RecipientAddress: client.Address{Value: recipient},
		RefundAddress:    client.Address{Value: refund},
		Expiration:       exp,
	}
	copy(params.SecretHash[:], hashBytes)
	return params, nil
}
