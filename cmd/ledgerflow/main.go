// Command ledgerflow is the process entry point: it loads configuration,
// wires the provider manager, adapter registry, streaming import runner,
// and transfer-matching engine, then drives one import-and-match pass per
// account named on the command line.
//
// Grounded on the teacher's cmd/arcsign/main.go command-dispatch shape
// (os.Args[1] selects a handler, env vars drive non-interactive behavior)
// generalized from a one-shot wallet CLI into a long-running ingestion
// entry point: LEDGERFLOW_ENV selects the logging profile the way the
// teacher's ARCSIGN_MODE selects dashboard-vs-interactive mode.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/ledgerflow/internal/adapters/bitcoin"
	"github.com/yourusername/ledgerflow/internal/adapters/ethereum"
	"github.com/yourusername/ledgerflow/internal/adapters/kraken"
	"github.com/yourusername/ledgerflow/internal/adapters/solana"
	"github.com/yourusername/ledgerflow/internal/adapters/stellar"
	"github.com/yourusername/ledgerflow/internal/adapters/tezos"
	"github.com/yourusername/ledgerflow/internal/config"
	"github.com/yourusername/ledgerflow/internal/domain"
	"github.com/yourusername/ledgerflow/internal/importer"
	"github.com/yourusername/ledgerflow/internal/logging"
	"github.com/yourusername/ledgerflow/internal/matching"
	"github.com/yourusername/ledgerflow/internal/normalize"
	"github.com/yourusername/ledgerflow/internal/provider"
	"github.com/yourusername/ledgerflow/internal/registry"
	"github.com/yourusername/ledgerflow/internal/repository/memstore"
	"github.com/yourusername/ledgerflow/pkg/eventbus"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) < 4 {
			fmt.Println("usage: ledgerflow run <sourceName> <address>")
			os.Exit(1)
		}
		runImportAndMatch(os.Args[2], os.Args[3])
	case "version":
		fmt.Println("ledgerflow v0.1.0")
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("ledgerflow - streaming transaction ingestion and matching")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ledgerflow run <sourceName> <address>   Import one account and run matching")
	fmt.Println("  ledgerflow version                      Show version information")
	fmt.Println("  ledgerflow help                         Show this help message")
}

func runImportAndMatch(sourceName, address string) {
	log := logging.Must(logging.DetectEnv())
	defer log.Sync()

	cfg := config.Default()
	if path := os.Getenv("LEDGERFLOW_CONFIG"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatal("failed to load config", zap.Error(err))
		}
		cfg = loaded
	}

	bus := eventbus.New()
	subscribeLogging(bus, log)

	mgr := provider.NewManager(bus)
	wireProviders(mgr, cfg, log)

	reg := registry.New()
	reg.RegisterBlockchain(bitcoin.Entry())
	reg.RegisterBlockchain(registry.BlockchainEntry{
		Name:        "ethereum",
		ChainModel:  domain.ChainModelAccount,
		AddressRule: normalize.EthereumAddressRule(),
		CreateImporter: func(mgr *provider.Manager, preferred string) domain.Importer {
			return ethereum.NewImporter(mgr, "ethereum", preferred)
		},
		CreateProcessor: func() domain.Processor { return ethereum.NewProcessor("ethereum") },
	})
	reg.RegisterBlockchain(solana.Entry())
	reg.RegisterBlockchain(stellar.Entry())
	reg.RegisterBlockchain(tezos.Entry())
	reg.RegisterExchange(registry.ExchangeEntry{
		Name: "kraken",
		CreateImporter: func(mgr *provider.Manager, preferred string) domain.Importer {
			return kraken.NewImporter(mgr, preferred)
		},
		CreateProcessor: func() domain.Processor { return kraken.NewProcessor() },
	})

	store := memstore.New()
	account := &domain.Account{
		ID:         "cli-account",
		Kind:       accountKindFor(reg, sourceName),
		SourceName: sourceName,
		Identifier: address,
		LastCursor: map[string]domain.CursorState{},
	}
	store.SeedAccount(account)

	runner := importer.New(reg, mgr, store, store, store, bus, cfg.Runner)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	session, err := runner.ImportFromSource(ctx, account)
	if err != nil {
		log.Error("import failed", zap.Error(err), zap.String("source", sourceName))
		os.Exit(1)
	}
	log.Info("import completed",
		zap.String("sessionId", session.ID),
		zap.Int64("imported", session.TransactionsImported),
		zap.Int64("skipped", session.TransactionsSkipped),
	)

	records, err := store.ListProcessable(ctx, account.ID)
	if err != nil {
		log.Fatal("failed to list processable records", zap.Error(err))
	}

	resolved, err := reg.Resolve(sourceName)
	if err != nil {
		log.Fatal("failed to resolve adapter for processing", zap.Error(err))
	}
	processor := resolved.CreateProcessor()
	txs, err := processor.Process(records, map[string]any{"address": address})
	if err != nil {
		log.Fatal("processor failed", zap.Error(err))
	}

	scoreParams := matching.DefaultScoreParams()
	scoreParams.TimeWindow = time.Duration(cfg.Matching.TimeWindowHours * float64(time.Hour))
	scoreParams.CloseTimingBonusWindow = time.Duration(cfg.Matching.CloseTimingBonusHours * float64(time.Hour))
	thresholds := matching.Thresholds{
		MinConfidence:          cfg.Matching.MinConfidence,
		MinAmountSimilarity:    cfg.Matching.MinAmountSimilarity,
		AutoConfirmThreshold:   cfg.Matching.AutoConfirmThreshold,
		HashExcessAllowancePct: cfg.Matching.HashExcessAllowancePct,
		MaxVariancePct:         cfg.Matching.MaxVariancePct,
	}
	engine := matching.NewEngine(scoreParams, thresholds, bus)
	matches := engine.Run(ctx, txs)

	confirmed := 0
	for _, m := range matches {
		link, err := engine.BuildLink(m, "")
		if err != nil {
			log.Warn("match rejected by link validation", zap.Error(err))
			continue
		}
		if _, err := store.Save(ctx, link); err != nil {
			log.Error("failed to persist link", zap.Error(err))
			continue
		}
		if link.Status == domain.LinkConfirmed {
			confirmed++
		}
	}
	log.Info("matching completed", zap.Int("candidates", len(matches)), zap.Int("confirmed", confirmed))
}

func accountKindFor(reg *registry.Registry, sourceName string) domain.AccountKind {
	if _, ok := reg.Blockchain(sourceName); ok {
		return domain.AccountKindBlockchain
	}
	return domain.AccountKindExchangeAPI
}

// wireProviders registers every chain/provider pair named in cfg.Providers,
// falling back to one sane default provider per known chain when cfg
// carries none (so `ledgerflow run` works against an empty config file).
func wireProviders(mgr *provider.Manager, cfg config.Config, log *zap.Logger) {
	if len(cfg.Providers) == 0 {
		cfg.Providers = defaultProviderConfigs()
	}

	for _, pc := range cfg.Providers {
		p, err := buildProvider(pc)
		if err != nil {
			log.Warn("skipping provider with no adapter binding", zap.String("provider", pc.Name), zap.Error(err))
			continue
		}
		rate := provider.NewRateBucket(pc.RequestsPerSecond, pc.BurstLimit, pc.RequestsPerMinute)
		mgr.Register(pc.Chain, p, pc.Priority, rate, circuitConfigFrom(pc.Circuit))
	}
}

func circuitConfigFrom(c config.CircuitConfig) provider.CircuitConfig {
	return provider.CircuitConfig{
		FailureThreshold: c.FailureThreshold,
		Window:           c.Window,
		Cooldown:         c.Cooldown,
		MaxCooldown:      c.MaxCooldown,
	}
}

func buildProvider(pc config.ProviderConfig) (provider.Provider, error) {
	switch pc.Name {
	case "etherscan":
		return ethereum.NewExplorerProvider("etherscan", pc.CustomEndpoint, "", pc.APIKey), nil
	case "ethereum-rpc":
		return ethereum.NewExplorerProvider("ethereum-rpc", pc.CustomEndpoint, pc.CustomEndpoint, pc.APIKey), nil
	case "esplora":
		return bitcoin.NewExplorerProvider("esplora", pc.CustomEndpoint), nil
	case "kraken":
		return kraken.NewLedgers(), nil
	default:
		return nil, fmt.Errorf("unknown provider name %q", pc.Name)
	}
}

func defaultProviderConfigs() []config.ProviderConfig {
	circuit := config.DefaultCircuitConfig()
	return []config.ProviderConfig{
		{
			Name: "etherscan", Chain: "ethereum", Priority: 1,
			RequestsPerSecond: 5, BurstLimit: 5, RequestsPerMinute: 100,
			Circuit: circuit, CustomEndpoint: "https://api.etherscan.io/api",
		},
		{
			Name: "esplora", Chain: "bitcoin", Priority: 1,
			RequestsPerSecond: 4, BurstLimit: 4, RequestsPerMinute: 60,
			Circuit: circuit, CustomEndpoint: "https://blockstream.info/api",
		},
		{
			Name: "kraken", Chain: "kraken", Priority: 1,
			RequestsPerSecond: 1, BurstLimit: 2, RequestsPerMinute: 15,
			Circuit: circuit,
		},
	}
}

func subscribeLogging(bus *eventbus.Bus, log *zap.Logger) {
	bus.Subscribe(eventbus.TopicSessionFailed, func(e eventbus.Event) {
		log.Warn("session failed", zap.String("sessionId", e.CorrelationID))
	})
	bus.Subscribe(eventbus.TopicCircuitOpened, func(e eventbus.Event) {
		log.Warn("circuit opened", zap.String("provider", e.SourceName))
	})
	bus.Subscribe(eventbus.TopicProviderFailover, func(e eventbus.Event) {
		log.Info("provider failover", zap.String("provider", e.SourceName), zap.Any("metadata", e.Metadata))
	})
}
