// Package app aggregates configuration and shared dependencies behind the
// CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"satsguard/internal/audit"
	"satsguard/internal/config"
	"satsguard/internal/funding"
	"satsguard/internal/ledger"
	"satsguard/internal/notify"
	"satsguard/internal/policy"
	"satsguard/internal/scheduler"
	"satsguard/internal/service"
	"satsguard/internal/storage"
	"satsguard/internal/txbuilder"
	"satsguard/internal/wallet"
	"satsguard/internal/webhook"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newWallets() (*wallet.Bitcoind, *wallet.Esplora, *wallet.Lightning) {
	bitcoind := wallet.NewBitcoind(wallet.BitcoindOptions{
		URL:     a.Config.Bitcoind.URL,
		RPCUser: a.Config.Bitcoind.RPCUser,
		RPCPass: a.Config.Bitcoind.RPCPass,
		Wallet:  a.Config.Bitcoind.Wallet,
		Timeout: a.Config.Bitcoind.RequestTimeout,
	}, a.Logger)

	esplora := wallet.NewEsplora(wallet.EsploraOptions{
		BaseURL: a.Config.Esplora.BaseURL,
		Timeout: a.Config.Esplora.RequestTimeout,
	}, a.Logger)

	lightning := wallet.NewLightning(wallet.LightningOptions{
		BaseURL: a.Config.Lightning.BaseURL,
		APIKey:  a.Config.Lightning.APIKey,
		Timeout: a.Config.Lightning.RequestTimeout,
	}, a.Logger)

	return bitcoind, esplora, lightning
}

func (a *App) newNotifier() notify.Sender {
	cfg := a.Config.Funding
	if cfg.NotifyURL == "" {
		return nil
	}
	return notify.NewWebhookSender(cfg.NotifyURL, cfg.NotifyAuthToken, cfg.NotifyTimeout, cfg.NotifyMaxAttempts, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// loadPolicy reads and validates the active policy document.
func (a *App) loadPolicy() (*policy.Document, error) {
	return policy.LoadDocument(a.Config.Policy.Path)
}

// stores resolves ledger, proposal, and audit persistence, falling back to
// in-process stores when no database is configured.
func (a *App) stores(store *storage.Store) (ledger.Store, funding.Store, audit.Store) {
	if store != nil {
		return store, store, store
	}
	a.Logger.Warn().Msg("database.dsn not configured; state will not survive restarts")
	return ledger.NewMemoryStore(), funding.NewMemoryStore(), audit.NewMemoryStore()
}

// newEngine assembles the policy engine over the given ledger store.
func (a *App) newEngine(ledgerStore ledger.Store, auditStore audit.Store) (*policy.Engine, *audit.Recorder, error) {
	doc, err := a.loadPolicy()
	if err != nil {
		return nil, nil, err
	}

	recorder := audit.NewRecorder(auditStore, a.Logger)
	engine := policy.NewEngine(doc, ledgerStore, recorder, a.Logger)
	return engine, recorder, nil
}

// newManager assembles the proposal lifecycle over its collaborators.
func (a *App) newManager(store funding.Store, planner funding.Planner) *funding.Manager {
	cfg := a.Config.Funding
	return funding.NewManager(funding.Options{
		DefaultAmountSats: cfg.DefaultAmountSats,
		MaxPending:        cfg.MaxPending,
		Expiry:            time.Duration(cfg.ExpiryHours) * time.Hour,
	}, store, planner, a.newNotifier(), a.Logger)
}

// Run executes the long-running authorizer: the decision cycle plus the
// approval webhook, stopped together on the first signal or fatal error.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	ledgerStore, proposalStore, auditStore := a.stores(store)

	engine, recorder, err := a.newEngine(ledgerStore, auditStore)
	if err != nil {
		return err
	}

	bitcoind, esplora, lightning := a.newWallets()

	planner := &fundingPlanner{
		app:    a,
		engine: engine,
		node:   bitcoind,
		index:  esplora,
	}
	manager := a.newManager(proposalStore, planner)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(a.Config, sched, lightning, manager, ledgerStore, a.Logger)

	verifier := webhook.NewVerifier(a.Config.Webhook.Secret, a.Config.Webhook.TimestampTolerance)
	server := webhook.NewServer(a.Config.Webhook.ListenAddr, verifier, manager, recorder, a.Logger)

	a.Logger.Info().Str("policy_version", engine.Policy().Version).Msg("starting treasury authorizer")

	errCh := make(chan error, 2)
	go func() { errCh <- svc.Run(ctx) }()
	go func() { errCh <- server.Start(ctx) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			cancel()
			a.Logger.Error().Err(err).Msg("authorizer terminated with error")
			return err
		}
		cancel()
	}

	a.Logger.Info().Msg("treasury authorizer stopped")
	return nil
}

// plannerNode is the slice of the wallet node the planner needs.
type plannerNode interface {
	wallet.FeeEstimator
	wallet.UnspentSource
	txbuilder.AddressSource
}

// fundingPlanner builds the unsigned transaction artifact for an approved
// funding proposal. The policy gate commits last: the ledger append happens
// only once a complete artifact exists, so a failed build never consumes cap
// headroom, and approval still cannot bypass budget checks.
type fundingPlanner struct {
	app    *App
	engine *policy.Engine
	node   plannerNode
	index  txbuilder.AddressBook
}

func (p *fundingPlanner) Plan(ctx context.Context, amountSats int64, note string) ([]byte, error) {
	destination := p.app.Config.Funding.DestinationAddress
	if destination == "" {
		return nil, errors.New("funding.destination_address is not configured")
	}

	rate, err := p.node.EstimateFeeRate(ctx, 6)
	if err != nil {
		return nil, fmt.Errorf("estimate fee rate: %w", err)
	}

	unspent, err := p.node.ListUnspent(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unspent outputs: %w", err)
	}

	// Selection is a pure computation over the snapshot; nothing durable
	// happens until the build has succeeded.
	builder := txbuilder.NewBuilder(p.engine.Policy().Rules, p.node, p.index, p.app.Logger)
	tx, err := builder.Build(ctx, txbuilder.BuildRequest{
		Destination:     destination,
		AmountSats:      amountSats,
		FeeRateSatPerVB: rate,
		Note:            note,
	}, unspent)
	if err != nil {
		return nil, err
	}

	decision, err := p.engine.AuthorizeSpend(ctx, policy.Request{
		Category:        "treasury_funding",
		Destination:     destination,
		AmountSats:      amountSats,
		FeeRateSatPerVB: rate,
		Note:            note,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("funding spend denied by policy: %s", decision.Reason)
	}

	return tx.Encode()
}
