// Command agentd runs the interest-rate agent as one long-lived Go
// process: it wires every component (C1-C8) together, starts the HTTP
// API, and blocks until SIGINT/SIGTERM, mirroring the retrieval pack's
// root main.go shutdown sequence (context cancellation, then a bounded
// http.Server.Shutdown, then closing any external client connections).
package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holiman/uint256"

	"github.com/liquity/ir-agent/pkg/auditsink"
	agentconfig "github.com/liquity/ir-agent/pkg/config"
	"github.com/liquity/ir-agent/pkg/ethereum"
	"github.com/liquity/ir-agent/pkg/halting"
	"github.com/liquity/ir-agent/pkg/journal"
	"github.com/liquity/ir-agent/pkg/metrics"
	"github.com/liquity/ir-agent/pkg/recharge"
	"github.com/liquity/ir-agent/pkg/rpcpool"
	"github.com/liquity/ir-agent/pkg/scheduler"
	"github.com/liquity/ir-agent/pkg/server"
	"github.com/liquity/ir-agent/pkg/signer"
	"github.com/liquity/ir-agent/pkg/store"
	"github.com/liquity/ir-agent/pkg/strategy"
)

func main() {
	logger := log.New(os.Stdout, "[agentd] ", log.LstdFlags)

	cfg := agentconfig.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("invalid configuration: %v", err)
	}

	agentCfg, err := agentconfig.LoadAgentConfig(cfg.AgentConfigPath)
	if err != nil {
		logger.Fatalf("loading agent config %s: %v", cfg.AgentConfigPath, err)
	}
	logger.Printf("loaded agent config: environment=%s chain=%s(%d) rpc_providers=%d",
		agentCfg.Environment, agentCfg.Chain.Name, agentCfg.Chain.ChainID, len(agentCfg.RPCProviders))

	kv, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("opening store: %v", err)
	}
	st := store.New(kv)

	jrnl, err := journal.New(kv, agentCfg.Constants.JournalRingSize)
	if err != nil {
		logger.Fatalf("opening journal: %v", err)
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := dialProviderPool(dialCtx, agentCfg, logger)
	dialCancel()
	if err != nil {
		logger.Fatalf("dialing RPC providers: %v", err)
	}

	gateway, err := buildGateway(cfg)
	if err != nil {
		logger.Fatalf("constructing signer gateway: %v", err)
	}

	metricsReg := metrics.New()
	chainID := big.NewInt(agentCfg.Chain.ChainID)

	haltSupervisor := halting.New(halting.Config{
		Store:     st,
		Journal:   jrnl,
		Constants: agentCfg.Constants,
		Logger:    log.New(os.Stdout, "[HaltingSupervisor] ", log.LstdFlags),
	})

	strategyEngine := strategy.New(strategy.Config{
		Store:     st,
		Journal:   jrnl,
		Pool:      pool,
		Gateway:   gateway,
		ChainID:   chainID,
		Halt:      haltSupervisor,
		Constants: agentCfg.Constants,
		Logger:    log.New(os.Stdout, "[StrategyEngine] ", log.LstdFlags),
	})

	rechargeEngine, err := buildRechargeEngine(st, jrnl, pool, gateway, chainID, agentCfg, haltSupervisor)
	if err != nil {
		logger.Fatalf("constructing recharge engine: %v", err)
	}
	if treasury, err := rechargeEngine.EnsureTreasury(context.Background()); err != nil {
		logger.Printf("warning: could not derive treasury EOA at startup: %v", err)
	} else {
		logger.Printf("treasury EOA: %s", treasury)
	}

	sched := scheduler.New(scheduler.Config{
		Store:     st,
		Journal:   jrnl,
		Gateway:   gateway,
		Engine:    strategyEngine,
		Recharge:  rechargeEngine,
		Halt:      haltSupervisor,
		Constants: agentCfg.Constants,
		Logger:    log.New(os.Stdout, "[Scheduler] ", log.LstdFlags),
	})

	sink, closeSinks, err := buildAuditSink(cfg)
	if err != nil {
		logger.Fatalf("constructing audit sink: %v", err)
	}
	defer closeSinks()
	auditCtx, auditCancel := context.WithCancel(context.Background())
	defer auditCancel()
	go auditsink.Run(auditCtx, sink, jrnl.Subscribe())

	srv := server.New(server.Config{
		Store:     st,
		Journal:   jrnl,
		Pool:      pool,
		Scheduler: sched,
		Recharge:  rechargeEngine,
		Halt:      haltSupervisor,
		Metrics:   metricsReg,
		Logger:    log.New(os.Stdout, "[Server] ", log.LstdFlags),
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv.Handler(),
	}

	go func() {
		logger.Printf("listening on %s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Println("shutdown signal received")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("http server shutdown error: %v", err)
	}

	if err := kv.Close(); err != nil {
		logger.Printf("store close error: %v", err)
	}

	logger.Println("stopped")
}

func openStore(cfg *agentconfig.Config) (*store.KVAdapter, error) {
	switch cfg.StoreBackend {
	case "memdb":
		return store.OpenMemDB(), nil
	case "goleveldb", "":
		return store.OpenGoLevelDB("agent", cfg.StoreDataDir)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func dialProviderPool(ctx context.Context, agentCfg *agentconfig.AgentConfig, logger *log.Logger) (*rpcpool.Pool, error) {
	providers := make([]*rpcpool.Provider, 0, len(agentCfg.RPCProviders))
	for _, p := range agentCfg.RPCProviders {
		client, err := ethereum.Dial(ctx, p.ResolvedURL())
		if err != nil {
			return nil, fmt.Errorf("dialing provider %s: %w", p.Name, err)
		}
		providers = append(providers, &rpcpool.Provider{Name: p.Name, Client: client, Weight: p.Weight})
	}
	return rpcpool.New(providers, rpcpool.Config{
		ReputationFloor:   agentCfg.Constants.RPCReputationFloor,
		ReputationCeiling: agentCfg.Constants.RPCReputationCeiling,
		MaxResponseBytes:  agentCfg.Constants.RPCMaxResponseBytes,
		Logger:            log.New(os.Stdout, "[RPCPool] ", log.LstdFlags),
	}), nil
}

// buildGateway prefers a remote signer endpoint when configured, since
// that is what a production deployment with real threshold-ECDSA key
// custody supplies; AGENT_SIGNER_KEY_HEX is the local-development
// fallback, matching config.Config's own field comment.
func buildGateway(cfg *agentconfig.Config) (signer.Gateway, error) {
	if cfg.SignerURL != "" {
		return signer.NewRemoteGateway(cfg.SignerURL), nil
	}
	return signer.NewLocalGateway(cfg.SignerKeyHex)
}

func buildRechargeEngine(st *store.Store, jrnl *journal.Journal, pool *rpcpool.Pool, gateway signer.Gateway, chainID *big.Int, agentCfg *agentconfig.AgentConfig, haltSupervisor *halting.Supervisor) (*recharge.Engine, error) {
	rate, err := uint256.FromDecimal(agentCfg.Constants.EthXdrRate)
	if err != nil {
		return nil, fmt.Errorf("parsing eth_xdr_rate: %w", err)
	}
	return recharge.New(recharge.Config{
		Store:              st,
		Journal:            jrnl,
		Pool:               pool,
		Gateway:            gateway,
		Oracle:             recharge.StaticRateOracle{RateE18: rate},
		Halt:               haltSupervisor,
		ChainID:            chainID,
		CkETHTokenAddress:  agentCfg.Chain.CkETHTokenAddress,
		CkETHHelperAddress: agentCfg.Chain.CkETHHelperAddress,
		Constants:          agentCfg.Constants,
		Logger:             log.New(os.Stdout, "[RechargeEngine] ", log.LstdFlags),
	})
}

// buildAuditSink constructs both optional sinks unconditionally, per
// pkg/auditsink's no-op-when-disabled convention, and returns a combined
// Sink plus a single Close callback for shutdown.
func buildAuditSink(cfg *agentconfig.Config) (auditsink.Sink, func(), error) {
	pg, err := auditsink.NewPostgresSink(cfg.AuditSinkEnabled, cfg.AuditSinkDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres sink: %w", err)
	}
	fs, err := auditsink.NewFirestoreSink(context.Background(), cfg.FirestoreEnabled, cfg.FirestoreProject, cfg.FirestoreCredFile)
	if err != nil {
		return nil, nil, fmt.Errorf("firestore sink: %w", err)
	}
	combined := auditsink.New(pg, fs)
	return combined, func() { _ = combined.Close() }, nil
}
