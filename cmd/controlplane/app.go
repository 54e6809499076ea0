package main

import (
	"fmt"

	"github.com/odvcencio/controlplane/pkg/attention"
	"github.com/odvcencio/controlplane/pkg/budget"
	"github.com/odvcencio/controlplane/pkg/config"
	"github.com/odvcencio/controlplane/pkg/contract"
	"github.com/odvcencio/controlplane/pkg/executor"
	"github.com/odvcencio/controlplane/pkg/gate"
	"github.com/odvcencio/controlplane/pkg/gateway"
	"github.com/odvcencio/controlplane/pkg/ledger"
	"github.com/odvcencio/controlplane/pkg/logging"
	"github.com/odvcencio/controlplane/pkg/session"
	"github.com/odvcencio/controlplane/pkg/supervisor"
	"github.com/odvcencio/controlplane/pkg/tool"
	"github.com/odvcencio/controlplane/pkg/tool/builtin"
)

// App holds the wired dispatch core and its closable stores.
type App struct {
	Supervisor *supervisor.Supervisor
	Sessions   *session.Store

	ledgerStore *ledger.Store
	logger      *logging.Logger
}

// buildApp wires every collaborator from the configuration.
func buildApp(cfg *config.Config) (*App, error) {
	var logger *logging.Logger
	if cfg.Storage.LogDir != "" {
		var err error
		logger, err = logging.NewLogger(cfg.Storage.LogDir, cfg.BaseName)
		if err != nil {
			return nil, fmt.Errorf("failed to open log directory: %w", err)
		}
		if cfg.Debug {
			logger.SetMinLevel(logging.LevelDebug)
		}
	}

	ledgerStore, err := ledger.NewStore(cfg.Storage.LedgerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	sessions, err := session.NewStore(cfg.Storage.SessionPath, cfg.BaseName)
	if err != nil {
		ledgerStore.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	gatewayClient := gateway.NewClient(cfg.Gateway.APIKey, cfg.Gateway.BaseURL, gateway.ClientOptions{
		Model:   cfg.Gateway.Model,
		Timeout: cfg.Gateway.Timeout.Std(),
		RetryConfig: &gateway.RetryConfig{
			MaxRetries:      cfg.Gateway.MaxRetries,
			InitialInterval: gateway.DefaultRetryConfig().InitialInterval,
			MaxInterval:     gateway.DefaultRetryConfig().MaxInterval,
			Multiplier:      gateway.DefaultRetryConfig().Multiplier,
		},
	})

	budgeter := budget.NewHierarchy(cfg.Budget.GlobalTokens, cfg.Budget.SessionTokens)
	contracts := contract.NewFileLoader(cfg.Storage.ContractDir)
	registry := tool.NewRegistry()
	registry.Register(&builtin.ContextLookupTool{})

	exec := executor.New(executor.Options{
		Contracts: contracts,
		Gateway:   gatewayClient,
		Budgeter:  budgeter,
		Tools:     registry,
		Ledger:    ledgerStore,
		Logger:    logger,
		Model:     cfg.Gateway.Model,
	})

	sup := supervisor.New(supervisor.Options{
		Runner:               exec,
		Sessions:             sessions,
		Sequencer:            session.NewCounter(),
		Attention:            attention.NewTurnSource(sessions, 10),
		Gate:                 gate.NewCriteriaGate(),
		Ledger:               ledgerStore,
		Logger:               logger,
		ClassifyContractID:   cfg.Dispatch.ClassifyContractID,
		SynthesizeContractID: cfg.Dispatch.SynthesizeContractID,
		ClassifyTokens:       cfg.Budget.ClassifyTokens,
		SynthesisTokens:      cfg.Budget.SynthesisTokens,
		MaxRetries:           cfg.Dispatch.MaxRetries,
		ToolsAllowed:         cfg.Dispatch.ToolsAllowed,
		AcceptanceCriteria:   cfg.Dispatch.AcceptanceCriteria,
	})

	return &App{
		Supervisor:  sup,
		Sessions:    sessions,
		ledgerStore: ledgerStore,
		logger:      logger,
	}, nil
}

// Close releases the app's stores.
func (a *App) Close() {
	if a.Sessions != nil {
		_ = a.Sessions.Close()
	}
	if a.ledgerStore != nil {
		_ = a.ledgerStore.Close()
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}
