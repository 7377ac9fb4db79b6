// Command poolreader assembles a cross-network linked pool from a yaml
// contract list and prints metadata and balances for every deployment.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/poolstate/poolstate-client-go/chains"
	"github.com/poolstate/poolstate-client-go/chains/ethrpc"
	"github.com/poolstate/poolstate-client-go/contracts"
	"github.com/poolstate/poolstate-client-go/pools"
)

func main() {
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		rootLogger.Error("Failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	callers := make(map[uint64]chains.ContractCaller, len(cfg.Networks))
	for _, network := range cfg.Networks {
		client, err := ethrpc.Dial(ctx, ethrpc.Config{
			URL:     network.URL,
			ChainID: network.ChainID,
			Logger:  rootLogger.With("component", "ethrpc", "chain_id", network.ChainID),
		})
		if err != nil {
			// One unreachable network should not prevent reading the others.
			rootLogger.Warn("Failed to dial network, its deployments will be excluded", "chain_id", network.ChainID, "error", err)
			continue
		}
		defer client.Close()
		callers[network.ChainID] = client
	}
	if len(callers) == 0 {
		rootLogger.Error("No network could be dialed")
		os.Exit(1)
	}

	descriptors := make([]contracts.Contract, 0, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		descriptors = append(descriptors, contracts.NewPrizePoolContract(pool.ChainID, common.HexToAddress(pool.Address)))
	}

	linked, err := pools.AssembleLinkedPool(ctx, pools.Config{
		Callers:       callers,
		Contracts:     contracts.NewContractList(descriptors),
		Logger:        rootLogger.With("component", "pools"),
		PrometheusReg: prometheus.DefaultRegisterer,
	})
	if err != nil {
		rootLogger.Error("Failed to assemble linked pool", "error", err)
		os.Exit(1)
	}

	for _, handle := range linked.Pools() {
		logger := rootLogger.With("chain_id", handle.ChainID(), "pool", handle.Address().Hex())

		tokenMeta, err := handle.TokenMetadata(ctx)
		if err != nil {
			logger.Error("Failed to read token metadata", "error", err)
			continue
		}
		ticketMeta, err := handle.TicketMetadata(ctx)
		if err != nil {
			logger.Error("Failed to read ticket metadata", "error", err)
			continue
		}
		supply, err := handle.TicketTotalSupply(ctx)
		if err != nil {
			logger.Error("Failed to read ticket supply", "error", err)
			continue
		}

		logger.Info("Pool",
			"token", tokenMeta.Symbol,
			"token_decimals", tokenMeta.Decimals,
			"ticket", ticketMeta.Symbol,
			"ticket_supply", supply.String(),
		)

		if cfg.Account == "" {
			continue
		}

		balances, err := handle.UserBalances(ctx, cfg.Account)
		if err != nil {
			logger.Error("Failed to read balances", "account", cfg.Account, "error", err)
			continue
		}
		allowance, err := handle.UserDepositAllowance(ctx, cfg.Account)
		if err != nil {
			logger.Error("Failed to read allowance", "account", cfg.Account, "error", err)
			continue
		}

		logger.Info("Account state",
			"account", cfg.Account,
			"token_balance", balances.Token.String(),
			"ticket_balance", balances.Ticket.String(),
			"deposit_allowance", allowance.Allowance.String(),
			"approved", allowance.IsApproved,
		)
	}
}
