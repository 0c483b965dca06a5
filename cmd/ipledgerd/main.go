package main

import (
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"ipledger/config"
	"ipledger/core/events"
	"ipledger/core/state"
	"ipledger/core/types"
	nativecommon "ipledger/native/common"
	"ipledger/native/loan"
	"ipledger/native/royalty"
	"ipledger/native/token"
	"ipledger/observability/logging"
	"ipledger/rpc"
	"ipledger/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	env := os.Getenv("IPLEDGER_ENV")
	if env == "" {
		env = "development"
	}
	logger := logging.Setup("ipledgerd", env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open storage backend", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	if err := seedRoles(manager, cfg); err != nil {
		logger.Error("failed to seed role grants", "error", err)
		os.Exit(1)
	}
	if err := seedFloat(manager, cfg); err != nil {
		logger.Error("failed to seed loan module float", "error", err)
		os.Exit(1)
	}

	pauses := nativecommon.NewStaticPauses(cfg.PausedModules)
	emitter := events.LogEmitter{Logger: logger}

	loans := loan.NewEngine()
	loans.SetState(manager)
	loans.SetEmitter(emitter)
	loans.SetPauses(pauses)

	royalties := royalty.NewEngine()
	royalties.SetState(manager)
	royalties.SetEmitter(emitter)
	royalties.SetPauses(pauses)

	tokens := token.NewLedger()
	tokens.SetState(manager)
	tokens.SetEmitter(emitter)
	tokens.SetPauses(pauses)

	server := rpc.NewServer(loans, royalties, tokens, manager, logger)
	logger.Info("node ready",
		"network", cfg.NetworkName,
		"backend", cfg.Backend,
		"dataDir", cfg.DataDir,
	)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Backend {
	case "leveldb":
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "state.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func seedRoles(manager *state.Manager, cfg *config.Config) error {
	if cfg.AdminAddress != "" {
		admin, err := config.ParseAddress(cfg.AdminAddress)
		if err != nil {
			return err
		}
		if err := manager.GrantRole(nativecommon.RoleProtocolAdmin, admin[:]); err != nil {
			return err
		}
	}
	for _, raw := range cfg.ApproverAddresses {
		approver, err := config.ParseAddress(raw)
		if err != nil {
			return err
		}
		if err := manager.GrantRole(nativecommon.RoleLoanApprover, approver[:]); err != nil {
			return err
		}
	}
	return nil
}

// seedFloat credits the configured genesis float to the loan module account.
// Only a fresh database is seeded; restarts leave the float untouched.
func seedFloat(manager *state.Manager, cfg *config.Config) error {
	if cfg.GenesisFloatWei == "" {
		return nil
	}
	amount, ok := new(big.Int).SetString(cfg.GenesisFloatWei, 10)
	if !ok {
		return fmt.Errorf("invalid GenesisFloatWei %q", cfg.GenesisFloatWei)
	}
	if amount.Sign() == 0 {
		return nil
	}
	module := loan.ModuleAddress()
	existing, err := manager.GetAccount(module[:])
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	account := types.NewAccount()
	account.Balance = amount
	return manager.PutAccount(module[:], account)
}
