package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/crypto"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/journal"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/runtime"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/omerta"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

var errNotInitialized = errors.New("token is not initialized; run init first")

// node is the local ledger: account store, runtime and token program.
type node struct {
	cfg      Config
	logger   zerolog.Logger
	db       accounts.AccountsDB
	journal  journal.Journal
	metrics  *metrics.Metrics
	program  *omerta.Program
	addrs    omerta.Addresses
	executor *runtime.Executor
}

func programConfig(cfg ProgramConfig) (omerta.Config, error) {
	pc := omerta.DefaultConfig()
	if cfg.ProgramID != "" {
		id, err := types.PubkeyFromBase58(cfg.ProgramID)
		if err != nil {
			return pc, fmt.Errorf("program id: %w", err)
		}
		pc.ProgramID = id
	}
	if cfg.AuthorityMode != "" {
		mode, err := omerta.ParseAuthorityMode(cfg.AuthorityMode)
		if err != nil {
			return pc, err
		}
		pc.AuthorityMode = mode
	}
	if cfg.Cap != 0 {
		pc.Cap = cfg.Cap
	}
	return pc, pc.Validate()
}

func openStore(cfg GeneralConfig, logger zerolog.Logger) (accounts.AccountsDB, error) {
	switch cfg.Store {
	case "memory":
		logger.Info().Msg("using in-memory account store")
		return accounts.NewMemoryDB(), nil
	case "badger", "":
		path := filepath.Join(cfg.DataDir, "accounts")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		db, err := accounts.NewBadgerDB(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open account store: %w", err)
		}
		logger.Debug().Str("path", path).Msg("opened badger account store")
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}
}

func openNode(ctx context.Context, cfg Config, logger zerolog.Logger, m *metrics.Metrics) (*node, error) {
	pc, err := programConfig(cfg.Program)
	if err != nil {
		return nil, err
	}
	prog := omerta.New(pc)
	addrs, err := omerta.DeriveAddresses(prog.ID())
	if err != nil {
		return nil, err
	}

	db, err := openStore(cfg.General, logger)
	if err != nil {
		return nil, err
	}
	n := &node{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		metrics: m,
		program: prog,
		addrs:   addrs,
	}

	if cfg.Journal.DSN != "" {
		pg, err := journal.NewPostgres(ctx, cfg.Journal.DSN)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		n.journal = pg
	}

	registry := runtime.NewProgramRegistry()
	runtime.RegisterBuiltins(registry)
	registry.RegisterProgramWithName(prog.ID(), "omerta", prog)

	opts := []runtime.Option{runtime.WithLogger(logger), runtime.WithMetrics(m)}
	if n.journal != nil {
		opts = append(opts, runtime.WithJournal(n.journal))
	}
	n.executor = runtime.NewExecutor(db, registry, opts...)
	n.executor.OnCommit(n.trackSupply)

	if err := n.resumeSlot(ctx); err != nil {
		n.Close()
		return nil, err
	}
	if mint, err := n.mint(); err == nil {
		m.SetTokenSupply(mint.Supply)
	}
	return n, nil
}

// resumeSlot continues slot numbering after the newest journaled entry.
func (n *node) resumeSlot(ctx context.Context) error {
	if n.journal == nil {
		return nil
	}
	recent, err := n.journal.Recent(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	if len(recent) > 0 {
		n.executor.SetSlot(recent[0].Slot)
	}
	return nil
}

// trackSupply keeps the supply gauge current; it runs after every commit.
func (n *node) trackSupply(_ types.Slot, deltas []types.AccountDelta) {
	for _, d := range deltas {
		if d.Pubkey != n.addrs.Mint || d.NewAccount == nil {
			continue
		}
		mint, err := token.DeserializeMint(d.NewAccount.Data)
		if err != nil {
			return
		}
		n.metrics.SetTokenSupply(mint.Supply)
	}
}

func (n *node) Close() error {
	if n.journal != nil {
		if err := n.journal.Close(); err != nil {
			n.logger.Warn().Err(err).Msg("close journal")
		}
	}
	return n.db.Close()
}

// mint reads the token's mint record.
func (n *node) mint() (*token.Mint, error) {
	acc, err := n.db.GetAccount(n.addrs.Mint)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Owner != types.TokenProgramID {
		return nil, errNotInitialized
	}
	return token.DeserializeMint(acc.Data)
}

// balance returns owner's token balance in raw units; no account is zero.
func (n *node) balance(owner types.Pubkey) (uint64, error) {
	ata, err := n.addrs.TokenAccount(owner)
	if err != nil {
		return 0, err
	}
	acc, err := n.db.GetAccount(ata)
	if err != nil || acc == nil {
		return 0, err
	}
	ta, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil {
		return 0, err
	}
	return ta.Amount, nil
}

// parseAmount converts a decimal token amount using the mint's decimals.
func (n *node) parseAmount(s string) (uint64, uint8, error) {
	mint, err := n.mint()
	if err != nil {
		return 0, 0, err
	}
	raw, err := token.ParseUIAmount(s, mint.Decimals)
	return raw, mint.Decimals, err
}

// submit signs ixs with signers (the first pays) and executes them.
func (n *node) submit(ctx context.Context, ixs []types.Instruction, signers ...*crypto.Keypair) (*types.TransactionResult, error) {
	var blockhash types.Hash
	if _, err := rand.Read(blockhash[:]); err != nil {
		return nil, err
	}
	tx, err := crypto.NewSignedTransaction(ixs, blockhash, signers...)
	if err != nil {
		return nil, err
	}
	res, err := n.executor.Submit(ctx, tx)
	if res != nil {
		for _, line := range res.Logs {
			n.logger.Debug().Msg(line)
		}
	}
	return res, err
}
