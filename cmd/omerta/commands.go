package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/crypto"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/rpc"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/omerta"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// env is what every subcommand runs against.
type env struct {
	cfg    Config
	logger zerolog.Logger
	out    io.Writer
}

type command struct {
	name    string
	usage   string
	summary string
	// offline commands do not open the ledger.
	offline bool
	run     func(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error
}

var commands = []command{
	{name: "keygen", usage: "keygen [--out path] [--force]", summary: "Generate a signer keypair", offline: true, run: runKeygen},
	{name: "airdrop", usage: "airdrop <lamports> [--to pubkey]", summary: "Credit lamports to a wallet on the local ledger", run: runAirdrop},
	{name: "init", usage: "init --name N --symbol S --uri U [--decimals 9]", summary: "Create the mint and its metadata", run: runInit},
	{name: "mint", usage: "mint <amount> [--to pubkey] [--authority keypair]", summary: "Mint tokens, bounded by the supply cap", run: runMint},
	{name: "transfer", usage: "transfer <amount> --to pubkey", summary: "Transfer tokens from the signer", run: runTransfer},
	{name: "approve", usage: "approve <amount> --delegate pubkey", summary: "Allow a delegate to spend the signer's tokens", run: runApprove},
	{name: "revoke", usage: "revoke", summary: "Clear the signer's delegate", run: runRevoke},
	{name: "burn", usage: "burn <amount> [--holder pubkey]", summary: "Burn tokens as holder or delegate", run: runBurn},
	{name: "rotate-authority", usage: "rotate-authority (--new pubkey | --none)", summary: "Change or remove the mint authority", run: runRotateAuthority},
	{name: "update-metadata", usage: "update-metadata [--name N] [--symbol S] [--uri U]", summary: "Rewrite the token metadata", run: runUpdateMetadata},
	{name: "supply", usage: "supply", summary: "Show mint state and metadata", run: runSupply},
	{name: "balance", usage: "balance [pubkey]", summary: "Show a wallet's token balance", run: runBalance},
	{name: "snapshot", usage: "snapshot (export|import) <file>", summary: "Export or import the account store", run: runSnapshot},
	{name: "serve", usage: "serve [--rpc-addr addr] [--metrics-addr addr]", summary: "Serve JSON-RPC, websocket subscriptions and metrics", run: runServe},
}

func findCommand(name string) *command {
	for i := range commands {
		if commands[i].name == name {
			return &commands[i]
		}
	}
	return nil
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintf(w, "Usage: omerta [global flags] <command> [args]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-18s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nGlobal flags:\n")
	fs.SetOutput(w)
	fs.PrintDefaults()
}

// parseArgs parses interleaved flags and positional arguments.
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func newFlagSet(c *command) *flag.FlagSet {
	fs := flag.NewFlagSet(c.name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: omerta %s\n", c.usage)
		fs.PrintDefaults()
	}
	return fs
}

func (e *env) signer() (*crypto.Keypair, error) {
	kp, err := crypto.LoadKeypairFile(e.cfg.General.Keypair)
	if err != nil {
		return nil, fmt.Errorf("load signer %s: %w", e.cfg.General.Keypair, err)
	}
	return kp, nil
}

func pubkeyOr(s string, fallback types.Pubkey) (types.Pubkey, error) {
	if s == "" {
		return fallback, nil
	}
	return types.PubkeyFromBase58(s)
}

func exactlyOne(args []string, what string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected %s", what)
	}
	return args[0], nil
}

// report prints the outcome of a submitted transaction.
func (e *env) report(res *types.TransactionResult, err error) error {
	if err != nil {
		if code, ok := omerta.CodeOf(err); ok {
			return fmt.Errorf("transaction failed (code %d): %w", code, err)
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	fmt.Fprintf(e.out, "Signature: %s\nSlot:      %d\nCompute:   %d\n", res.Signature, res.Slot, res.ComputeUnits)
	return nil
}

func runKeygen(_ context.Context, e *env, _ *node, fs *flag.FlagSet, args []string) error {
	out := fs.String("out", e.cfg.General.Keypair, "Keypair file to write")
	force := fs.Bool("force", false, "Overwrite an existing file")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if _, err := os.Stat(*out); err == nil && !*force {
		return fmt.Errorf("%s already exists; pass --force to overwrite", *out)
	}
	kp, err := crypto.NewKeypair()
	if err != nil {
		return err
	}
	if err := crypto.SaveKeypairFile(*out, kp); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Wrote %s\nPubkey: %s\n", *out, kp.Pubkey())
	return nil
}

// runAirdrop credits lamports directly in the account store. It is a local
// faucet and does not go through the runtime.
func runAirdrop(_ context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	to := fs.String("to", "", "Recipient wallet (default: signer)")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	arg, err := exactlyOne(pos, "a lamport amount")
	if err != nil {
		return err
	}
	var lamports uint64
	if _, err := fmt.Sscan(arg, &lamports); err != nil {
		return fmt.Errorf("invalid lamports %q", arg)
	}

	var fallback types.Pubkey
	if *to == "" {
		kp, err := e.signer()
		if err != nil {
			return err
		}
		fallback = kp.Pubkey()
	}
	wallet, err := pubkeyOr(*to, fallback)
	if err != nil {
		return err
	}

	acc, err := n.db.GetAccount(wallet)
	if err != nil {
		return err
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	if uint64(acc.Lamports)+lamports < uint64(acc.Lamports) {
		return errors.New("lamport balance overflow")
	}
	acc.Lamports += types.Lamports(lamports)
	if err := n.db.SetAccount(wallet, acc); err != nil {
		return err
	}
	e.logger.Info().Str("wallet", wallet.String()).Uint64("lamports", lamports).Msg("airdrop")
	fmt.Fprintf(e.out, "%s now holds %d lamports\n", wallet, acc.Lamports)
	return nil
}

func runInit(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	name := fs.String("name", "", "Token name")
	symbol := fs.String("symbol", "", "Token symbol")
	uri := fs.String("uri", "", "Metadata URI")
	decimals := fs.Uint("decimals", 9, "Decimal places (0-9)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if *decimals > omerta.MaxDecimals {
		return fmt.Errorf("decimals must be at most %d", omerta.MaxDecimals)
	}
	payer, err := e.signer()
	if err != nil {
		return err
	}
	ix, err := omerta.NewInitializeInstruction(n.addrs.ProgramID, payer.Pubkey(), omerta.InitTokenParams{
		Name:     *name,
		Symbol:   *symbol,
		URI:      *uri,
		Decimals: uint8(*decimals),
	})
	if err != nil {
		return err
	}
	if err := e.report(n.submit(ctx, []types.Instruction{ix}, payer)); err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Mint:      %s\nMetadata:  %s\n", n.addrs.Mint, n.addrs.Metadata)
	return nil
}

func runMint(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	to := fs.String("to", "", "Recipient wallet (default: signer)")
	authorityPath := fs.String("authority", "", "Keypair of an external mint authority")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	arg, err := exactlyOne(pos, "an amount")
	if err != nil {
		return err
	}
	payer, err := e.signer()
	if err != nil {
		return err
	}
	owner, err := pubkeyOr(*to, payer.Pubkey())
	if err != nil {
		return err
	}
	amount, _, err := n.parseAmount(arg)
	if err != nil {
		return err
	}
	mint, err := n.mint()
	if err != nil {
		return err
	}
	if !mint.MintAuthority.IsSome {
		return errors.New("minting is disabled: the mint has no authority")
	}

	signers := []*crypto.Keypair{payer}
	var authority types.Pubkey
	switch {
	case *authorityPath != "":
		kp, err := crypto.LoadKeypairFile(*authorityPath)
		if err != nil {
			return err
		}
		authority = kp.Pubkey()
		if kp.Pubkey() != payer.Pubkey() {
			signers = append(signers, kp)
		}
	case mint.MintAuthority.Value == n.addrs.Mint:
		// the program signs for its own address
	default:
		authority = payer.Pubkey()
	}

	ix, err := omerta.NewMintTokensInstruction(n.addrs.ProgramID, payer.Pubkey(), owner, authority, amount)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, signers...))
}

func runTransfer(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	to := fs.String("to", "", "Recipient wallet")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	arg, err := exactlyOne(pos, "an amount")
	if err != nil {
		return err
	}
	if *to == "" {
		return errors.New("--to is required")
	}
	recipient, err := types.PubkeyFromBase58(*to)
	if err != nil {
		return err
	}
	from, err := e.signer()
	if err != nil {
		return err
	}
	amount, _, err := n.parseAmount(arg)
	if err != nil {
		return err
	}
	ix, err := omerta.NewTransferInstruction(n.addrs.ProgramID, from.Pubkey(), recipient, amount)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, from))
}

func runApprove(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	delegate := fs.String("delegate", "", "Delegate wallet")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	arg, err := exactlyOne(pos, "an amount")
	if err != nil {
		return err
	}
	if *delegate == "" {
		return errors.New("--delegate is required")
	}
	del, err := types.PubkeyFromBase58(*delegate)
	if err != nil {
		return err
	}
	owner, err := e.signer()
	if err != nil {
		return err
	}
	amount, _, err := n.parseAmount(arg)
	if err != nil {
		return err
	}
	ix, err := omerta.NewApproveInstruction(n.addrs.ProgramID, owner.Pubkey(), del, amount)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, owner))
}

func runRevoke(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	owner, err := e.signer()
	if err != nil {
		return err
	}
	ix, err := omerta.NewRevokeInstruction(n.addrs.ProgramID, owner.Pubkey())
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, owner))
}

func runBurn(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	holder := fs.String("holder", "", "Wallet whose tokens are burned (default: signer)")
	pos, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	arg, err := exactlyOne(pos, "an amount")
	if err != nil {
		return err
	}
	authority, err := e.signer()
	if err != nil {
		return err
	}
	from, err := pubkeyOr(*holder, authority.Pubkey())
	if err != nil {
		return err
	}
	amount, _, err := n.parseAmount(arg)
	if err != nil {
		return err
	}
	ix, err := omerta.NewBurnInstruction(n.addrs.ProgramID, from, authority.Pubkey(), amount)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, authority))
}

func runRotateAuthority(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	next := fs.String("new", "", "New mint authority")
	none := fs.Bool("none", false, "Remove the mint authority permanently")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	if (*next == "") == !*none {
		return errors.New("pass exactly one of --new or --none")
	}
	var newAuthority *types.Pubkey
	if *next != "" {
		pk, err := types.PubkeyFromBase58(*next)
		if err != nil {
			return err
		}
		newAuthority = &pk
	}
	current, err := e.signer()
	if err != nil {
		return err
	}
	ix, err := omerta.NewChangeMintAuthorityInstruction(n.addrs.ProgramID, current.Pubkey(), newAuthority)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, current))
}

func (n *node) metadata() (*metadata.Metadata, error) {
	acc, err := n.db.GetAccount(n.addrs.Metadata)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Owner != types.MetadataProgramID {
		return nil, errNotInitialized
	}
	return metadata.DeserializeMetadata(acc.Data)
}

func runUpdateMetadata(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	name := fs.String("name", "", "New token name")
	symbol := fs.String("symbol", "", "New token symbol")
	uri := fs.String("uri", "", "New metadata URI")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	md, err := n.metadata()
	if err != nil {
		return err
	}
	params := omerta.InitTokenParams{Name: md.Data.Name, Symbol: md.Data.Symbol, URI: md.Data.URI}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			params.Name = *name
		case "symbol":
			params.Symbol = *symbol
		case "uri":
			params.URI = *uri
		}
	})
	authority, err := e.signer()
	if err != nil {
		return err
	}
	ix, err := omerta.NewUpdateMetadataInstruction(n.addrs.ProgramID, authority.Pubkey(), params)
	if err != nil {
		return err
	}
	return e.report(n.submit(ctx, []types.Instruction{ix}, authority))
}

func optionLabel(o token.COption, derived types.Pubkey) string {
	switch {
	case !o.IsSome:
		return "none"
	case o.Value == derived:
		return o.Value.String() + " (program)"
	}
	return o.Value.String()
}

func runSupply(_ context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}
	mint, err := n.mint()
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "Program:    %s\n", n.addrs.ProgramID)
	fmt.Fprintf(e.out, "Mint:       %s\n", n.addrs.Mint)
	fmt.Fprintf(e.out, "Supply:     %s (%d raw)\n", token.UIAmountString(mint.Supply, mint.Decimals), mint.Supply)
	fmt.Fprintf(e.out, "Cap:        %s\n", token.UIAmountString(n.program.Cap(), mint.Decimals))
	fmt.Fprintf(e.out, "Decimals:   %d\n", mint.Decimals)
	fmt.Fprintf(e.out, "Authority:  %s\n", optionLabel(mint.MintAuthority, n.addrs.Mint))
	fmt.Fprintf(e.out, "Freeze:     %s\n", optionLabel(mint.FreezeAuthority, n.addrs.Mint))
	if md, err := n.metadata(); err == nil {
		fmt.Fprintf(e.out, "Name:       %s\nSymbol:     %s\nURI:        %s\nUpdater:    %s\n",
			md.Data.Name, md.Data.Symbol, md.Data.URI, md.UpdateAuthority)
	}
	fmt.Fprintf(e.out, "Slot:       %d\n", n.executor.Slot())
	return nil
}

func runBalance(_ context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	var owner types.Pubkey
	switch len(args) {
	case 0:
		kp, err := e.signer()
		if err != nil {
			return err
		}
		owner = kp.Pubkey()
	case 1:
		pk, err := types.PubkeyFromBase58(args[0])
		if err != nil {
			return err
		}
		owner = pk
	default:
		return errors.New("expected at most one pubkey")
	}
	mint, err := n.mint()
	if err != nil {
		return err
	}
	raw, err := n.balance(owner)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%s\n", token.UIAmountString(raw, mint.Decimals))
	return nil
}

func runSnapshot(_ context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	args, err := parseArgs(fs, args)
	if err != nil {
		return err
	}
	if len(args) != 2 {
		return errors.New("usage: omerta snapshot (export|import) <file>")
	}
	switch args[0] {
	case "export":
		f, err := os.Create(args[1])
		if err != nil {
			return err
		}
		count, err := accounts.ExportSnapshot(n.db, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		fmt.Fprintf(e.out, "Exported %d accounts to %s\n", count, args[1])
	case "import":
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		count, err := accounts.ImportSnapshot(n.db, f)
		if err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		fmt.Fprintf(e.out, "Imported %d accounts from %s\n", count, args[1])
	default:
		return fmt.Errorf("unknown snapshot action %q", args[0])
	}
	return nil
}

func runServe(ctx context.Context, e *env, n *node, fs *flag.FlagSet, args []string) error {
	rpcAddr := fs.String("rpc-addr", e.cfg.RPC.Addr, "JSON-RPC listen address")
	metricsAddr := fs.String("metrics-addr", e.cfg.Metrics.Addr, "Metrics and health listen address")
	rateLimit := fs.Float64("rate-limit", 0, "Per-client requests per second (0 disables)")
	if _, err := parseArgs(fs, args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := metrics.NewHealthChecker()
	health.RegisterCheck("accounts", func(context.Context) error {
		_, err := n.db.GetAccount(n.addrs.Mint)
		return err
	})
	if pg, ok := n.journal.(interface{ Ping(context.Context) error }); ok {
		health.RegisterCheck("journal", pg.Ping)
	}

	var rpcServer *rpc.Server
	if e.cfg.RPC.Enabled {
		cfg := rpc.DefaultServerConfig()
		cfg.Address = *rpcAddr
		if *rateLimit > 0 {
			cfg.EnableRateLimit = true
			cfg.RateLimitRPS = *rateLimit
			cfg.RateLimitBurst = int(2 * *rateLimit)
		}
		rpcServer = rpc.NewServer(cfg, rpc.Backend{
			Accounts: n.db,
			Slots:    n.executor,
			Journal:  n.journal,
			Health:   health,
		}, rpc.WithLogger(e.logger), rpc.WithMetrics(n.metrics))
		n.executor.OnCommit(rpcServer.PubSub().Publish)
		if err := rpcServer.Start(); err != nil {
			return err
		}
	}

	var metricsServer *metrics.Server
	if e.cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(n.metrics,
			metrics.WithAddr(*metricsAddr),
			metrics.WithHealthChecker(health),
			metrics.WithLogger(e.logger),
		)
		if err := metricsServer.Start(); err != nil {
			if rpcServer != nil {
				rpcServer.Stop(context.Background())
			}
			return err
		}
	}
	if rpcServer == nil && metricsServer == nil {
		return errors.New("nothing to serve: rpc and metrics are both disabled")
	}

	health.SetReady(true)
	e.logger.Info().
		Str("program", n.addrs.ProgramID.String()).
		Str("mint", n.addrs.Mint.String()).
		Uint64("slot", uint64(n.executor.Slot())).
		Msg("node ready")

	<-ctx.Done()
	e.logger.Info().Msg("shutting down")
	health.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rpcServer != nil {
		if err := rpcServer.Stop(shutdownCtx); err != nil {
			e.logger.Warn().Err(err).Msg("stop rpc server")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			e.logger.Warn().Err(err).Msg("stop metrics server")
		}
	}
	return nil
}
