// Package runtime executes signed transactions against an accounts store.
// Each transaction locks its accounts, runs its instructions on working
// copies and commits every change or none.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/crypto"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/journal"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/computebudget"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// CommitListener is called after a transaction's changes are stored,
// while its account locks are still held. Listeners run synchronously,
// must not block and must not submit transactions.
type CommitListener func(slot types.Slot, deltas []types.AccountDelta)

// Executor runs transactions.
type Executor struct {
	db       accounts.AccountsDB
	registry *ProgramRegistry
	locks    *AccountLocks

	journal journal.Journal
	metrics *metrics.Metrics
	logger  zerolog.Logger

	computeUnitsLimit types.ComputeUnits
	slot              atomic.Uint64

	seenMu sync.Mutex
	seen   map[types.Signature]struct{}

	listenersMu sync.RWMutex
	listeners   []CommitListener
}

// Option configures an Executor.
type Option func(*Executor)

// WithJournal records every executed transaction in j.
func WithJournal(j journal.Journal) Option {
	return func(e *Executor) { e.journal = j }
}

// WithMetrics reports execution to m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Executor) { e.logger = l.With().Str("component", "runtime").Logger() }
}

// NewExecutor creates an executor over db running the programs in registry.
func NewExecutor(db accounts.AccountsDB, registry *ProgramRegistry, opts ...Option) *Executor {
	e := &Executor{
		db:                db,
		registry:          registry,
		locks:             NewAccountLocks(),
		logger:            zerolog.Nop(),
		computeUnitsLimit: types.DefaultComputeUnitsPerInstruction,
		seen:              make(map[types.Signature]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetComputeUnitsLimit sets the per-instruction compute budget.
func (e *Executor) SetComputeUnitsLimit(limit types.ComputeUnits) {
	e.computeUnitsLimit = limit
}

// SetSlot sets the slot of the last executed transaction.
func (e *Executor) SetSlot(slot types.Slot) {
	e.slot.Store(uint64(slot))
}

// Slot returns the slot of the last executed transaction.
func (e *Executor) Slot() types.Slot {
	return types.Slot(e.slot.Load())
}

// Registry returns the program registry.
func (e *Executor) Registry() *ProgramRegistry {
	return e.registry
}

// OnCommit registers a listener for committed changes.
func (e *Executor) OnCommit(l CommitListener) {
	e.listenersMu.Lock()
	defer e.listenersMu.Unlock()
	e.listeners = append(e.listeners, l)
}

// ProcessTransaction verifies, executes and commits tx. A transaction that
// is malformed, badly signed or a replay returns an error and leaves no
// trace. Once execution starts the outcome is reported in the result: on
// failure result.Error holds an *InstructionError and nothing was written.
func (e *Executor) ProcessTransaction(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	if tx == nil {
		return nil, ErrNilTransaction
	}
	if len(tx.Message.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if err := crypto.VerifyTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSignatureVerification, err)
	}
	instructions, err := tx.Message.Decompile()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	budget, err := computebudget.FromInstructions(instructions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	writable, readonly, err := lockKeys(&tx.Message)
	if err != nil {
		return nil, err
	}

	sig := tx.ID()
	if !e.markSeen(sig) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}

	waitStart := time.Now()
	release, err := e.locks.Lock(ctx, writable, readonly)
	if err != nil {
		e.unmarkSeen(sig)
		return nil, fmt.Errorf("acquire account locks: %w", err)
	}
	e.metrics.ObserveLockWait(time.Since(waitStart))

	start := time.Now()
	result, err := e.execute(tx, instructions, budget)
	if err != nil {
		release()
		e.unmarkSeen(sig)
		return nil, err
	}
	// Listeners run under the account locks so that notifications for an
	// account arrive in commit order.
	if result.Success {
		e.notify(result.Slot, result.AccountDeltas)
	}
	release()
	elapsed := time.Since(start)

	e.record(ctx, tx, result)
	if result.Success {
		e.metrics.ObserveCommit(uint64(result.Slot), e.db.GetAccountsCount())
	}
	e.metrics.ObserveTransaction(result.Success, uint64(result.ComputeUnits), elapsed)

	event := e.logger.Debug()
	if !result.Success {
		event = e.logger.Info().Err(result.Error)
	}
	event.Str("signature", sig.String()).
		Uint64("slot", uint64(result.Slot)).
		Bool("success", result.Success).
		Uint64("compute_units", uint64(result.ComputeUnits)).
		Int("accounts_changed", len(result.AccountDeltas)).
		Dur("elapsed", elapsed).
		Msg("transaction processed")
	return result, nil
}

// Submit is ProcessTransaction for callers that only care whether the
// transaction committed.
func (e *Executor) Submit(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	result, err := e.ProcessTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return result, result.Error
	}
	return result, nil
}

func lockKeys(msg *types.Message) (writable, readonly []types.Pubkey, err error) {
	seen := make(map[types.Pubkey]struct{}, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		if _, dup := seen[key]; dup {
			return nil, nil, fmt.Errorf("%w: account %s loaded twice", ErrInvalidTransaction, key)
		}
		seen[key] = struct{}{}
		if msg.IsWritable(i) {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	return writable, readonly, nil
}

func (e *Executor) markSeen(sig types.Signature) bool {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	if _, ok := e.seen[sig]; ok {
		return false
	}
	e.seen[sig] = struct{}{}
	return true
}

func (e *Executor) unmarkSeen(sig types.Signature) {
	e.seenMu.Lock()
	defer e.seenMu.Unlock()
	delete(e.seen, sig)
}

// loadedAccount is the working state of one transaction key.
type loadedAccount struct {
	info *syscall.AccountInfo
	// stored is nil when the key had no account in the store.
	stored *types.Account
	// synthetic marks a registered program with no stored account.
	synthetic bool
}

func (e *Executor) load(msg *types.Message) (map[types.Pubkey]*loadedAccount, error) {
	out := make(map[types.Pubkey]*loadedAccount, len(msg.AccountKeys))
	for i, key := range msg.AccountKeys {
		stored, err := e.db.GetAccount(key)
		if err != nil {
			return nil, fmt.Errorf("load account %s: %w", key, err)
		}
		la := &loadedAccount{stored: stored}
		account := stored
		if account == nil && e.registry.HasProgram(key) {
			account = &types.Account{Lamports: 1, Owner: types.NativeLoaderID, Executable: true}
			la.synthetic = true
		}
		la.info = syscall.NewAccountInfo(key, account, msg.IsSigner(i), msg.IsWritable(i))
		out[key] = la
	}
	return out, nil
}

// execute runs the instructions and commits on success. The caller holds
// the account locks. All instructions share one compute meter; without an
// explicit limit each is also capped at the per-instruction limit.
func (e *Executor) execute(tx *types.Transaction, instructions []types.Instruction, budget computebudget.Budget) (*types.TransactionResult, error) {
	loaded, err := e.load(&tx.Message)
	if err != nil {
		return nil, err
	}

	result := &types.TransactionResult{
		Signature: tx.ID(),
		Slot:      types.Slot(e.slot.Add(1)),
		Logs:      make([]string, 0, 16),
	}

	var used types.ComputeUnits
	for i := range instructions {
		ix := &instructions[i]
		remaining := budget.ComputeUnitLimit - used
		if !budget.Explicit && e.computeUnitsLimit < remaining {
			remaining = e.computeUnitsLimit
		}
		logs, consumed, err := e.executeInstruction(ix, loaded, result.Slot, remaining)
		result.Logs = append(result.Logs, logs...)
		used += consumed
		e.metrics.ObserveInstruction(e.registry.ProgramName(ix.ProgramID), err == nil)
		if err != nil {
			result.ComputeUnits = used
			result.Error = &InstructionError{Index: i, ProgramID: ix.ProgramID, Err: err}
			return result, nil
		}
	}
	result.ComputeUnits = used

	updates, deltas := changes(&tx.Message, loaded)
	if len(updates) > 0 {
		if err := e.db.Apply(updates); err != nil {
			return nil, fmt.Errorf("commit transaction: %w", err)
		}
	}
	result.Success = true
	result.AccountDeltas = deltas
	return result, nil
}

func (e *Executor) executeInstruction(ix *types.Instruction, loaded map[types.Pubkey]*loadedAccount, slot types.Slot, remaining types.ComputeUnits) ([]string, types.ComputeUnits, error) {
	program, ok := e.registry.GetProgram(ix.ProgramID)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrProgramNotFound, ix.ProgramID)
	}
	budget := remaining
	if budget == 0 {
		return nil, 0, ErrComputeBudgetExhausted
	}

	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	before := make(map[types.Pubkey]*syscall.AccountInfo, len(ix.Accounts))
	for j, meta := range ix.Accounts {
		la := loaded[meta.Pubkey]
		infos[j] = la.info
		if _, ok := before[meta.Pubkey]; !ok {
			before[meta.Pubkey] = la.info.Clone()
		}
	}

	ctx := syscall.NewExecutionContext(ix.ProgramID, infos, ix.Data, uint64(budget))
	ctx.SetProgramResolver(e.registry)
	ctx.Slot = slot

	logs := []string{fmt.Sprintf("Program %s invoke [1]", ix.ProgramID)}
	err := program.Execute(ctx, ix)
	if err == nil {
		err = verifyInstruction(before, loaded)
	}
	consumed := ctx.ComputeUnitsConsumed()
	logs = append(logs, ctx.Logs()...)
	logs = append(logs, fmt.Sprintf("Program %s consumed %d of %d compute units", ix.ProgramID, consumed, budget))
	if err != nil {
		logs = append(logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
	} else {
		logs = append(logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	}
	return logs, types.ComputeUnits(consumed), err
}

// verifyInstruction checks that read-only accounts are untouched and that
// no lamports were created or destroyed.
func verifyInstruction(before map[types.Pubkey]*syscall.AccountInfo, loaded map[types.Pubkey]*loadedAccount) error {
	var sumBefore, sumAfter uint64
	for key, pre := range before {
		post := loaded[key].info
		if !post.IsWritable && (*pre.Lamports != *post.Lamports || pre.Owner != post.Owner ||
			string(pre.Data) != string(post.Data) || pre.Executable != post.Executable) {
			return fmt.Errorf("%w: %s", syscall.ErrReadOnlyModified, key)
		}
		var ok bool
		if sumBefore, ok = addLamports(sumBefore, *pre.Lamports); !ok {
			return ErrUnbalancedInstruction
		}
		if sumAfter, ok = addLamports(sumAfter, *post.Lamports); !ok {
			return ErrUnbalancedInstruction
		}
	}
	if sumBefore != sumAfter {
		return fmt.Errorf("%w: %d before, %d after", ErrUnbalancedInstruction, sumBefore, sumAfter)
	}
	return nil
}

func addLamports(a, b uint64) (uint64, bool) {
	s := a + b
	return s, s >= a
}

// changes collects the writable accounts whose state differs from the
// store. An account left with no lamports and no data is deleted.
func changes(msg *types.Message, loaded map[types.Pubkey]*loadedAccount) ([]accounts.Update, []types.AccountDelta) {
	var (
		updates []accounts.Update
		deltas  []types.AccountDelta
	)
	for i, key := range msg.AccountKeys {
		la := loaded[key]
		if !msg.IsWritable(i) || la.synthetic {
			continue
		}
		post := la.info.ToAccount()
		if post.IsEmpty() {
			post = nil
		}
		if la.stored.Equal(post) {
			continue
		}
		updates = append(updates, accounts.Update{Pubkey: key, Account: post})
		deltas = append(deltas, types.AccountDelta{Pubkey: key, OldAccount: la.stored, NewAccount: post})
	}
	return updates, deltas
}

func (e *Executor) record(ctx context.Context, tx *types.Transaction, result *types.TransactionResult) {
	if e.journal == nil {
		return
	}
	entry := &journal.Entry{
		Signature:    result.Signature,
		Slot:         result.Slot,
		FeePayer:     tx.FeePayer(),
		Success:      result.Success,
		Logs:         result.Logs,
		ComputeUnits: uint64(result.ComputeUnits),
		ProcessedAt:  time.Now().UTC(),
	}
	if result.Error != nil {
		entry.Error = result.Error.Error()
	}
	for _, d := range result.AccountDeltas {
		entry.Accounts = append(entry.Accounts, d.Pubkey)
	}
	if err := e.journal.Record(ctx, entry); err != nil && !errors.Is(err, journal.ErrDuplicate) {
		e.metrics.JournalFailed()
		e.logger.Error().Err(err).Str("signature", result.Signature.String()).Msg("journal write failed")
	}
}

func (e *Executor) notify(slot types.Slot, deltas []types.AccountDelta) {
	if len(deltas) == 0 {
		return
	}
	e.listenersMu.RLock()
	listeners := make([]CommitListener, len(e.listeners))
	copy(listeners, e.listeners)
	e.listenersMu.RUnlock()
	for _, l := range listeners {
		l(slot, deltas)
	}
}
