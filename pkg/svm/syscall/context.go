// Package syscall provides the execution context that native programs run
// against: the instruction's accounts, the compute meter, program logs,
// program-derived address helpers and cross-program invocation.
package syscall

import (
	"errors"
	"fmt"
	"sync"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Context errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrAccountNotSigner    = errors.New("account is not a signer")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrReadOnlyModified    = errors.New("read-only account was modified")
	ErrAccountDataTooLarge = errors.New("account data too large")
)

// Limits for execution
const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10000
	MaxAccountDataSize  = 10 * 1024 * 1024
)

// AccountInfo is the view of an account a program sees while it executes.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	RentEpoch  uint64
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo builds an AccountInfo from a stored account. A nil
// account yields an empty system-owned account.
func NewAccountInfo(pubkey types.Pubkey, account *types.Account, signer, writable bool) *AccountInfo {
	if account == nil {
		account = types.NewAccount(0, types.SystemProgramID)
	}
	lamports := uint64(account.Lamports)
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   &lamports,
		Owner:      account.Owner,
		Executable: account.Executable,
		RentEpoch:  uint64(account.RentEpoch),
		IsSigner:   signer,
		IsWritable: writable,
	}
	if len(account.Data) > 0 {
		info.Data = make([]byte, len(account.Data))
		copy(info.Data, account.Data)
	}
	return info
}

// Clone creates a deep copy of AccountInfo.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	lamports := *a.Lamports
	clone := &AccountInfo{
		Pubkey:     a.Pubkey,
		Lamports:   &lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
		IsSigner:   a.IsSigner,
		IsWritable: a.IsWritable,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// ToAccount converts the info back to a storable account.
func (a *AccountInfo) ToAccount() *types.Account {
	acct := &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  types.Epoch(a.RentEpoch),
	}
	if len(a.Data) > 0 {
		acct.Data = make([]byte, len(a.Data))
		copy(acct.Data, a.Data)
	}
	return acct
}

// IsEmpty reports whether the account holds no lamports and no data.
func (a *AccountInfo) IsEmpty() bool {
	return *a.Lamports == 0 && len(a.Data) == 0
}

// Program is a natively executed program.
type Program interface {
	Execute(ctx *ExecutionContext, instruction *types.Instruction) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx *ExecutionContext, instruction *types.Instruction) error

func (f ProgramFunc) Execute(ctx *ExecutionContext, instruction *types.Instruction) error {
	return f(ctx, instruction)
}

// ProgramResolver looks up programs for cross-program invocation.
type ProgramResolver interface {
	GetProgram(id types.Pubkey) (Program, bool)
}

// ExecutionContext holds the state of one executing instruction. During a
// cross-program invocation the context is temporarily switched to the
// callee and restored afterwards.
type ExecutionContext struct {
	mu sync.RWMutex

	ProgramID       types.Pubkey
	Accounts        []*AccountInfo
	InstructionData []byte

	accountIndex map[types.Pubkey]int

	computeUnits    uint64
	maxComputeUnits uint64

	logs []string

	Depth       int
	CallerStack []types.Pubkey

	Slot types.Slot

	programs ProgramResolver
}

// NewExecutionContext creates a new execution context.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		computeUnits:    computeUnits,
		maxComputeUnits: computeUnits,
		logs:            make([]string, 0, 8),
	}
	ctx.reindex()
	return ctx
}

func (ctx *ExecutionContext) reindex() {
	ctx.accountIndex = make(map[types.Pubkey]int, len(ctx.Accounts))
	for i, acc := range ctx.Accounts {
		if _, dup := ctx.accountIndex[acc.Pubkey]; !dup {
			ctx.accountIndex[acc.Pubkey] = i
		}
	}
}

// SetProgramResolver installs the lookup used by Invoke and InvokeSigned.
func (ctx *ExecutionContext) SetProgramResolver(r ProgramResolver) {
	ctx.programs = r
}

// ConsumeComputeUnits deducts compute units.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if units > ctx.computeUnits {
		ctx.computeUnits = 0
		return ErrComputeExhausted
	}
	ctx.computeUnits -= units
	return nil
}

// ComputeUnitsConsumed returns consumed compute units.
func (ctx *ExecutionContext) ComputeUnitsConsumed() uint64 {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.maxComputeUnits - ctx.computeUnits
}

// AddLog appends a program log line. Lines past the limit are dropped.
func (ctx *ExecutionContext) AddLog(message string) error {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if len(ctx.logs) >= MaxLogMessages {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		message = message[:MaxLogMessageLength]
	}
	ctx.logs = append(ctx.logs, message)
	return nil
}

// Logf writes a "Program log:" line.
func (ctx *ExecutionContext) Logf(format string, args ...any) {
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// Logs returns a copy of all log messages.
func (ctx *ExecutionContext) Logs() []string {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	logs := make([]string, len(ctx.logs))
	copy(logs, ctx.logs)
	return logs
}

// GetAccount returns an account by pubkey.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	idx, ok := ctx.accountIndex[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns an account by index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

// AccountCount returns the number of accounts.
func (ctx *ExecutionContext) AccountCount() int {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return len(ctx.Accounts)
}

// ResizeAccountData grows or shrinks a writable account's data, zero-filling new bytes.
func (ctx *ExecutionContext) ResizeAccountData(acc *AccountInfo, newSize int) error {
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, acc.Pubkey)
	}
	if newSize > MaxAccountDataSize {
		return fmt.Errorf("%w: %d exceeds %d", ErrAccountDataTooLarge, newSize, MaxAccountDataSize)
	}
	data := make([]byte, newSize)
	copy(data, acc.Data)
	acc.Data = data
	return nil
}

// IsTopLevel returns true if this is not a cross-program invocation.
func (ctx *ExecutionContext) IsTopLevel() bool {
	return ctx.Depth == 0
}
