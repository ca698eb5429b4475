package syscall

import (
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// CPI errors
var (
	ErrCPIDepthExceeded        = errors.New("CPI depth exceeded")
	ErrCPIProgramNotExecutable = errors.New("program account is not executable")
	ErrCPIProgramNotProvided   = errors.New("program account not provided")
	ErrCPIUnknownProgram       = errors.New("no executor for program")
	ErrCPIWritablePrivilege    = errors.New("writable privilege escalation")
	ErrCPISignerPrivilege      = errors.New("signer privilege escalation")
	ErrCPIInvalidSignerSeeds   = errors.New("invalid signer seeds")
	ErrCPIReentrancy           = errors.New("program reentrancy not allowed")
)

// MaxCPIDepth is the deepest nesting of invocations below the top level.
const MaxCPIDepth = 4

// Invoke calls another program with the caller's privileges.
func (ctx *ExecutionContext) Invoke(ix types.Instruction) error {
	return ctx.InvokeSigned(ix)
}

// InvokeSigned calls another program. Each element of signerSeeds is a
// complete seed list (bump included); the address it derives under the
// calling program is granted signer privilege for this call only. Changes
// the callee makes to writable accounts are copied back into the caller's
// accounts when the callee succeeds.
func (ctx *ExecutionContext) InvokeSigned(ix types.Instruction, signerSeeds ...[][]byte) error {
	if ctx.Depth >= MaxCPIDepth {
		return ErrCPIDepthExceeded
	}
	if ix.ProgramID == ctx.ProgramID {
		return fmt.Errorf("%w: %s", ErrCPIReentrancy, ix.ProgramID)
	}
	for _, caller := range ctx.CallerStack {
		if caller == ix.ProgramID {
			return fmt.Errorf("%w: %s", ErrCPIReentrancy, ix.ProgramID)
		}
	}
	if err := ctx.ConsumeComputeUnits(uint64(types.ComputeUnitsPerCPI)); err != nil {
		return err
	}

	programAcc, err := ctx.GetAccount(ix.ProgramID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCPIProgramNotProvided, ix.ProgramID)
	}
	if !programAcc.Executable {
		return fmt.Errorf("%w: %s", ErrCPIProgramNotExecutable, ix.ProgramID)
	}
	if ctx.programs == nil {
		return fmt.Errorf("%w: %s", ErrCPIUnknownProgram, ix.ProgramID)
	}
	program, ok := ctx.programs.GetProgram(ix.ProgramID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCPIUnknownProgram, ix.ProgramID)
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		if err := ctx.ConsumeComputeUnits(CUCreatePDA); err != nil {
			return err
		}
		pda, err := CreateProgramAddress(seeds, ctx.ProgramID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCPIInvalidSignerSeeds, err)
		}
		pdaSigners[pda] = true
	}

	callee, err := ctx.calleeAccounts(ix.Accounts, pdaSigners)
	if err != nil {
		return err
	}

	callerProgram := ctx.ProgramID
	callerAccounts := ctx.Accounts
	callerIndex := ctx.accountIndex
	callerData := ctx.InstructionData

	ctx.CallerStack = append(ctx.CallerStack, callerProgram)
	ctx.Depth++
	ctx.ProgramID = ix.ProgramID
	ctx.Accounts = callee
	ctx.InstructionData = ix.Data
	ctx.reindex()

	_ = ctx.AddLog(fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, ctx.Depth+1))
	err = program.Execute(ctx, &ix)
	if err != nil {
		_ = ctx.AddLog(fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
	} else {
		_ = ctx.AddLog(fmt.Sprintf("Program %s success", ix.ProgramID))
	}

	ctx.ProgramID = callerProgram
	ctx.Accounts = callerAccounts
	ctx.accountIndex = callerIndex
	ctx.InstructionData = callerData
	ctx.CallerStack = ctx.CallerStack[:len(ctx.CallerStack)-1]
	ctx.Depth--

	if err != nil {
		return err
	}
	return ctx.propagate(callee)
}

// calleeAccounts builds the callee's account list. A key listed more than
// once maps to a single AccountInfo so the callee sees aliasing the same
// way the caller would.
func (ctx *ExecutionContext) calleeAccounts(metas []types.AccountMeta, pdaSigners map[types.Pubkey]bool) ([]*AccountInfo, error) {
	byKey := make(map[types.Pubkey]*AccountInfo, len(metas))
	out := make([]*AccountInfo, len(metas))
	for i, meta := range metas {
		callerAcc, err := ctx.GetAccount(meta.Pubkey)
		if err != nil {
			return nil, err
		}
		if meta.IsWritable && !callerAcc.IsWritable {
			return nil, fmt.Errorf("%w: %s", ErrCPIWritablePrivilege, meta.Pubkey)
		}
		if meta.IsSigner && !callerAcc.IsSigner && !pdaSigners[meta.Pubkey] {
			return nil, fmt.Errorf("%w: %s", ErrCPISignerPrivilege, meta.Pubkey)
		}

		acc, seen := byKey[meta.Pubkey]
		if !seen {
			acc = callerAcc.Clone()
			acc.IsSigner = false
			acc.IsWritable = false
			byKey[meta.Pubkey] = acc
		}
		acc.IsSigner = acc.IsSigner || meta.IsSigner
		acc.IsWritable = acc.IsWritable || meta.IsWritable
		out[i] = acc
	}
	return out, nil
}

// propagate copies writable callee state back to the caller. Read-only
// accounts must come back untouched.
func (ctx *ExecutionContext) propagate(callee []*AccountInfo) error {
	for _, acc := range callee {
		callerAcc, err := ctx.GetAccount(acc.Pubkey)
		if err != nil {
			return err
		}
		if !acc.IsWritable {
			if *acc.Lamports != *callerAcc.Lamports || acc.Owner != callerAcc.Owner ||
				string(acc.Data) != string(callerAcc.Data) {
				return fmt.Errorf("%w: %s", ErrReadOnlyModified, acc.Pubkey)
			}
			continue
		}
		*callerAcc.Lamports = *acc.Lamports
		callerAcc.Owner = acc.Owner
		if len(acc.Data) != len(callerAcc.Data) {
			callerAcc.Data = make([]byte, len(acc.Data))
		}
		copy(callerAcc.Data, acc.Data)
	}
	return nil
}
