package token

import (
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// accountAt fetches account i and checks its privileges.
func accountAt(ctx *syscall.ExecutionContext, i int, name string, writable, signer bool) (*syscall.AccountInfo, error) {
	acc, err := ctx.GetAccountByIndex(i)
	if err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidNumberOfAccounts, name)
	}
	if writable && !acc.IsWritable {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotWritable, name)
	}
	if signer && !acc.IsSigner {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotSigner, name)
	}
	return acc, nil
}

func loadMint(acc *syscall.AccountInfo) (*Mint, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: mint %s", ErrInvalidAccountOwner, acc.Pubkey)
	}
	mint, err := DeserializeMint(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("mint: %w", ErrNotInitialized)
	}
	return mint, nil
}

func loadTokenAccount(acc *syscall.AccountInfo, name string) (*TokenAccount, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidAccountOwner, name, acc.Pubkey)
	}
	ta, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if !ta.IsInitialized() {
		return nil, fmt.Errorf("%s: %w", name, ErrNotInitialized)
	}
	return ta, nil
}

func checkRentExempt(acc *syscall.AccountInfo) error {
	need := types.RentExemptMinimum(uint64(len(acc.Data)))
	if types.Lamports(*acc.Lamports) < need {
		return fmt.Errorf("%w: have %d, need %d", ErrNotRentExempt, *acc.Lamports, need)
	}
	return nil
}

// spendAuthority resolves whether authority may move amount out of src and
// whether it does so as delegate.
func spendAuthority(src *TokenAccount, authority types.Pubkey, amount uint64) (bool, error) {
	if src.Owner == authority {
		if src.Amount < amount {
			return false, fmt.Errorf("%w: balance %d, need %d", ErrInsufficientFunds, src.Amount, amount)
		}
		return false, nil
	}
	if src.Delegate.Is(authority) {
		if src.DelegatedAmount < amount || src.Amount < amount {
			return true, fmt.Errorf("%w: delegated %d, balance %d, need %d",
				ErrInsufficientFunds, src.DelegatedAmount, src.Amount, amount)
		}
		return true, nil
	}
	return false, ErrOwnerMismatch
}

func consumeDelegation(src *TokenAccount, amount uint64) {
	src.DelegatedAmount -= amount
	if src.DelegatedAmount == 0 {
		src.Delegate = COption{}
	}
}

// handleInitializeMint2
//
//	[0] mint (writable)
func handleInitializeMint2(ctx *syscall.ExecutionContext, inst *InitializeMint2Instruction) error {
	mintAcc, err := accountAt(ctx, 0, "mint", true, false)
	if err != nil {
		return err
	}
	if mintAcc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: mint %s", ErrInvalidAccountOwner, mintAcc.Pubkey)
	}
	existing, err := DeserializeMint(mintAcc.Data)
	if err != nil {
		return fmt.Errorf("mint: %w", err)
	}
	if existing.IsInitialized {
		return fmt.Errorf("mint: %w", ErrAlreadyInitialized)
	}
	if err := checkRentExempt(mintAcc); err != nil {
		return err
	}

	mint := NewMint(inst.Decimals, inst.MintAuthority, inst.FreezeAuthority)
	copy(mintAcc.Data, mint.Serialize())
	return nil
}

// handleInitializeAccount3
//
//	[0] account (writable)
//	[1] mint
func handleInitializeAccount3(ctx *syscall.ExecutionContext, owner types.Pubkey) error {
	acc, err := accountAt(ctx, 0, "account", true, false)
	if err != nil {
		return err
	}
	mintAcc, err := accountAt(ctx, 1, "mint", false, false)
	if err != nil {
		return err
	}
	if acc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: account %s", ErrInvalidAccountOwner, acc.Pubkey)
	}
	existing, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	if existing.IsInitialized() {
		return fmt.Errorf("account: %w", ErrAlreadyInitialized)
	}
	if err := checkRentExempt(acc); err != nil {
		return err
	}
	if _, err := loadMint(mintAcc); err != nil {
		return err
	}

	copy(acc.Data, NewTokenAccount(mintAcc.Pubkey, owner).Serialize())
	return nil
}

// handleTransfer
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] authority (signer): owner or delegate of source
func handleTransfer(ctx *syscall.ExecutionContext, amount uint64) error {
	srcAcc, err := accountAt(ctx, 0, "source", true, false)
	if err != nil {
		return err
	}
	dstAcc, err := accountAt(ctx, 1, "destination", true, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 2, "authority", false, true)
	if err != nil {
		return err
	}

	src, err := loadTokenAccount(srcAcc, "source")
	if err != nil {
		return err
	}
	dst, err := loadTokenAccount(dstAcc, "destination")
	if err != nil {
		return err
	}
	if src.IsFrozen() || dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Mint != dst.Mint {
		return ErrMintMismatch
	}

	viaDelegate, err := spendAuthority(src, authAcc.Pubkey, amount)
	if err != nil {
		return err
	}

	// Self-transfer only validates.
	if srcAcc.Pubkey == dstAcc.Pubkey {
		return nil
	}
	if dst.Amount > ^uint64(0)-amount {
		return ErrOverflow
	}

	src.Amount -= amount
	dst.Amount += amount
	if viaDelegate {
		consumeDelegation(src, amount)
	}

	copy(srcAcc.Data, src.Serialize())
	copy(dstAcc.Data, dst.Serialize())
	return nil
}

// handleApprove replaces any existing delegation.
//
//	[0] source (writable)
//	[1] delegate
//	[2] owner (signer)
func handleApprove(ctx *syscall.ExecutionContext, amount uint64) error {
	srcAcc, err := accountAt(ctx, 0, "source", true, false)
	if err != nil {
		return err
	}
	delegateAcc, err := accountAt(ctx, 1, "delegate", false, false)
	if err != nil {
		return err
	}
	ownerAcc, err := accountAt(ctx, 2, "owner", false, true)
	if err != nil {
		return err
	}

	src, err := loadTokenAccount(srcAcc, "source")
	if err != nil {
		return err
	}
	if src.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Owner != ownerAcc.Pubkey {
		return ErrOwnerMismatch
	}

	src.Delegate = Some(delegateAcc.Pubkey)
	src.DelegatedAmount = amount
	copy(srcAcc.Data, src.Serialize())
	return nil
}

// handleRevoke clears the delegation. Either the owner or the delegate may revoke.
//
//	[0] source (writable)
//	[1] owner or delegate (signer)
func handleRevoke(ctx *syscall.ExecutionContext) error {
	srcAcc, err := accountAt(ctx, 0, "source", true, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 1, "authority", false, true)
	if err != nil {
		return err
	}

	src, err := loadTokenAccount(srcAcc, "source")
	if err != nil {
		return err
	}
	if src.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Owner != authAcc.Pubkey && !src.Delegate.Is(authAcc.Pubkey) {
		return ErrOwnerMismatch
	}

	src.Delegate = COption{}
	src.DelegatedAmount = 0
	copy(srcAcc.Data, src.Serialize())
	return nil
}

// handleSetAuthority
//
//	[0] mint or token account (writable)
//	[1] current authority (signer)
func handleSetAuthority(ctx *syscall.ExecutionContext, inst *SetAuthorityInstruction) error {
	acc, err := accountAt(ctx, 0, "account", true, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 1, "current authority", false, true)
	if err != nil {
		return err
	}

	switch len(acc.Data) {
	case MintSize:
		mint, err := loadMint(acc)
		if err != nil {
			return err
		}
		var slot *COption
		switch inst.AuthorityType {
		case AuthorityMintTokens:
			if !mint.MintAuthority.IsSome {
				return ErrFixedSupply
			}
			slot = &mint.MintAuthority
		case AuthorityFreezeAccount:
			if !mint.FreezeAuthority.IsSome {
				return ErrMintCannotFreeze
			}
			slot = &mint.FreezeAuthority
		default:
			return fmt.Errorf("%w: %s on a mint", ErrAuthorityTypeNotSupported, inst.AuthorityType)
		}
		if slot.Value != authAcc.Pubkey {
			return ErrAuthorityMismatch
		}
		*slot = inst.NewAuthority
		copy(acc.Data, mint.Serialize())
		return nil

	case TokenAccountSize:
		ta, err := loadTokenAccount(acc, "account")
		if err != nil {
			return err
		}
		if ta.IsFrozen() {
			return ErrAccountFrozen
		}
		switch inst.AuthorityType {
		case AuthorityAccountOwner:
			if ta.Owner != authAcc.Pubkey {
				return ErrOwnerMismatch
			}
			if !inst.NewAuthority.IsSome {
				return fmt.Errorf("%w: owner cannot be removed", ErrInvalidInstruction)
			}
			ta.Owner = inst.NewAuthority.Value
			ta.Delegate = COption{}
			ta.DelegatedAmount = 0
		case AuthorityCloseAccount:
			closer := ta.Owner
			if ta.CloseAuthority.IsSome {
				closer = ta.CloseAuthority.Value
			}
			if closer != authAcc.Pubkey {
				return ErrOwnerMismatch
			}
			ta.CloseAuthority = inst.NewAuthority
		default:
			return fmt.Errorf("%w: %s on a token account", ErrAuthorityTypeNotSupported, inst.AuthorityType)
		}
		copy(acc.Data, ta.Serialize())
		return nil
	}

	return fmt.Errorf("%w: %d bytes", ErrInvalidAccountData, len(acc.Data))
}

// handleMintTo
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
func handleMintTo(ctx *syscall.ExecutionContext, amount uint64) error {
	mintAcc, err := accountAt(ctx, 0, "mint", true, false)
	if err != nil {
		return err
	}
	dstAcc, err := accountAt(ctx, 1, "destination", true, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 2, "mint authority", false, true)
	if err != nil {
		return err
	}

	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	dst, err := loadTokenAccount(dstAcc, "destination")
	if err != nil {
		return err
	}
	if dst.IsFrozen() {
		return ErrAccountFrozen
	}
	if dst.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	if !mint.MintAuthority.IsSome {
		return ErrFixedSupply
	}
	if mint.MintAuthority.Value != authAcc.Pubkey {
		return ErrAuthorityMismatch
	}
	if mint.Supply > ^uint64(0)-amount || dst.Amount > ^uint64(0)-amount {
		return ErrOverflow
	}

	mint.Supply += amount
	dst.Amount += amount
	copy(mintAcc.Data, mint.Serialize())
	copy(dstAcc.Data, dst.Serialize())
	return nil
}

// handleBurn
//
//	[0] source (writable)
//	[1] mint (writable)
//	[2] authority (signer): owner or delegate of source
func handleBurn(ctx *syscall.ExecutionContext, amount uint64) error {
	srcAcc, err := accountAt(ctx, 0, "source", true, false)
	if err != nil {
		return err
	}
	mintAcc, err := accountAt(ctx, 1, "mint", true, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 2, "authority", false, true)
	if err != nil {
		return err
	}

	src, err := loadTokenAccount(srcAcc, "source")
	if err != nil {
		return err
	}
	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	if src.IsFrozen() {
		return ErrAccountFrozen
	}
	if src.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}

	viaDelegate, err := spendAuthority(src, authAcc.Pubkey, amount)
	if err != nil {
		return err
	}
	if mint.Supply < amount {
		return ErrOverflow
	}

	src.Amount -= amount
	mint.Supply -= amount
	if viaDelegate {
		consumeDelegation(src, amount)
	}

	copy(srcAcc.Data, src.Serialize())
	copy(mintAcc.Data, mint.Serialize())
	return nil
}

// handleToggleFreeze freezes or thaws a token account.
//
//	[0] account (writable)
//	[1] mint
//	[2] freeze authority (signer)
func handleToggleFreeze(ctx *syscall.ExecutionContext, freeze bool) error {
	acc, err := accountAt(ctx, 0, "account", true, false)
	if err != nil {
		return err
	}
	mintAcc, err := accountAt(ctx, 1, "mint", false, false)
	if err != nil {
		return err
	}
	authAcc, err := accountAt(ctx, 2, "freeze authority", false, true)
	if err != nil {
		return err
	}

	ta, err := loadTokenAccount(acc, "account")
	if err != nil {
		return err
	}
	mint, err := loadMint(mintAcc)
	if err != nil {
		return err
	}
	if ta.Mint != mintAcc.Pubkey {
		return ErrMintMismatch
	}
	if !mint.FreezeAuthority.IsSome {
		return ErrMintCannotFreeze
	}
	if mint.FreezeAuthority.Value != authAcc.Pubkey {
		return ErrAuthorityMismatch
	}
	if ta.IsFrozen() == freeze {
		return fmt.Errorf("%w: frozen=%v", ErrInvalidState, ta.IsFrozen())
	}

	ta.State = AccountStateInitialized
	if freeze {
		ta.State = AccountStateFrozen
	}
	copy(acc.Data, ta.Serialize())
	return nil
}
