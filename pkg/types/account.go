package types

// Account is the stored state of a single ledger address.
type Account struct {
	Lamports   Lamports
	Data       []byte
	Owner      Pubkey
	Executable bool
	RentEpoch  Epoch
}

// NewAccount creates an account with no data.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{Lamports: lamports, Owner: owner}
}

// Clone creates a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := &Account{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	}
	if a.Data != nil {
		clone.Data = make([]byte, len(a.Data))
		copy(clone.Data, a.Data)
	}
	return clone
}

// IsEmpty returns true if the account has zero lamports and no data.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Lamports == 0 && len(a.Data) == 0)
}

// Equal compares two accounts field by field.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Lamports != b.Lamports || a.Owner != b.Owner ||
		a.Executable != b.Executable || a.RentEpoch != b.RentEpoch ||
		len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// RentExemptMinimum returns the balance an account of dataSize bytes needs
// to be exempt from rent (mainnet parameters, two years of rent).
func RentExemptMinimum(dataSize uint64) Lamports {
	const (
		lamportsPerByteYear = 3480
		exemptionThreshold  = 2
		accountOverhead     = 128
	)
	return Lamports((dataSize + accountOverhead) * lamportsPerByteYear * exemptionThreshold)
}

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// NewAccountMeta is a shorthand for building instruction account lists.
func NewAccountMeta(pubkey Pubkey, writable, signer bool) AccountMeta {
	return AccountMeta{Pubkey: pubkey, IsSigner: signer, IsWritable: writable}
}

// AccountDelta records a committed change to an account.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account // nil if new account
	NewAccount *Account // nil if deleted
}

// IsCreation returns true if this is a new account.
func (d *AccountDelta) IsCreation() bool {
	return d.OldAccount == nil && d.NewAccount != nil
}

// IsDeletion returns true if this account was deleted.
func (d *AccountDelta) IsDeletion() bool {
	return d.OldAccount != nil && d.NewAccount == nil
}
