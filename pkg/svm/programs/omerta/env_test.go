package omerta

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/crypto"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/runtime"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

const walletLamports = 1_000_000_000

// env is a ledger with the program deployed behind a runtime executor.
type env struct {
	t     *testing.T
	db    *accounts.MemoryDB
	exec  *runtime.Executor
	prog  *Program
	addrs Addresses
	payer *crypto.Keypair
	nonce uint64
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	prog := New(cfg)
	addrs, err := DeriveAddresses(prog.ID())
	require.NoError(t, err)

	registry := runtime.NewProgramRegistry()
	runtime.RegisterBuiltins(registry)
	registry.RegisterProgramWithName(prog.ID(), "omerta", prog)

	e := &env{
		t:     t,
		db:    accounts.NewMemoryDB(),
		prog:  prog,
		addrs: addrs,
	}
	e.exec = runtime.NewExecutor(e.db, registry)
	e.payer = e.wallet(0xA0)
	return e
}

// wallet returns a funded keypair derived from b.
func (e *env) wallet(b byte) *crypto.Keypair {
	e.t.Helper()
	kp, err := crypto.KeypairFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(e.t, err)
	if !e.db.HasAccount(kp.Pubkey()) {
		require.NoError(e.t, e.db.SetAccount(kp.Pubkey(), types.NewAccount(walletLamports, types.SystemProgramID)))
	}
	return kp
}

// send signs and runs ixs; the first signer pays. Each call uses a fresh
// blockhash so identical instructions still get distinct signatures.
func (e *env) send(ix types.Instruction, signers ...*crypto.Keypair) *types.TransactionResult {
	e.t.Helper()
	e.nonce++
	var blockhash types.Hash
	binary.LittleEndian.PutUint64(blockhash[:], e.nonce)
	tx, err := crypto.NewSignedTransaction([]types.Instruction{ix}, blockhash, signers...)
	require.NoError(e.t, err)
	res, err := e.exec.ProcessTransaction(context.Background(), tx)
	require.NoError(e.t, err)
	return res
}

func (e *env) mustSend(ix types.Instruction, signers ...*crypto.Keypair) *types.TransactionResult {
	e.t.Helper()
	res := e.send(ix, signers...)
	require.True(e.t, res.Success, "transaction failed: %v\nlogs: %v", res.Error, res.Logs)
	return res
}

func (e *env) initialize(decimals uint8) {
	e.t.Helper()
	ix, err := NewInitializeInstruction(e.prog.ID(), e.payer.Pubkey(), InitTokenParams{
		Name: "Omerta", Symbol: "OMT", URI: "https://omerta.example/token.json", Decimals: decimals,
	})
	require.NoError(e.t, err)
	e.mustSend(ix, e.payer)
}

func (e *env) mintIx(owner, authority types.Pubkey, amount uint64) types.Instruction {
	e.t.Helper()
	ix, err := NewMintTokensInstruction(e.prog.ID(), e.payer.Pubkey(), owner, authority, amount)
	require.NoError(e.t, err)
	return ix
}

func (e *env) mintTo(owner types.Pubkey, amount uint64) *types.TransactionResult {
	e.t.Helper()
	return e.send(e.mintIx(owner, types.ZeroPubkey, amount), e.payer)
}

func (e *env) mint() *token.Mint {
	e.t.Helper()
	acc, err := e.db.GetAccount(e.addrs.Mint)
	require.NoError(e.t, err)
	require.NotNil(e.t, acc, "mint not created")
	mint, err := token.DeserializeMint(acc.Data)
	require.NoError(e.t, err)
	return mint
}

func (e *env) tokenAccount(owner types.Pubkey) *token.TokenAccount {
	e.t.Helper()
	ata, err := e.addrs.TokenAccount(owner)
	require.NoError(e.t, err)
	acc, err := e.db.GetAccount(ata)
	require.NoError(e.t, err)
	if acc == nil {
		return nil
	}
	ta, err := token.DeserializeTokenAccount(acc.Data)
	require.NoError(e.t, err)
	return ta
}

func (e *env) balance(owner types.Pubkey) uint64 {
	e.t.Helper()
	ta := e.tokenAccount(owner)
	if ta == nil {
		return 0
	}
	return ta.Amount
}

func (e *env) metadata() *metadata.Metadata {
	e.t.Helper()
	acc, err := e.db.GetAccount(e.addrs.Metadata)
	require.NoError(e.t, err)
	require.NotNil(e.t, acc, "metadata not created")
	record, err := metadata.DeserializeMetadata(acc.Data)
	require.NoError(e.t, err)
	return record
}

func (e *env) snapshot() []byte {
	e.t.Helper()
	var buf bytes.Buffer
	_, err := accounts.ExportSnapshot(e.db, &buf)
	require.NoError(e.t, err)
	return buf.Bytes()
}
