package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/journal"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/metrics"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/metadata"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/syscall"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// Version is reported by getVersion.
const Version = "0.1.0"

// Handler is the function signature for RPC method handlers.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// SlotSource reports the slot of the last executed transaction.
type SlotSource interface {
	Slot() types.Slot
}

// Backend is what the handlers read from. Journal and Health are optional.
type Backend struct {
	Accounts accounts.AccountsDB
	Slots    SlotSource
	Journal  journal.Journal
	Health   *metrics.HealthChecker
}

// Handlers maps method names to their implementations.
type Handlers struct {
	backend  Backend
	render   renderer
	handlers map[string]Handler
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(backend Backend) *Handlers {
	h := &Handlers{
		backend:  backend,
		render:   renderer{db: backend.Accounts},
		handlers: make(map[string]Handler),
	}
	h.registerHandlers()
	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

func (h *Handlers) registerHandlers() {
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getTokenSupply"] = h.handleGetTokenSupply
	h.handlers["getTokenAccountBalance"] = h.handleGetTokenAccountBalance
	h.handlers["getTokenMetadata"] = h.handleGetTokenMetadata
	h.handlers["getSlot"] = h.handleGetSlot
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	h.handlers["getTransaction"] = h.handleGetTransaction
}

func (h *Handlers) context() Context {
	if h.backend.Slots == nil {
		return Context{}
	}
	return Context{Slot: uint64(h.backend.Slots.Slot())}
}

// positional splits params into at least min array elements.
func positional(params json.RawMessage, min int) ([]json.RawMessage, *RPCError) {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(raw) < min {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", min, len(raw)))
	}
	return raw, nil
}

func pubkeyParam(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, "invalid pubkey parameter")
	}
	pk, err := DecodePubkey(s)
	if err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey: %v", err))
	}
	return pk, nil
}

func accountOptions(raw []json.RawMessage) (AccountInfoOptions, *RPCError) {
	opts := AccountInfoOptions{Encoding: EncodingBase64}
	if len(raw) < 2 {
		return opts, nil
	}
	if err := json.Unmarshal(raw[1], &opts); err != nil {
		return opts, NewRPCError(InvalidParams, "invalid options")
	}
	if opts.Encoding == "" {
		opts.Encoding = EncodingBase64
	}
	if err := ValidateEncoding(opts.Encoding); err != nil {
		return opts, NewRPCError(UnsupportedEncoding, err.Error())
	}
	return opts, nil
}

func (h *Handlers) getAccount(pk types.Pubkey) (*types.Account, *RPCError) {
	acc, err := h.backend.Accounts.GetAccount(pk)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("failed to get account: %v", err))
	}
	return acc, nil
}

// handleGetAccountInfo handles the getAccountInfo RPC method.
// Params: [pubkey, {encoding, dataSlice}]
func (h *Handlers) handleGetAccountInfo(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pk, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	opts, rpcErr := accountOptions(raw)
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, rpcErr := h.getAccount(pk)
	if rpcErr != nil {
		return nil, rpcErr
	}
	res, err := h.render.account(acc, opts)
	if err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}
	if res == nil {
		return ContextualResult{Context: h.context(), Value: nil}, nil
	}
	return ContextualResult{Context: h.context(), Value: res}, nil
}

// handleGetBalance handles the getBalance RPC method.
// Params: [pubkey]
func (h *Handlers) handleGetBalance(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pk, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, rpcErr := h.getAccount(pk)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var balance uint64
	if acc != nil {
		balance = uint64(acc.Lamports)
	}
	return ContextualResult{Context: h.context(), Value: balance}, nil
}

// handleGetTokenSupply handles the getTokenSupply RPC method.
// Params: [mint]
func (h *Handlers) handleGetTokenSupply(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pk, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	mint, err := h.render.mint(pk)
	if err != nil {
		return nil, mintError(err)
	}
	return ContextualResult{Context: h.context(), Value: uiAmount(mint.Supply, mint.Decimals)}, nil
}

// handleGetTokenAccountBalance handles the getTokenAccountBalance RPC method.
// Params: [token account]
func (h *Handlers) handleGetTokenAccountBalance(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pk, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	acc, rpcErr := h.getAccount(pk)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if acc == nil || acc.Owner != types.TokenProgramID || len(acc.Data) != token.TokenAccountSize {
		return nil, NewRPCError(InvalidParams, "Invalid param: not a Token account")
	}
	ta, err := token.DeserializeTokenAccount(acc.Data)
	if err != nil || !ta.IsInitialized() {
		return nil, NewRPCError(InvalidParams, "Invalid param: not a Token account")
	}
	mint, err := h.render.mint(ta.Mint)
	if err != nil {
		return nil, mintError(err)
	}
	return ContextualResult{Context: h.context(), Value: uiAmount(ta.Amount, mint.Decimals)}, nil
}

func mintError(err error) *RPCError {
	if errors.Is(err, errNotMint) {
		return NewRPCError(InvalidParams, "Invalid param: not a Token mint")
	}
	return NewRPCError(InternalError, err.Error())
}

// handleGetTokenMetadata returns the metadata record of a mint, or null.
// Params: [mint]
func (h *Handlers) handleGetTokenMetadata(_ context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	mint, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, _, err := syscall.DeriveMetadataAddress(mint)
	if err != nil {
		return nil, NewRPCError(InternalError, err.Error())
	}
	acc, rpcErr := h.getAccount(addr)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if acc == nil || acc.Owner != types.MetadataProgramID {
		return ContextualResult{Context: h.context(), Value: nil}, nil
	}
	md, err := metadata.DeserializeMetadata(acc.Data)
	if err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("invalid metadata account: %v", err))
	}
	data := md.Data.Trimmed()
	return ContextualResult{Context: h.context(), Value: TokenMetadataResult{
		Mint:                 md.Mint.String(),
		UpdateAuthority:      md.UpdateAuthority.String(),
		Name:                 data.Name,
		Symbol:               data.Symbol,
		URI:                  data.URI,
		SellerFeeBasisPoints: data.SellerFeeBasisPoints,
		IsMutable:            md.IsMutable,
	}}, nil
}

// handleGetSlot handles the getSlot RPC method.
func (h *Handlers) handleGetSlot(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	return h.context().Slot, nil
}

// handleGetHealth reports "ok", or NodeUnhealthy with the failing checks.
func (h *Handlers) handleGetHealth(ctx context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	if h.backend.Health == nil {
		return "ok", nil
	}
	status := h.backend.Health.Check(ctx)
	if status.Healthy {
		return "ok", nil
	}
	failing := make(map[string]string)
	for name, c := range status.Checks {
		if !c.Healthy {
			failing[name] = c.Message
		}
	}
	return nil, NewRPCErrorWithData(NodeUnhealthy, "Node is unhealthy", failing)
}

// handleGetVersion handles the getVersion RPC method.
func (h *Handlers) handleGetVersion(_ context.Context, _ json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{Core: Version}, nil
}

// handleGetTransaction returns a journaled transaction, or null.
// Params: [signature]
func (h *Handlers) handleGetTransaction(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if h.backend.Journal == nil {
		return nil, NewRPCError(TransactionHistoryErr, "Transaction history is not available from this node")
	}
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid signature parameter")
	}
	sig, err := DecodeSignature(s)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid signature: %v", err))
	}
	entry, err := h.backend.Journal.Get(ctx, sig)
	if errors.Is(err, journal.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, NewRPCError(InternalError, err.Error())
	}
	return transactionResult(entry), nil
}

func transactionResult(e *journal.Entry) TransactionResult {
	res := TransactionResult{
		Slot:      uint64(e.Slot),
		BlockTime: e.ProcessedAt.Unix(),
		Signature: e.Signature.String(),
		FeePayer:  e.FeePayer.String(),
		Meta: TransactionMetaDoc{
			LogMessages:          e.Logs,
			ComputeUnitsConsumed: e.ComputeUnits,
			Accounts:             make([]string, len(e.Accounts)),
		},
	}
	if !e.Success {
		res.Meta.Err = e.Error
	}
	if res.Meta.LogMessages == nil {
		res.Meta.LogMessages = []string{}
	}
	for i, pk := range e.Accounts {
		res.Meta.Accounts[i] = pk.String()
	}
	return res
}
