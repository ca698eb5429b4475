// Package rpc serves the ledger over JSON-RPC 2.0 and pushes account
// changes to websocket subscribers.
package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Node error codes, numbered as the Solana RPC numbers them.
	NodeUnhealthy         = -32005
	TransactionHistoryErr = -32008
	UnsupportedEncoding   = -32011
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// MarshalJSON keeps a null result on success; exactly one of result and
// error is present.
func (r RPCResponse) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string      `json:"jsonrpc"`
			Error   *RPCError   `json:"error"`
			ID      interface{} `json:"id"`
		}{r.JSONRPC, r.Error, r.ID})
	}
	return json.Marshal(struct {
		JSONRPC string      `json:"jsonrpc"`
		Result  interface{} `json:"result"`
		ID      interface{} `json:"id"`
	}{r.JSONRPC, r.Result, r.ID})
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// Context carries the slot a result was read at.
type Context struct {
	Slot uint64 `json:"slot"`
}

// ContextualResult wraps a result with context.
type ContextualResult struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfoResult represents an account in getAccountInfo and
// accountNotification. Data is either [data, encoding] or a parsed object.
type AccountInfoResult struct {
	Lamports   uint64      `json:"lamports"`
	Data       interface{} `json:"data"`
	Owner      string      `json:"owner"`
	Executable bool        `json:"executable"`
	RentEpoch  uint64      `json:"rentEpoch"`
	Space      uint64      `json:"space"`
}

// UITokenAmount is a raw token amount with its decimal rendering.
type UITokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       uint8   `json:"decimals"`
	UIAmount       float64 `json:"uiAmount"`
	UIAmountString string  `json:"uiAmountString"`
}

// TokenMetadataResult is the display record bound to a mint.
type TokenMetadataResult struct {
	Mint                 string `json:"mint"`
	UpdateAuthority      string `json:"updateAuthority"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	URI                  string `json:"uri"`
	SellerFeeBasisPoints uint16 `json:"sellerFeeBasisPoints"`
	IsMutable            bool   `json:"isMutable"`
}

// TransactionResult is a journaled transaction as returned by getTransaction.
type TransactionResult struct {
	Slot      uint64             `json:"slot"`
	BlockTime int64              `json:"blockTime"`
	Signature string             `json:"signature"`
	FeePayer  string             `json:"feePayer"`
	Meta      TransactionMetaDoc `json:"meta"`
}

// TransactionMetaDoc is the status portion of a journaled transaction.
type TransactionMetaDoc struct {
	Err                  interface{} `json:"err"`
	LogMessages          []string    `json:"logMessages"`
	ComputeUnitsConsumed uint64      `json:"computeUnitsConsumed"`
	Accounts             []string    `json:"accounts"`
}

// VersionResult represents the result of getVersion.
type VersionResult struct {
	Core       string `json:"omerta-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo
// and accountSubscribe.
type AccountInfoOptions struct {
	Encoding  string     `json:"encoding,omitempty"` // base58, base64, base64+zstd, jsonParsed
	DataSlice *DataSlice `json:"dataSlice,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}
