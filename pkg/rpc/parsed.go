package rpc

import (
	"errors"
	"strconv"

	"github.com/orbit-cosmos/omerta-solana-spl/pkg/accounts"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/svm/programs/token"
	"github.com/orbit-cosmos/omerta-solana-spl/pkg/types"
)

// renderer turns stored accounts into RPC documents. It reads the store to
// resolve a token account's mint decimals.
type renderer struct {
	db accounts.AccountsDB
}

func (r renderer) account(acc *types.Account, opts AccountInfoOptions) (*AccountInfoResult, error) {
	if acc == nil {
		return nil, nil
	}
	res := &AccountInfoResult{
		Lamports:   uint64(acc.Lamports),
		Owner:      acc.Owner.String(),
		Executable: acc.Executable,
		RentEpoch:  uint64(acc.RentEpoch),
		Space:      uint64(len(acc.Data)),
	}
	if opts.Encoding == EncodingJSONParsed && opts.DataSlice == nil {
		if parsed, ok := r.parse(acc); ok {
			res.Data = parsed
			return res, nil
		}
	}
	data, err := EncodeAccountData(SliceData(acc.Data, opts.DataSlice), opts.Encoding)
	if err != nil {
		return nil, err
	}
	res.Data = data
	return res, nil
}

// parse renders token program accounts. Anything else is left to the
// binary encodings.
func (r renderer) parse(acc *types.Account) (map[string]interface{}, bool) {
	if acc.Owner != types.TokenProgramID {
		return nil, false
	}
	var parsed map[string]interface{}
	switch len(acc.Data) {
	case token.MintSize:
		mint, err := token.DeserializeMint(acc.Data)
		if err != nil || !mint.IsInitialized {
			return nil, false
		}
		parsed = map[string]interface{}{
			"type": "mint",
			"info": map[string]interface{}{
				"mintAuthority":   optionString(mint.MintAuthority),
				"supply":          strconv.FormatUint(mint.Supply, 10),
				"decimals":        mint.Decimals,
				"isInitialized":   mint.IsInitialized,
				"freezeAuthority": optionString(mint.FreezeAuthority),
			},
		}
	case token.TokenAccountSize:
		ta, err := token.DeserializeTokenAccount(acc.Data)
		if err != nil || !ta.IsInitialized() {
			return nil, false
		}
		mint, err := r.mint(ta.Mint)
		if err != nil {
			return nil, false
		}
		state := "initialized"
		if ta.IsFrozen() {
			state = "frozen"
		}
		info := map[string]interface{}{
			"mint":        ta.Mint.String(),
			"owner":       ta.Owner.String(),
			"tokenAmount": uiAmount(ta.Amount, mint.Decimals),
			"state":       state,
			"isNative":    ta.IsNative.IsSome,
		}
		if ta.Delegate.IsSome {
			info["delegate"] = ta.Delegate.Value.String()
			info["delegatedAmount"] = uiAmount(ta.DelegatedAmount, mint.Decimals)
		}
		parsed = map[string]interface{}{"type": "account", "info": info}
	default:
		return nil, false
	}
	return map[string]interface{}{
		"program": "spl-token",
		"parsed":  parsed,
		"space":   len(acc.Data),
	}, true
}

var errNotMint = errors.New("not a Token mint")

func (r renderer) mint(pk types.Pubkey) (*token.Mint, error) {
	acc, err := r.db.GetAccount(pk)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Owner != types.TokenProgramID || len(acc.Data) != token.MintSize {
		return nil, errNotMint
	}
	mint, err := token.DeserializeMint(acc.Data)
	if err != nil || !mint.IsInitialized {
		return nil, errNotMint
	}
	return mint, nil
}

func uiAmount(raw uint64, decimals uint8) UITokenAmount {
	d := token.UIAmount(raw, decimals)
	return UITokenAmount{
		Amount:         strconv.FormatUint(raw, 10),
		Decimals:       decimals,
		UIAmount:       d.InexactFloat64(),
		UIAmountString: d.String(),
	}
}

func optionString(o token.COption) interface{} {
	if !o.IsSome {
		return nil
	}
	return o.Value.String()
}
