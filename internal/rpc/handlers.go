package rpc

import (
	"fmt"

	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// signedCall parses p, authenticates its envelope and runs fn as the
// authenticated caller. p is filled before fn runs.
func (s *Server) signedCall(req *Request, p signed, fn func(call ledger.Call) (ledger.Receipt, error)) (interface{}, *Error) {
	if err := parseParams(req, p); err != nil {
		return nil, err
	}
	call, rpcErr := authenticate(req, p.envelope())
	if rpcErr != nil {
		return nil, rpcErr
	}
	r, err := fn(call)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return NewReceiptResult(r), nil
}

func (s *Server) addressParam(req *Request) (types.Address, *Error) {
	var p AddressParam
	if err := parseParams(req, &p); err != nil {
		return types.Address{}, err
	}
	if p.Address.IsZero() {
		return types.Address{}, &Error{Code: CodeInvalidParams, Message: "address is required"}
	}
	return p.Address, nil
}

func (s *Server) holderParam(req *Request) (HolderParam, *Error) {
	var p HolderParam
	if err := parseParams(req, &p); err != nil {
		return p, err
	}
	if p.Ledger.IsZero() || p.Holder.IsZero() {
		return p, &Error{Code: CodeInvalidParams, Message: "ledger and holder are required"}
	}
	return p, nil
}

// ── Ledger endpoints ────────────────────────────────────────────────────

func (s *Server) handleLedgerGetInfo(_ *Request) (interface{}, *Error) {
	res := &LedgerInfoResult{
		Bootstrapped:  s.engine.Bootstrapped(),
		RightsLedgers: len(s.engine.Ledgers()),
	}
	if res.Bootstrapped {
		ti, err := s.engine.TokenInfo()
		if err != nil {
			return nil, s.callError("ledger_getInfo", err)
		}
		vi, err := s.engine.VaultInfo()
		if err != nil {
			return nil, s.callError("ledger_getInfo", err)
		}
		res.Token, res.Vault = &ti, &vi
	}
	pending, err := s.engine.Outbox().Len()
	if err != nil {
		return nil, s.callError("ledger_getInfo", err)
	}
	res.PendingEvents = pending
	return res, nil
}

func (s *Server) handleLedgerBootstrap(req *Request) (interface{}, *Error) {
	var p BootstrapParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.Bootstrap(c, p.Params)
	})
}

func (s *Server) handleLedgerCheckInvariants(req *Request) (interface{}, *Error) {
	if err := s.engine.CheckInvariants(); err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("invariant violated: %v", err)}
	}
	return map[string]bool{"ok": true}, nil
}

// ── Token endpoints ─────────────────────────────────────────────────────

func (s *Server) handleTokenGetInfo(req *Request) (interface{}, *Error) {
	info, err := s.engine.TokenInfo()
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &info, nil
}

func (s *Server) handleTokenBalanceOf(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &BalanceResult{Address: addr.String(), Balance: s.engine.BalanceOf(addr)}, nil
}

func (s *Server) handleTokenTotalSupply(_ *Request) (interface{}, *Error) {
	return map[string]uint64{"total_supply": s.engine.TotalSupply()}, nil
}

func (s *Server) handleTokenIsValidated(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &FlagResult{Address: addr.String(), Value: s.engine.IsValidated(addr)}, nil
}

func (s *Server) handleTokenQuote(req *Request) (interface{}, *Error) {
	var p QuoteParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	required, fee, err := s.engine.Quote(p.Amount)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &QuoteResult{Amount: p.Amount, Required: required, Fee: fee}, nil
}

func (s *Server) handleTokenSetVault(req *Request) (interface{}, *Error) {
	var p TargetParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.SetVault(c, p.Address)
	})
}

func (s *Server) handleTokenMint(req *Request) (interface{}, *Error) {
	var p AmountParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.Mint(c, p.Amount)
	})
}

func (s *Server) handleTokenValidate(req *Request) (interface{}, *Error) {
	var p TargetParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.Validate(c, p.Address)
	})
}

// ── Vault endpoints ─────────────────────────────────────────────────────

func (s *Server) handleVaultGetInfo(req *Request) (interface{}, *Error) {
	info, err := s.engine.VaultInfo()
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &info, nil
}

func (s *Server) handleVaultIsAuthorized(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return &FlagResult{Address: addr.String(), Value: s.engine.IsAuthorized(addr)}, nil
}

func (s *Server) handleVaultAuthorize(req *Request) (interface{}, *Error) {
	var p AuthorizeParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.Authorize(c, p.Address, p.Allowed)
	})
}

func (s *Server) handleVaultSend(req *Request) (interface{}, *Error) {
	var p TransferParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.VaultSend(c, p.Account, p.Amount)
	})
}

func (s *Server) handleVaultReceive(req *Request) (interface{}, *Error) {
	var p TransferParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.VaultReceive(c, p.Account, p.Amount)
	})
}

// ── Rights endpoints ────────────────────────────────────────────────────

func (s *Server) handleRightsList(_ *Request) (interface{}, *Error) {
	addrs := s.engine.Ledgers()
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out, nil
}

func (s *Server) handleRightsGetInfo(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	info, err := s.engine.RightsInfo(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &info, nil
}

func (s *Server) handleRightsViewBalance(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	bal, err := s.engine.ViewBalance(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &BalanceResult{Address: addr.String(), Balance: bal}, nil
}

func (s *Server) handleRightsViewTokensPerAddress(req *Request) (interface{}, *Error) {
	p, rpcErr := s.holderParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := s.engine.ViewTokensPerAddress(p.Ledger, p.Holder)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &BalanceResult{Address: p.Holder.String(), Balance: n}, nil
}

func (s *Server) handleRightsViewRemaining(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	n, err := s.engine.ViewRemaining(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return map[string]uint64{"remaining": n}, nil
}

func (s *Server) handleRightsViewSealed(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	sealed, err := s.engine.ViewSealed(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return &FlagResult{Address: addr.String(), Value: sealed}, nil
}

func (s *Server) handleRightsViewShare(req *Request) (interface{}, *Error) {
	p, rpcErr := s.holderParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pct, err := s.engine.ViewShare(p.Ledger, p.Holder)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return map[string]uint64{"pct": pct}, nil
}

func (s *Server) handleRightsViewRightHolders(req *Request) (interface{}, *Error) {
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	holders, err := s.engine.ViewRightHolders(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	out := make([]string, len(holders))
	for i, h := range holders {
		out[i] = h.String()
	}
	return out, nil
}

func (s *Server) handleRightsDeploy(req *Request) (interface{}, *Error) {
	var p DeployParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.DeployRightsLedger(c, p.RightsParams)
	})
}

func (s *Server) handleRightsAssign(req *Request) (interface{}, *Error) {
	var p ShareParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.AssignRights(c, p.Ledger, p.Holder, p.Pct)
	})
}

func (s *Server) handleRightsWithdraw(req *Request) (interface{}, *Error) {
	var p ShareParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.WithdrawRights(c, p.Ledger, p.Holder, p.Pct)
	})
}

func (s *Server) handleRightsSeal(req *Request) (interface{}, *Error) {
	var p LedgerParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.SealRights(c, p.Ledger)
	})
}

func (s *Server) handleRightsBuyLot(req *Request) (interface{}, *Error) {
	var p LedgerParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.BuyLot(c, p.Ledger)
	})
}

func (s *Server) handleRightsBuyTokens(req *Request) (interface{}, *Error) {
	var p TradeParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.BuyTokens(c, p.Ledger, p.Amount)
	})
}

func (s *Server) handleRightsSellTokens(req *Request) (interface{}, *Error) {
	var p TradeParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.SellTokens(c, p.Ledger, p.Amount)
	})
}

func (s *Server) handleRightsPayRightsFee(req *Request) (interface{}, *Error) {
	var p LedgerParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.PayRightsFee(c, p.Ledger)
	})
}

func (s *Server) handleRightsPayListenFee(req *Request) (interface{}, *Error) {
	var p LedgerParam
	return s.signedCall(req, &p, func(c ledger.Call) (ledger.Receipt, error) {
		return s.engine.PayListenFee(c, p.Ledger)
	})
}

// ── Catalog endpoints ───────────────────────────────────────────────────

func (s *Server) requireCatalog() *Error {
	if s.catalog == nil {
		return &Error{Code: CodeNotFound, Message: "catalog not enabled"}
	}
	return nil
}

func (s *Server) handleCatalogCreate(req *Request) (interface{}, *Error) {
	if err := s.requireCatalog(); err != nil {
		return nil, err
	}
	var p CreateAssetParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	call, rpcErr := authenticate(req, &p.Envelope)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if call.Value != 0 {
		err := fmt.Errorf("%w: asset creation takes no payment, got %d", ledger.ErrIncorrectPayment, call.Value)
		return nil, s.callError(req.Method, err)
	}
	asset, err := s.catalog.Create(catalog.CreateRequest{
		CallID:   call.ID,
		Producer: call.Caller,
		Title:    p.Title,
		Artist:   p.Artist,
		Metadata: p.Metadata,
		Duration: p.Duration,
		Rights:   p.Rights,
		Shares:   p.Shares,
		Seal:     p.Seal,
	})
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return asset, nil
}

func (s *Server) handleCatalogList(req *Request) (interface{}, *Error) {
	if err := s.requireCatalog(); err != nil {
		return nil, err
	}
	assets, err := s.catalog.List()
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return assets, nil
}

func (s *Server) handleCatalogGet(req *Request) (interface{}, *Error) {
	if err := s.requireCatalog(); err != nil {
		return nil, err
	}
	var p IDParam
	if err := parseParams(req, &p); err != nil {
		return nil, err
	}
	assetID, perr := id.ParseWithPrefix(p.ID, id.PrefixAsset)
	if perr != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: perr.Error()}
	}
	asset, err := s.catalog.Get(assetID)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return asset, nil
}

func (s *Server) handleCatalogByProducer(req *Request) (interface{}, *Error) {
	if err := s.requireCatalog(); err != nil {
		return nil, err
	}
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	assets, err := s.catalog.ByProducer(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return assets, nil
}

func (s *Server) handleCatalogByLedger(req *Request) (interface{}, *Error) {
	if err := s.requireCatalog(); err != nil {
		return nil, err
	}
	addr, rpcErr := s.addressParam(req)
	if rpcErr != nil {
		return nil, rpcErr
	}
	asset, err := s.catalog.ByLedger(addr)
	if err != nil {
		return nil, s.callError(req.Method, err)
	}
	return asset, nil
}
