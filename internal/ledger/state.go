package ledger

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// StatePrefix is the storage namespace of ledger state.
var StatePrefix = []byte("l/")

// Key layout inside StatePrefix.
var (
	keyMeta          = []byte("meta")
	prefixBalance    = []byte("b/") // b/<addr> -> uint64 big-endian
	prefixValidated  = []byte("v/") // v/<addr> -> 1
	prefixAuthorized = []byte("a/") // a/<addr> -> 1
	prefixRights     = []byte("r/") // r/<addr> -> rightsRecord JSON
	prefixCall       = []byte("c/") // c/<call id> -> event seq, 0 when none
)

type metaRecord struct {
	Nonce uint64       `json:"nonce"`
	Seq   uint64       `json:"seq"`
	Token *tokenRecord `json:"token,omitempty"`
	Vault *vaultRecord `json:"vault,omitempty"`
}

type tokenRecord struct {
	Address       types.Address `json:"address"`
	Owner         types.Address `json:"owner"`
	TotalSupply   uint64        `json:"total_supply"`
	UnitsPerToken uint64        `json:"units_per_token"`
	ServiceFee    uint64        `json:"service_fee"`
	LotSize       uint64        `json:"lot_size"`
	Vault         types.Address `json:"vault"`
}

type vaultRecord struct {
	Address types.Address `json:"address"`
	Owner   types.Address `json:"owner"`
}

type rightsRecord struct {
	Index             int                      `json:"index"`
	Address           types.Address            `json:"address"`
	Owner             types.Address            `json:"owner"`
	Sealed            bool                     `json:"sealed"`
	Remaining         uint64                   `json:"remaining"`
	Division          map[types.Address]uint64 `json:"division,omitempty"`
	Holders           []types.Address          `json:"holders,omitempty"`
	Tokens            map[types.Address]uint64 `json:"tokens,omitempty"`
	Currency          uint64                   `json:"currency"`
	RightPurchaseRate uint64                   `json:"right_purchase_rate"`
	ListenRate        uint64                   `json:"listen_rate"`
}

func addrKey(prefix []byte, a types.Address) []byte {
	k := make([]byte, 0, len(prefix)+types.AddressSize)
	k = append(k, prefix...)
	return append(k, a[:]...)
}

func keyAddr(prefix, key []byte) (types.Address, error) {
	var a types.Address
	if len(key) != len(prefix)+types.AddressSize {
		return a, fmt.Errorf("malformed key %x", key)
	}
	copy(a[:], key[len(prefix):])
	return a, nil
}

func callKey(callID id.ID) []byte {
	return append(append([]byte(nil), prefixCall...), callID.String()...)
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func (e *Engine) metaRecord() metaRecord {
	m := metaRecord{Nonce: e.nonce, Seq: e.seq}
	if e.token != nil {
		t := e.token
		m.Token = &tokenRecord{
			Address:       t.address,
			Owner:         t.owner,
			TotalSupply:   t.totalSupply,
			UnitsPerToken: t.unitsPerToken,
			ServiceFee:    t.serviceFee,
			LotSize:       t.lotSize,
			Vault:         t.vault,
		}
		m.Vault = &vaultRecord{Address: e.vault.address, Owner: e.vault.owner}
	}
	return m
}

func (r *RightsLedger) record() rightsRecord {
	return rightsRecord{
		Index:             r.index,
		Address:           r.address,
		Owner:             r.owner,
		Sealed:            r.sealed,
		Remaining:         r.remaining,
		Division:          r.division,
		Holders:           r.holders,
		Tokens:            r.tokens,
		Currency:          r.currency,
		RightPurchaseRate: r.rightPurchaseRate,
		ListenRate:        r.listenRate,
	}
}

// commit writes everything tx touched, its event and its call marker in
// one batch.
func (e *Engine) commit(tx *txn) error {
	b := e.batcher.NewBatch()
	sb := e.state.Wrap(b)

	if tx.meta {
		data, err := json.Marshal(e.metaRecord())
		if err != nil {
			return fmt.Errorf("marshal meta: %w", err)
		}
		if err := sb.Put(keyMeta, data); err != nil {
			return err
		}
	}
	for a := range tx.balances {
		var err error
		if v := e.token.balances[a]; v == 0 {
			err = sb.Delete(addrKey(prefixBalance, a))
		} else {
			err = sb.Put(addrKey(prefixBalance, a), encodeUint64(v))
		}
		if err != nil {
			return err
		}
	}
	if err := putFlags(sb, prefixValidated, tx.validated, e.token.validatedSet()); err != nil {
		return err
	}
	if err := putFlags(sb, prefixAuthorized, tx.authorized, e.vault.authorizedSet()); err != nil {
		return err
	}
	for a := range tx.rights {
		data, err := json.Marshal(e.ledgers[a].record())
		if err != nil {
			return fmt.Errorf("marshal ledger %s: %w", a, err)
		}
		if err := sb.Put(addrKey(prefixRights, a), data); err != nil {
			return err
		}
	}

	var seq uint64
	if tx.event != nil {
		seq = tx.event.Seq
		if err := e.outbox.Stage(b, tx.event); err != nil {
			return err
		}
	}
	if err := sb.Put(callKey(tx.call.ID), encodeUint64(seq)); err != nil {
		return err
	}
	return b.Commit()
}

func putFlags(b storage.Batch, prefix []byte, touched map[types.Address]struct{}, current map[types.Address]bool) error {
	for a := range touched {
		var err error
		if current[a] {
			err = b.Put(addrKey(prefix, a), []byte{1})
		} else {
			err = b.Delete(addrKey(prefix, a))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *TokenLedger) validatedSet() map[types.Address]bool {
	if t == nil {
		return nil
	}
	return t.validated
}

func (v *Vault) authorizedSet() map[types.Address]bool {
	if v == nil {
		return nil
	}
	return v.authorized
}

// load rebuilds the domain from storage. An empty store leaves the engine
// un-bootstrapped.
func (e *Engine) load() error {
	data, err := e.state.Get(keyMeta)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load meta: %w", err)
	}
	var m metaRecord
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decode meta: %w", err)
	}
	e.nonce, e.seq = m.Nonce, m.Seq
	if m.Token == nil || m.Vault == nil {
		return nil
	}

	t := newTokenLedger(m.Token.Address, m.Token.Owner, Params{
		UnitsPerToken: m.Token.UnitsPerToken,
		ServiceFee:    m.Token.ServiceFee,
		LotSize:       m.Token.LotSize,
	})
	t.totalSupply = m.Token.TotalSupply
	t.vault = m.Token.Vault
	v := newVault(m.Vault.Address, m.Vault.Owner, t)
	e.token, e.vault = t, v
	e.contracts[t.address] = t
	e.contracts[v.address] = v

	err = e.state.ForEach(prefixBalance, func(key, value []byte) error {
		a, err := keyAddr(prefixBalance, key)
		if err != nil {
			return err
		}
		if len(value) != 8 {
			return fmt.Errorf("balance of %s: bad length %d", a, len(value))
		}
		t.balances[a] = binary.BigEndian.Uint64(value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load balances: %w", err)
	}
	if err := loadFlags(e.state, prefixValidated, t.validated); err != nil {
		return fmt.Errorf("load validated: %w", err)
	}
	if err := loadFlags(e.state, prefixAuthorized, v.authorized); err != nil {
		return fmt.Errorf("load authorized: %w", err)
	}

	var ledgers []*RightsLedger
	err = e.state.ForEach(prefixRights, func(_, value []byte) error {
		var rec rightsRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		r := newRightsLedger(rec.Address, rec.Owner, RightsParams{
			RightPurchaseRate: rec.RightPurchaseRate,
			ListenRate:        rec.ListenRate,
		}, t, v)
		r.index = rec.Index
		r.sealed = rec.Sealed
		r.remaining = rec.Remaining
		r.holders = rec.Holders
		r.currency = rec.Currency
		for k, n := range rec.Division {
			r.division[k] = n
		}
		for k, n := range rec.Tokens {
			r.tokens[k] = n
		}
		ledgers = append(ledgers, r)
		return nil
	})
	if err != nil {
		return fmt.Errorf("load rights ledgers: %w", err)
	}
	sort.Slice(ledgers, func(i, j int) bool { return ledgers[i].index < ledgers[j].index })
	for _, r := range ledgers {
		e.contracts[r.address] = r
		e.ledgers[r.address] = r
		e.order = append(e.order, r.address)
	}
	return nil
}

func loadFlags(db storage.DB, prefix []byte, into map[types.Address]bool) error {
	return db.ForEach(prefix, func(key, _ []byte) error {
		a, err := keyAddr(prefix, key)
		if err != nil {
			return err
		}
		into[a] = true
		return nil
	})
}
