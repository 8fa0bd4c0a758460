package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/pkg/crypto"
)

// Envelope authenticates a mutating call. Every signed param type embeds
// it, so its fields sit next to the call's own arguments.
//
// The signature is a schnorr signature by PubKey over
// HashParts(method, canonical params), where the canonical params are the
// params object without its "signature" field, re-encoded with sorted
// keys. CallID is covered by the signature, so a replayed request fails
// with DuplicateCall.
type Envelope struct {
	CallID    string `json:"call_id"`
	PubKey    string `json:"pubkey"`
	Signature string `json:"signature,omitempty"`
	Value     uint64 `json:"value,omitempty"`
}

func (e *Envelope) envelope() *Envelope { return e }

// signed is implemented by every param type that embeds Envelope.
type signed interface {
	envelope() *Envelope
}

func decodeFields(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("params must be a JSON object: %w", err)
	}
	if fields == nil {
		return nil, errors.New("params must be a JSON object")
	}
	return fields, nil
}

func digestFields(method string, fields map[string]interface{}) ([]byte, error) {
	sig, had := fields["signature"]
	delete(fields, "signature")
	canon, err := json.Marshal(fields)
	if had {
		fields["signature"] = sig
	}
	if err != nil {
		return nil, fmt.Errorf("canonical params: %w", err)
	}
	return crypto.HashParts([]byte(method), canon).Bytes(), nil
}

// SigningDigest returns the digest a call's signature must cover.
func SigningDigest(method string, params []byte) ([]byte, error) {
	fields, err := decodeFields(params)
	if err != nil {
		return nil, err
	}
	return digestFields(method, fields)
}

// Sign fills in the envelope of params for key and returns the signed
// params object. A missing call_id is generated.
func Sign(key *crypto.PrivateKey, method string, params interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	if s, _ := fields["call_id"].(string); s == "" {
		fields["call_id"] = id.NewCallID().String()
	}
	fields["pubkey"] = hex.EncodeToString(key.PublicKey())
	digest, err := digestFields(method, fields)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(digest)
	if err != nil {
		return nil, err
	}
	fields["signature"] = hex.EncodeToString(sig)
	return json.Marshal(fields)
}

// authenticate verifies the envelope of a signed request and returns the
// ledger call it authorizes.
func authenticate(req *Request, env *Envelope) (ledger.Call, *Error) {
	pub, err := hex.DecodeString(env.PubKey)
	if err != nil || len(pub) != 33 {
		return ledger.Call{}, &Error{Code: CodeUnauthenticated, Message: "invalid pubkey: must be 33-byte compressed hex"}
	}
	sig, err := hex.DecodeString(env.Signature)
	if err != nil || len(sig) == 0 {
		return ledger.Call{}, &Error{Code: CodeUnauthenticated, Message: "missing or malformed signature"}
	}
	digest, err := SigningDigest(req.Method, req.Params)
	if err != nil {
		return ledger.Call{}, &Error{Code: CodeInvalidParams, Message: err.Error()}
	}
	if !crypto.VerifySignature(digest, sig, pub) {
		return ledger.Call{}, &Error{Code: CodeUnauthenticated, Message: "signature verification failed"}
	}
	if env.CallID == "" {
		return ledger.Call{}, &Error{Code: CodeInvalidParams, Message: "call_id is required"}
	}
	callID, err := id.ParseWithPrefix(env.CallID, id.PrefixCall)
	if err != nil {
		return ledger.Call{}, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid call_id: %v", err)}
	}
	return ledger.Call{
		ID:     callID,
		Caller: crypto.AddressFromPubKey(pub),
		Value:  env.Value,
	}, nil
}
