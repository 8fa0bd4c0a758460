package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/oyster/internal/id"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Ledger is the part of the ledger engine the creation workflow drives.
type Ledger interface {
	DeployRightsLedger(call ledger.Call, p ledger.RightsParams) (ledger.Receipt, error)
	AssignRights(call ledger.Call, ledgerAddr, holder types.Address, pct uint64) (ledger.Receipt, error)
	SealRights(call ledger.Call, ledgerAddr types.Address) (ledger.Receipt, error)
	Validate(call ledger.Call, ledgerAddr types.Address) (ledger.Receipt, error)
	Authorize(call ledger.Call, addr types.Address, allowed bool) (ledger.Receipt, error)
}

// ErrInvalidRequest is returned for malformed creation requests.
var ErrInvalidRequest = errors.New("invalid asset request")

// IncompleteError reports a creation that failed after its rights ledger
// was deployed. The ledger and the steps before Step stay committed; no
// asset record exists for it.
type IncompleteError struct {
	Ledger types.Address
	Step   string
	Err    error
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("catalog: %s ledger %s: %v", e.Step, e.Ledger, e.Err)
}

func (e *IncompleteError) Unwrap() error { return e.Err }

// Share is an initial assignment of rights.
type Share struct {
	Holder types.Address `json:"holder"`
	Pct    uint64        `json:"pct"`
}

// CreateRequest describes a new asset. Producer becomes the owner of the
// asset's rights ledger.
type CreateRequest struct {
	CallID   id.ID               `json:"call_id,omitempty"` // used for the deploy step
	Producer types.Address       `json:"producer"`
	Title    string              `json:"title"`
	Artist   string              `json:"artist"`
	Metadata map[string]string   `json:"metadata,omitempty"`
	Duration uint32              `json:"duration"`
	Rights   ledger.RightsParams `json:"rights"`
	Shares   []Share             `json:"shares,omitempty"`
	Seal     bool                `json:"seal,omitempty"`
}

// Validate checks the request fields that do not depend on ledger state.
func (r *CreateRequest) Validate() error {
	if r.Producer.IsZero() {
		return fmt.Errorf("%w: producer is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidRequest)
	}
	var total uint64
	for _, s := range r.Shares {
		if s.Holder.IsZero() || s.Pct == 0 || s.Pct > ledger.FullShare {
			return fmt.Errorf("%w: invalid share %s:%d", ErrInvalidRequest, s.Holder, s.Pct)
		}
		if total > ledger.FullShare-s.Pct {
			return fmt.Errorf("%w: shares total over %d%%", ErrInvalidRequest, ledger.FullShare)
		}
		total += s.Pct
	}
	if r.Seal && total != ledger.FullShare {
		return fmt.Errorf("%w: cannot seal with %d%% assigned", ErrInvalidRequest, total)
	}
	return nil
}

// Service creates assets and answers catalog queries.
type Service struct {
	ledger   Ledger
	store    *Store
	operator types.Address
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a service. operator owns the token ledger and the
// vault and signs the validate and authorize steps.
func NewService(l Ledger, store *Store, operator types.Address, logger zerolog.Logger) *Service {
	return &Service{ledger: l, store: store, operator: operator, now: time.Now, logger: logger}
}

// Create deploys a rights ledger for the asset, applies the requested
// shares, has the operator validate it with the token ledger and
// authorize it with the vault, and records the asset.
//
// The steps are separate ledger calls. A failure after the deploy returns
// an *IncompleteError naming the deployed ledger and the failed step; the
// ledger stays owned by the producer, who can finish it with direct calls.
func (s *Service) Create(req CreateRequest) (*Asset, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	producer := ledger.Call{Caller: req.Producer}
	operator := ledger.Call{Caller: s.operator}

	deploy := producer
	deploy.ID = req.CallID
	r, err := s.ledger.DeployRightsLedger(deploy, req.Rights)
	if err != nil {
		return nil, fmt.Errorf("catalog: deploy: %w", err)
	}
	addr := r.Address
	fail := func(step string, err error) (*Asset, error) {
		s.logger.Warn().Err(err).Str("ledger", addr.String()).Str("step", step).Msg("Asset creation incomplete")
		return nil, &IncompleteError{Ledger: addr, Step: step, Err: err}
	}

	for _, sh := range req.Shares {
		if _, err := s.ledger.AssignRights(producer, addr, sh.Holder, sh.Pct); err != nil {
			return fail("assign", err)
		}
	}
	if req.Seal {
		if _, err := s.ledger.SealRights(producer, addr); err != nil {
			return fail("seal", err)
		}
	}
	if _, err := s.ledger.Validate(operator, addr); err != nil {
		return fail("validate", err)
	}
	if _, err := s.ledger.Authorize(operator, addr, true); err != nil {
		return fail("authorize", err)
	}

	a := &Asset{
		ID:        id.NewAssetID(),
		Ledger:    addr,
		Title:     req.Title,
		Artist:    req.Artist,
		Producer:  req.Producer,
		Metadata:  req.Metadata,
		Duration:  req.Duration,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Put(a); err != nil {
		return fail("store", err)
	}
	s.logger.Info().
		Str("asset", a.ID.String()).
		Str("ledger", addr.String()).
		Str("title", a.Title).
		Msg("Asset created")
	return a, nil
}

// Get returns one asset.
func (s *Service) Get(assetID id.ID) (*Asset, error) { return s.store.Get(assetID) }

// ByLedger returns the asset settled by a rights ledger.
func (s *Service) ByLedger(addr types.Address) (*Asset, error) { return s.store.ByLedger(addr) }

// List returns every asset.
func (s *Service) List() ([]*Asset, error) { return s.store.List() }

// ByProducer returns a producer's assets.
func (s *Service) ByProducer(producer types.Address) ([]*Asset, error) {
	return s.store.ByProducer(producer)
}
