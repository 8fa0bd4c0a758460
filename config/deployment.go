package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// Deployment defaults.
const (
	DefaultUnitsPerToken uint64 = 50000
	DefaultServiceFee    uint64 = 200000
	DefaultLotSize       uint64 = 100
)

// =============================================================================
// Deployment manifest (applied once, at bootstrap)
// =============================================================================

// Deployment is the ledger bootstrap manifest. It is read when a node starts
// on an unbootstrapped ledger and ignored afterwards.
type Deployment struct {
	// Owner must match the operator identity; empty means "the operator".
	Owner         string        `yaml:"owner"`
	UnitsPerToken uint64        `yaml:"units_per_token"`
	ServiceFee    uint64        `yaml:"service_fee"`
	LotSize       uint64        `yaml:"lot_size"`
	InitialMint   uint64        `yaml:"initial_mint"`
	Assets        []PresetAsset `yaml:"assets"`
}

// PresetAsset is a catalog entry created right after bootstrap, produced by
// the operator.
type PresetAsset struct {
	Title             string            `yaml:"title"`
	Artist            string            `yaml:"artist"`
	Duration          uint32            `yaml:"duration"`
	Metadata          map[string]string `yaml:"metadata"`
	RightPurchaseRate uint64            `yaml:"right_purchase_rate"`
	ListenRate        uint64            `yaml:"listen_rate"`
	Shares            []PresetShare     `yaml:"shares"`
	Seal              bool              `yaml:"seal"`
}

// PresetShare assigns a percentage of an asset's rights to a holder.
type PresetShare struct {
	Holder string `yaml:"holder"`
	Pct    uint64 `yaml:"pct"`
}

// DefaultDeployment returns the built-in manifest used when no file exists.
func DefaultDeployment() *Deployment {
	return &Deployment{
		UnitsPerToken: DefaultUnitsPerToken,
		ServiceFee:    DefaultServiceFee,
		LotSize:       DefaultLotSize,
	}
}

// LoadDeployment reads a YAML manifest. A missing file yields the defaults;
// fields left out of the file keep their default values.
func LoadDeployment(path string) (*Deployment, error) {
	d := DefaultDeployment()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, fmt.Errorf("read deployment: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, d); err != nil {
		return nil, fmt.Errorf("parse deployment %s: %w", path, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("deployment %s: %w", path, err)
	}
	return d, nil
}

// Params returns the ledger bootstrap parameters.
func (d *Deployment) Params() ledger.Params {
	return ledger.Params{
		UnitsPerToken: d.UnitsPerToken,
		ServiceFee:    d.ServiceFee,
		LotSize:       d.LotSize,
	}
}

// OwnerAddress parses the owner field. It returns the zero address when the
// field is empty.
func (d *Deployment) OwnerAddress() (types.Address, error) {
	if d.Owner == "" {
		return types.Address{}, nil
	}
	return types.ParseAddress(d.Owner)
}

// Validate checks the manifest without touching ledger state.
func (d *Deployment) Validate() error {
	if err := d.Params().Validate(); err != nil {
		return err
	}
	if _, err := d.OwnerAddress(); err != nil {
		return fmt.Errorf("owner: %w", err)
	}
	for i := range d.Assets {
		if _, err := d.Assets[i].Request(types.Address{}); err != nil {
			return fmt.Errorf("assets[%d]: %w", i, err)
		}
	}
	return nil
}

// Request converts the preset into a catalog request produced by producer.
// Fields are checked by the catalog; only holder addresses are parsed here.
func (a *PresetAsset) Request(producer types.Address) (*catalog.CreateRequest, error) {
	req := &catalog.CreateRequest{
		Producer: producer,
		Title:    a.Title,
		Artist:   a.Artist,
		Metadata: a.Metadata,
		Duration: a.Duration,
		Rights: ledger.RightsParams{
			RightPurchaseRate: a.RightPurchaseRate,
			ListenRate:        a.ListenRate,
		},
		Seal: a.Seal,
	}
	for _, s := range a.Shares {
		holder, err := types.ParseAddress(s.Holder)
		if err != nil {
			return nil, fmt.Errorf("share holder %q: %w", s.Holder, err)
		}
		req.Shares = append(req.Shares, catalog.Share{Holder: holder, Pct: s.Pct})
	}
	return req, nil
}
