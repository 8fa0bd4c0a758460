package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/keys"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/internal/storage"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// openStorage opens the configured backend.
func openStorage(cfg *config.Config) (storage.DB, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendBadger:
		dir := expandHome(cfg.LedgerDir())
		db, err := storage.NewBadger(dir)
		if err != nil {
			return nil, fmt.Errorf("open database at %s: %w", dir, err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

// loadOperator unlocks the operator keyring and returns its address. The
// private key is wiped before returning; the node acts as the operator
// in-process.
func loadOperator(cfg *config.Config, passphrase []byte) (types.Address, error) {
	store, err := keys.NewStore(expandHome(cfg.KeystoreDir()), keys.DefaultKDF())
	if err != nil {
		return types.Address{}, err
	}
	key, err := store.Signer(cfg.Node.Keyring, passphrase, cfg.Node.Identity)
	if err != nil {
		return types.Address{}, fmt.Errorf("keyring %q: %w", cfg.Node.Keyring, err)
	}
	defer key.Zero()
	return key.Address(), nil
}

// bootstrap applies the deployment manifest to an empty ledger. On a ledger
// that is already bootstrapped it only binds the vault when a previous run
// stopped before doing so.
func (n *Node) bootstrap() error {
	fresh := !n.engine.Bootstrapped()
	var d *config.Deployment
	if fresh {
		path := expandHome(n.cfg.DeploymentFile())
		var err error
		d, err = config.LoadDeployment(path)
		if err != nil {
			return err
		}
		owner, err := d.OwnerAddress()
		if err != nil {
			return err
		}
		if !owner.IsZero() && owner != n.operator {
			return fmt.Errorf("deployment owner %s is not the operator %s", owner, n.operator)
		}
		r, err := n.engine.Bootstrap(ledger.Call{Caller: n.operator}, d.Params())
		if err != nil {
			return err
		}
		n.logger.Info().
			Str("token", r.Address.String()).
			Uint64("units_per_token", d.UnitsPerToken).
			Uint64("service_fee", d.ServiceFee).
			Uint64("lot_size", d.LotSize).
			Msg("Ledger bootstrapped")
	}

	info, err := n.engine.TokenInfo()
	if err != nil {
		return err
	}
	if info.Owner != n.operator {
		return fmt.Errorf("ledger owner %s is not the operator %s", info.Owner, n.operator)
	}
	if info.Vault.IsZero() {
		v, err := n.engine.VaultInfo()
		if err != nil {
			return err
		}
		if _, err := n.engine.SetVault(ledger.Call{Caller: n.operator}, v.Address); err != nil {
			return fmt.Errorf("bind vault: %w", err)
		}
		n.logger.Info().Str("vault", v.Address.String()).Msg("Vault bound")
	}
	if !fresh {
		return nil
	}

	if d.InitialMint > 0 {
		if _, err := n.engine.Mint(ledger.Call{Caller: n.operator}, d.InitialMint); err != nil {
			return fmt.Errorf("initial mint: %w", err)
		}
		n.logger.Info().Uint64("tokens", d.InitialMint).Msg("Initial supply minted")
	}
	for i := range d.Assets {
		req, err := d.Assets[i].Request(n.operator)
		if err != nil {
			return fmt.Errorf("preset asset %d: %w", i, err)
		}
		if _, err := n.catalog.Create(*req); err != nil {
			return fmt.Errorf("preset asset %q: %w", d.Assets[i].Title, err)
		}
	}
	return nil
}
