package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/oyster/internal/catalog"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/internal/rpc"
	"github.com/Klingon-tech/oyster/pkg/crypto"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// shareList collects repeated --share holder:pct flags.
type shareList []catalog.Share

func (s *shareList) String() string {
	parts := make([]string, len(*s))
	for i, sh := range *s {
		parts[i] = fmt.Sprintf("%s:%d", sh.Holder, sh.Pct)
	}
	return strings.Join(parts, ",")
}

func (s *shareList) Set(v string) error {
	holder, pct, ok := strings.Cut(v, ":")
	if !ok {
		return fmt.Errorf("want holder:pct, got %q", v)
	}
	n, err := strconv.ParseUint(pct, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid pct %q", pct)
	}
	addr, err := types.ParseAddress(holder)
	if err != nil {
		return err
	}
	*s = append(*s, catalog.Share{Holder: addr, Pct: n})
	return nil
}

// metadataMap collects repeated --meta key=value flags.
type metadataMap map[string]string

func (m metadataMap) String() string { return fmt.Sprint(map[string]string(m)) }

func (m metadataMap) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	m[k] = val
	return nil
}

// ── catalog ─────────────────────────────────────────────────────────────

func (c *cli) cmdCatalog(args []string) {
	if len(args) < 1 {
		fatal("Usage: oyster-cli catalog <list|get|producer|ledger|create> [flags]")
	}

	switch args[0] {
	case "list":
		var assets []catalog.Asset
		if err := c.client.Call("catalog_list", nil, &assets); err != nil {
			fatal("catalog_list: %v", err)
		}
		printAssets(assets)
	case "get":
		if len(args) < 2 {
			fatal("Usage: oyster-cli catalog get <asset id>")
		}
		var asset catalog.Asset
		if err := c.client.Call("catalog_get", rpc.IDParam{ID: args[1]}, &asset); err != nil {
			fatal("catalog_get: %v", err)
		}
		printJSON(asset)
	case "producer":
		if len(args) < 2 {
			fatal("Usage: oyster-cli catalog producer <address>")
		}
		var assets []catalog.Asset
		addr := parseAddress(args[1], "producer")
		if err := c.client.Call("catalog_byProducer", rpc.AddressParam{Address: addr}, &assets); err != nil {
			fatal("catalog_byProducer: %v", err)
		}
		printAssets(assets)
	case "ledger":
		if len(args) < 2 {
			fatal("Usage: oyster-cli catalog ledger <address>")
		}
		var asset catalog.Asset
		addr := parseAddress(args[1], "ledger")
		if err := c.client.Call("catalog_byLedger", rpc.AddressParam{Address: addr}, &asset); err != nil {
			fatal("catalog_byLedger: %v", err)
		}
		printJSON(asset)
	case "create":
		c.cmdCatalogCreate(args[1:])
	default:
		fatal("Unknown catalog command: %s", args[0])
	}
}

func (c *cli) cmdCatalogCreate(args []string) {
	fs := flag.NewFlagSet("catalog create", flag.ExitOnError)
	title := fs.String("title", "", "Asset title")
	artist := fs.String("artist", "", "Artist name")
	duration := fs.Uint("duration", 0, "Duration in seconds")
	purchase := fs.Uint64("purchase-rate", 0, "Right purchase fee in base units")
	listen := fs.Uint64("listen-rate", 0, "Listen fee in base units")
	seal := fs.Bool("seal", false, "Seal the rights after assigning shares")
	var shares shareList
	fs.Var(&shares, "share", "Rights share as holder:pct (repeatable)")
	meta := metadataMap{}
	fs.Var(meta, "meta", "Metadata as key=value (repeatable)")
	fs.Parse(args)

	if *title == "" {
		fatal("Usage: oyster-cli catalog create --title <t> [--artist a --duration s --purchase-rate n --listen-rate n --share holder:pct ... --seal]")
	}

	p := rpc.CreateAssetParam{
		Title:    *title,
		Artist:   *artist,
		Duration: uint32(*duration),
		Rights:   ledger.RightsParams{RightPurchaseRate: *purchase, ListenRate: *listen},
		Shares:   shares,
		Seal:     *seal,
	}
	if len(meta) > 0 {
		p.Metadata = meta
	}

	key := c.signer()
	defer key.Zero()
	asset := c.createAsset(key, p)

	fmt.Printf("Asset created!\n")
	fmt.Printf("  ID:     %s\n", asset.ID)
	fmt.Printf("  Ledger: %s\n", asset.Ledger)
	fmt.Printf("  Title:  %s\n", asset.Title)
}

// createAsset signs catalog_create. The result is an asset rather than a
// receipt, so it goes through Call with pre-signed params.
func (c *cli) createAsset(key *crypto.PrivateKey, p rpc.CreateAssetParam) *catalog.Asset {
	raw, err := rpc.Sign(key, "catalog_create", p)
	if err != nil {
		fatal("sign: %v", err)
	}
	var asset catalog.Asset
	if err := c.client.Call("catalog_create", raw, &asset); err != nil {
		fatal("catalog_create: %v", err)
	}
	return &asset
}

func printAssets(assets []catalog.Asset) {
	if len(assets) == 0 {
		fmt.Println("No assets found.")
		return
	}
	fmt.Printf("Assets: %d\n\n", len(assets))
	for i, a := range assets {
		fmt.Printf("  [%d] %s", i, a.Title)
		if a.Artist != "" {
			fmt.Printf(" by %s", a.Artist)
		}
		fmt.Println()
		fmt.Printf("      ID:       %s\n", a.ID)
		fmt.Printf("      Ledger:   %s\n", a.Ledger)
		fmt.Printf("      Producer: %s\n", a.Producer)
		fmt.Println()
	}
}
