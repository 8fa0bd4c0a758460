// oyster-cli is a command-line client for interacting with an oysterd node.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/keys"
	"github.com/Klingon-tech/oyster/internal/rpc"
	"github.com/Klingon-tech/oyster/internal/rpcclient"
	"github.com/Klingon-tech/oyster/pkg/crypto"
	"github.com/Klingon-tech/oyster/pkg/types"
)

// passphraseEnv names the variable holding the keyring passphrase.
const passphraseEnv = "OYSTER_PASSPHRASE"

// cli carries the global flags shared by every command.
type cli struct {
	client   *rpcclient.Client
	rpcURL   string
	dataDir  string
	keyring  string
	identity string
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	c := &cli{
		rpcURL:  "http://127.0.0.1:8645",
		dataDir: config.DefaultDataDir(),
		keyring: "operator",
	}

	// Scan for global flags before the subcommand.
	args := os.Args[1:]
	for len(args) > 0 {
		name, value, rest, ok := globalFlag(args)
		if !ok {
			break
		}
		switch name {
		case "rpc":
			c.rpcURL = value
		case "datadir":
			c.dataDir = value
		case "keyring":
			c.keyring = value
		case "identity":
			c.identity = value
		}
		args = rest
	}

	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	c.client = rpcclient.New(c.rpcURL)
	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		c.cmdStatus()
	case "keys":
		c.cmdKeys(cmdArgs)
	case "bootstrap":
		c.cmdBootstrap(cmdArgs)
	case "invariants":
		c.cmdInvariants()
	case "token":
		c.cmdToken(cmdArgs)
	case "vault":
		c.cmdVault(cmdArgs)
	case "rights":
		c.cmdRights(cmdArgs)
	case "catalog":
		c.cmdCatalog(cmdArgs)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

// globalFlag consumes one --name value or --name=value pair.
func globalFlag(args []string) (name, value string, rest []string, ok bool) {
	for _, n := range []string{"rpc", "datadir", "keyring", "identity"} {
		switch {
		case args[0] == "--"+n && len(args) > 1:
			return n, args[1], args[2:], true
		case strings.HasPrefix(args[0], "--"+n+"="):
			return n, args[0][len(n)+3:], args[1:], true
		}
	}
	return "", "", args, false
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: oyster-cli [global flags] <command> [flags]

Global flags:
  --rpc <url>         RPC endpoint (default: http://127.0.0.1:8645)
  --datadir <path>    Data directory holding keyrings (default: ~/.oyster)
  --keyring <name>    Keyring used to sign calls (default: operator)
  --identity <id>     Identity label or address (default: first identity)

Amounts:
  Currency values (--value) are decimal currency units, e.g. 0.25.
  Token amounts and percentages are integers.

Commands:
  status                          Show ledger status
  invariants                      Check ledger invariants on the node

  keys create --name <n>          Create a keyring with a new mnemonic
  keys import --name <n> --mnemonic "..."
                                  Import a keyring from a mnemonic
  keys list [--name <n>]          List keyrings, or identities of one keyring
  keys derive --name <n> --label <l>
                                  Derive the next identity
  keys remove --name <n>          Delete a keyring file

  bootstrap [--units-per-token n --service-fee n --lot-size n]
                                  Deploy the token ledger and vault

  token info                      Show token ledger details
  token balance <address>         Show token balance
  token quote <amount>            Price a token purchase
  token mint --amount <n>         Mint tokens into the vault (owner)
  token set-vault --vault <addr>  Bind the vault (owner)
  token validate --ledger <addr>  Validate a rights ledger (owner)

  vault info                      Show vault details
  vault authorized <address>      Check vault authorization
  vault authorize --address <a> [--revoke]
                                  Grant or revoke authorization (owner)
  vault send --to <a> --amount <n>
  vault receive --from <a> --amount <n>

  rights list                     List rights ledgers
  rights info <ledger>            Show a rights ledger
  rights holders <ledger>         List right holders
  rights share <ledger> <holder>  Show a holder's percentage
  rights tokens <ledger> <holder> Show tokens bought by a holder
  rights deploy --purchase-rate <n> --listen-rate <n>
  rights assign --ledger <a> --holder <a> --pct <n>
  rights withdraw --ledger <a> --holder <a> --pct <n>
  rights seal --ledger <a>
  rights buy-lot --ledger <a> --value <amt>
  rights buy --ledger <a> --amount <n> --value <amt>
  rights sell --ledger <a> --amount <n>
  rights pay-rights --ledger <a> --value <amt>
  rights pay-listen --ledger <a> --value <amt>

  catalog list                    List assets
  catalog get <asset id>          Show one asset
  catalog producer <address>      List assets by producer
  catalog ledger <address>        Show the asset of a rights ledger
  catalog create --title <t> [--artist a --duration s --purchase-rate n
                 --listen-rate n --share holder:pct ... --seal]
                                  Create an asset (signer is the producer)
`)
}

// ── status ──────────────────────────────────────────────────────────────

func (c *cli) cmdStatus() {
	var info rpc.LedgerInfoResult
	if err := c.client.Call("ledger_getInfo", nil, &info); err != nil {
		fatal("ledger_getInfo: %v", err)
	}

	fmt.Printf("Bootstrapped:   %v\n", info.Bootstrapped)
	if info.Token != nil {
		fmt.Printf("Token:          %s\n", info.Token.Address)
		fmt.Printf("Owner:          %s\n", info.Token.Owner)
		fmt.Printf("Total supply:   %d\n", info.Token.TotalSupply)
		fmt.Printf("Token price:    %s\n", config.FormatAmount(info.Token.UnitsPerToken))
		fmt.Printf("Service fee:    %s\n", config.FormatAmount(info.Token.ServiceFee))
		fmt.Printf("Lot size:       %d\n", info.Token.LotSize)
	}
	if info.Vault != nil {
		fmt.Printf("Vault:          %s (%d tokens)\n", info.Vault.Address, info.Vault.Balance)
	}
	fmt.Printf("Rights ledgers: %d\n", info.RightsLedgers)
	fmt.Printf("Pending events: %d\n", info.PendingEvents)
}

func (c *cli) cmdInvariants() {
	var res map[string]bool
	if err := c.client.Call("ledger_checkInvariants", nil, &res); err != nil {
		fatal("ledger_checkInvariants: %v", err)
	}
	fmt.Println("Ledger invariants hold.")
}

// ── signing ─────────────────────────────────────────────────────────────

func (c *cli) keyStore() *keys.Store {
	cfg := config.Default()
	cfg.DataDir = c.dataDir
	store, err := keys.NewStore(cfg.KeystoreDir(), keys.DefaultKDF())
	if err != nil {
		fatal("open keystore: %v", err)
	}
	return store
}

// signer unlocks the global keyring identity.
func (c *cli) signer() *crypto.PrivateKey {
	pass, err := passphrase(fmt.Sprintf("Passphrase for keyring %q: ", c.keyring))
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	key, err := c.keyStore().Signer(c.keyring, pass, c.identity)
	for i := range pass {
		pass[i] = 0
	}
	if err != nil {
		fatal("unlock keyring %q: %v", c.keyring, err)
	}
	return key
}

// send signs params with the global identity and prints the receipt.
func (c *cli) send(method string, params interface{}) *rpc.ReceiptResult {
	key := c.signer()
	defer key.Zero()
	r, err := c.client.Send(key, method, params)
	if err != nil {
		fatal("%s: %v", method, err)
	}
	printReceipt(r)
	return r
}

func printReceipt(r *rpc.ReceiptResult) {
	fmt.Printf("Call ID:  %s\n", r.CallID)
	if r.Address != "" {
		fmt.Printf("Address:  %s\n", r.Address)
	}
	if r.Refund > 0 {
		fmt.Printf("Refund:   %s\n", config.FormatAmount(r.Refund))
	}
	if r.Payout > 0 {
		fmt.Printf("Payout:   %s\n", config.FormatAmount(r.Payout))
	}
	if r.Event == nil {
		fmt.Println("Event:    none (no state change)")
		return
	}
	fmt.Printf("Event:    %s (seq %d)\n", r.Event.Kind, r.Event.Seq)
	roles := make([]string, 0, len(r.Event.Amounts))
	for role := range r.Event.Amounts {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		fmt.Printf("  %-10s %d\n", role+":", r.Event.Amounts[role])
	}
}

// ── Helpers ─────────────────────────────────────────────────────────────

func parseAddress(s, what string) types.Address {
	addr, err := types.ParseAddress(s)
	if err != nil {
		fatal("invalid %s %q: %v", what, s, err)
	}
	return addr
}

func parseValue(s string) uint64 {
	if s == "" {
		return 0
	}
	v, err := config.ParseAmount(s)
	if err != nil {
		fatal("%v", err)
	}
	return v
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal("encode: %v", err)
	}
	fmt.Println(string(data))
}

// passphrase reads from the environment or prompts on the terminal.
func passphrase(prompt string) ([]byte, error) {
	if p, ok := lookupPassphraseEnv(); ok {
		return []byte(p), nil
	}
	return readPassword(prompt)
}

func lookupPassphraseEnv() (string, bool) {
	return os.LookupEnv(passphraseEnv)
}

func readPassword(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return password, nil
}

// ── Error helper ────────────────────────────────────────────────────────

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
