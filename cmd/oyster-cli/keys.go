package main

import (
	"flag"
	"fmt"

	"github.com/Klingon-tech/oyster/internal/keys"
)

// ── keys ────────────────────────────────────────────────────────────────

func (c *cli) cmdKeys(args []string) {
	if len(args) < 1 {
		fatal("Usage: oyster-cli keys <create|import|list|derive|remove> [flags]")
	}

	switch args[0] {
	case "create":
		c.cmdKeysCreate(args[1:])
	case "import":
		c.cmdKeysImport(args[1:])
	case "list":
		c.cmdKeysList(args[1:])
	case "derive":
		c.cmdKeysDerive(args[1:])
	case "remove":
		c.cmdKeysRemove(args[1:])
	default:
		fatal("Unknown keys command: %s\nUsage: oyster-cli keys <create|import|list|derive|remove> [flags]", args[0])
	}
}

func (c *cli) cmdKeysCreate(args []string) {
	fs := flag.NewFlagSet("keys create", flag.ExitOnError)
	name := fs.String("name", "", "Keyring name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: oyster-cli keys create --name <name>")
	}

	mnemonic, err := keys.NewMnemonic()
	if err != nil {
		fatal("generate mnemonic: %v", err)
	}

	fmt.Println("Mnemonic (write this down!):")
	fmt.Printf("  %s\n\n", mnemonic)

	c.createKeyring(*name, mnemonic)
}

func (c *cli) cmdKeysImport(args []string) {
	fs := flag.NewFlagSet("keys import", flag.ExitOnError)
	name := fs.String("name", "", "Keyring name")
	mnemonic := fs.String("mnemonic", "", "BIP-39 mnemonic")
	fs.Parse(args)

	if *name == "" || *mnemonic == "" {
		fatal("Usage: oyster-cli keys import --name <name> --mnemonic \"word1 word2 ...\"")
	}
	if !keys.ValidMnemonic(*mnemonic) {
		fatal("invalid mnemonic")
	}

	c.createKeyring(*name, *mnemonic)
}

func (c *cli) createKeyring(name, mnemonic string) {
	password := newPassword()

	seed, err := keys.Seed(mnemonic, "")
	if err != nil {
		fatal("derive seed: %v", err)
	}
	ident, err := c.keyStore().Create(name, seed, password)
	for i := range seed {
		seed[i] = 0
	}
	if err != nil {
		fatal("create keyring: %v", err)
	}

	fmt.Printf("Keyring created: %s\n", name)
	fmt.Printf("Address: %s\n", ident.Address)
}

func (c *cli) cmdKeysList(args []string) {
	fs := flag.NewFlagSet("keys list", flag.ExitOnError)
	name := fs.String("name", "", "Keyring name (lists its identities)")
	fs.Parse(args)

	store := c.keyStore()
	if *name == "" {
		names, err := store.Names()
		if err != nil {
			fatal("list keyrings: %v", err)
		}
		if len(names) == 0 {
			fmt.Println("No keyrings found.")
			return
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return
	}

	idents, err := store.Identities(*name)
	if err != nil {
		fatal("list identities: %v", err)
	}
	for _, id := range idents {
		fmt.Printf("  %-12s %s  (m/44'/7997'/%d'/0/%d)\n", id.Label, id.Address, id.Account, id.Index)
	}
}

func (c *cli) cmdKeysDerive(args []string) {
	fs := flag.NewFlagSet("keys derive", flag.ExitOnError)
	name := fs.String("name", "", "Keyring name")
	label := fs.String("label", "", "Identity label")
	fs.Parse(args)

	if *name == "" || *label == "" {
		fatal("Usage: oyster-cli keys derive --name <name> --label <label>")
	}

	pass, err := passphrase(fmt.Sprintf("Passphrase for keyring %q: ", *name))
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	ident, err := c.keyStore().Derive(*name, pass, *label)
	if err != nil {
		fatal("derive identity: %v", err)
	}

	fmt.Printf("Identity: %s\n", ident.Label)
	fmt.Printf("Address:  %s\n", ident.Address)
}

func (c *cli) cmdKeysRemove(args []string) {
	fs := flag.NewFlagSet("keys remove", flag.ExitOnError)
	name := fs.String("name", "", "Keyring name")
	fs.Parse(args)

	if *name == "" {
		fatal("Usage: oyster-cli keys remove --name <name>")
	}
	if err := c.keyStore().Remove(*name); err != nil {
		fatal("remove keyring: %v", err)
	}
	fmt.Printf("Keyring removed: %s\n", *name)
}

// newPassword prompts twice unless the passphrase comes from the
// environment.
func newPassword() []byte {
	password, err := passphrase("Enter passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	if _, fromEnv := lookupPassphraseEnv(); fromEnv {
		return password
	}
	confirm, err := readPassword("Confirm passphrase: ")
	if err != nil {
		fatal("read passphrase: %v", err)
	}
	if string(password) != string(confirm) {
		fatal("passphrases do not match")
	}
	return password
}
