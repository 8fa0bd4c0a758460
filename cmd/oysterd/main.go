// Oyster ledger node daemon.
//
// Usage:
//
//	oysterd [--datadir=... --keyring=...]  Run node
//	oysterd --help                         Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/node"
)

// passphraseEnv names the variable holding the operator keyring passphrase.
const passphraseEnv = "OYSTER_PASSPHRASE"

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	passphrase, err := operatorPassphrase(cfg.Node.Keyring)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	n, err := node.New(cfg, passphrase)
	for i := range passphrase {
		passphrase[i] = 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := n.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		n.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	n.Stop()
}

// operatorPassphrase reads the keyring passphrase from the environment, or
// prompts for it when stdin is a terminal.
func operatorPassphrase(keyring string) ([]byte, error) {
	if p, ok := os.LookupEnv(passphraseEnv); ok {
		return []byte(p), nil
	}
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not set and stdin is not a terminal", passphraseEnv)
	}
	fmt.Fprintf(os.Stderr, "Passphrase for keyring %q: ", keyring)
	p, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return p, nil
}
