package main

import (
	"flag"
	"fmt"
	"strconv"

	"github.com/Klingon-tech/oyster/config"
	"github.com/Klingon-tech/oyster/internal/ledger"
	"github.com/Klingon-tech/oyster/internal/rpc"
)

// ── bootstrap ───────────────────────────────────────────────────────────

func (c *cli) cmdBootstrap(args []string) {
	fs := flag.NewFlagSet("bootstrap", flag.ExitOnError)
	units := fs.Uint64("units-per-token", config.DefaultUnitsPerToken, "Token price in currency base units")
	fee := fs.Uint64("service-fee", config.DefaultServiceFee, "Flat fee on lot purchases, in base units")
	lot := fs.Uint64("lot-size", config.DefaultLotSize, "Tokens per lot")
	fs.Parse(args)

	c.send("ledger_bootstrap", rpc.BootstrapParam{
		Params: ledger.Params{UnitsPerToken: *units, ServiceFee: *fee, LotSize: *lot},
	})
	fmt.Println("\nBind the vault with 'oyster-cli token set-vault --vault <addr>' (see 'oyster-cli status').")
}

// ── token ───────────────────────────────────────────────────────────────

func (c *cli) cmdToken(args []string) {
	if len(args) < 1 {
		fatal("Usage: oyster-cli token <info|balance|quote|mint|set-vault|validate> [flags]")
	}

	switch args[0] {
	case "info":
		var info ledger.TokenInfo
		if err := c.client.Call("token_getInfo", nil, &info); err != nil {
			fatal("token_getInfo: %v", err)
		}
		printJSON(info)
	case "balance":
		if len(args) < 2 {
			fatal("Usage: oyster-cli token balance <address>")
		}
		var res rpc.BalanceResult
		addr := parseAddress(args[1], "address")
		if err := c.client.Call("token_balanceOf", rpc.AddressParam{Address: addr}, &res); err != nil {
			fatal("token_balanceOf: %v", err)
		}
		fmt.Printf("Address: %s\n", res.Address)
		fmt.Printf("Tokens:  %d\n", res.Balance)
	case "quote":
		if len(args) < 2 {
			fatal("Usage: oyster-cli token quote <amount>")
		}
		amount := parseUint(args[1], "amount")
		var res rpc.QuoteResult
		if err := c.client.Call("token_quote", rpc.QuoteParam{Amount: amount}, &res); err != nil {
			fatal("token_quote: %v", err)
		}
		fmt.Printf("Tokens:   %d\n", res.Amount)
		fmt.Printf("Required: %s\n", config.FormatAmount(res.Required))
		if res.Fee > 0 {
			fmt.Printf("Fee:      %s (included)\n", config.FormatAmount(res.Fee))
		}
	case "mint":
		fs := flag.NewFlagSet("token mint", flag.ExitOnError)
		amount := fs.Uint64("amount", 0, "Tokens to mint into the vault")
		fs.Parse(args[1:])
		if *amount == 0 {
			fatal("Usage: oyster-cli token mint --amount <n>")
		}
		c.send("token_mint", rpc.AmountParam{Amount: *amount})
	case "set-vault":
		fs := flag.NewFlagSet("token set-vault", flag.ExitOnError)
		vault := fs.String("vault", "", "Vault address")
		fs.Parse(args[1:])
		if *vault == "" {
			fatal("Usage: oyster-cli token set-vault --vault <addr>")
		}
		c.send("token_setVault", rpc.TargetParam{Address: parseAddress(*vault, "vault")})
	case "validate":
		fs := flag.NewFlagSet("token validate", flag.ExitOnError)
		l := fs.String("ledger", "", "Rights ledger address")
		fs.Parse(args[1:])
		if *l == "" {
			fatal("Usage: oyster-cli token validate --ledger <addr>")
		}
		c.send("token_validate", rpc.TargetParam{Address: parseAddress(*l, "ledger")})
	default:
		fatal("Unknown token command: %s", args[0])
	}
}

// ── vault ───────────────────────────────────────────────────────────────

func (c *cli) cmdVault(args []string) {
	if len(args) < 1 {
		fatal("Usage: oyster-cli vault <info|authorized|authorize|send|receive> [flags]")
	}

	switch args[0] {
	case "info":
		var info ledger.VaultInfo
		if err := c.client.Call("vault_getInfo", nil, &info); err != nil {
			fatal("vault_getInfo: %v", err)
		}
		printJSON(info)
	case "authorized":
		if len(args) < 2 {
			fatal("Usage: oyster-cli vault authorized <address>")
		}
		var res rpc.FlagResult
		addr := parseAddress(args[1], "address")
		if err := c.client.Call("vault_isAuthorized", rpc.AddressParam{Address: addr}, &res); err != nil {
			fatal("vault_isAuthorized: %v", err)
		}
		fmt.Printf("%s authorized: %v\n", res.Address, res.Value)
	case "authorize":
		fs := flag.NewFlagSet("vault authorize", flag.ExitOnError)
		addr := fs.String("address", "", "Address to authorize")
		revoke := fs.Bool("revoke", false, "Revoke instead of grant")
		fs.Parse(args[1:])
		if *addr == "" {
			fatal("Usage: oyster-cli vault authorize --address <addr> [--revoke]")
		}
		c.send("vault_authorize", rpc.AuthorizeParam{
			Address: parseAddress(*addr, "address"),
			Allowed: !*revoke,
		})
	case "send":
		fs := flag.NewFlagSet("vault send", flag.ExitOnError)
		to := fs.String("to", "", "Recipient address")
		amount := fs.Uint64("amount", 0, "Tokens to send")
		fs.Parse(args[1:])
		if *to == "" || *amount == 0 {
			fatal("Usage: oyster-cli vault send --to <addr> --amount <n>")
		}
		c.send("vault_send", rpc.TransferParam{Account: parseAddress(*to, "recipient"), Amount: *amount})
	case "receive":
		fs := flag.NewFlagSet("vault receive", flag.ExitOnError)
		from := fs.String("from", "", "Source address")
		amount := fs.Uint64("amount", 0, "Tokens to move into the vault")
		fs.Parse(args[1:])
		if *from == "" || *amount == 0 {
			fatal("Usage: oyster-cli vault receive --from <addr> --amount <n>")
		}
		c.send("vault_receive", rpc.TransferParam{Account: parseAddress(*from, "source"), Amount: *amount})
	default:
		fatal("Unknown vault command: %s", args[0])
	}
}

// ── rights ──────────────────────────────────────────────────────────────

func (c *cli) cmdRights(args []string) {
	if len(args) < 1 {
		fatal("Usage: oyster-cli rights <list|info|holders|share|tokens|deploy|assign|withdraw|seal|buy-lot|buy|sell|pay-rights|pay-listen> [flags]")
	}

	switch args[0] {
	case "list":
		var addrs []string
		if err := c.client.Call("rights_list", nil, &addrs); err != nil {
			fatal("rights_list: %v", err)
		}
		if len(addrs) == 0 {
			fmt.Println("No rights ledgers.")
			return
		}
		for _, a := range addrs {
			fmt.Println(a)
		}
	case "info":
		if len(args) < 2 {
			fatal("Usage: oyster-cli rights info <ledger>")
		}
		var info ledger.RightsInfo
		addr := parseAddress(args[1], "ledger")
		if err := c.client.Call("rights_getInfo", rpc.AddressParam{Address: addr}, &info); err != nil {
			fatal("rights_getInfo: %v", err)
		}
		printRightsInfo(&info)
	case "holders":
		if len(args) < 2 {
			fatal("Usage: oyster-cli rights holders <ledger>")
		}
		var holders []string
		addr := parseAddress(args[1], "ledger")
		if err := c.client.Call("rights_viewRightHolders", rpc.AddressParam{Address: addr}, &holders); err != nil {
			fatal("rights_viewRightHolders: %v", err)
		}
		for _, h := range holders {
			fmt.Println(h)
		}
	case "share":
		if len(args) < 3 {
			fatal("Usage: oyster-cli rights share <ledger> <holder>")
		}
		var res map[string]uint64
		p := rpc.HolderParam{Ledger: parseAddress(args[1], "ledger"), Holder: parseAddress(args[2], "holder")}
		if err := c.client.Call("rights_viewShare", p, &res); err != nil {
			fatal("rights_viewShare: %v", err)
		}
		fmt.Printf("%s holds %d%%\n", p.Holder, res["pct"])
	case "tokens":
		if len(args) < 3 {
			fatal("Usage: oyster-cli rights tokens <ledger> <holder>")
		}
		var res rpc.BalanceResult
		p := rpc.HolderParam{Ledger: parseAddress(args[1], "ledger"), Holder: parseAddress(args[2], "holder")}
		if err := c.client.Call("rights_viewTokensPerAddress", p, &res); err != nil {
			fatal("rights_viewTokensPerAddress: %v", err)
		}
		fmt.Printf("%s bought %d tokens\n", res.Address, res.Balance)
	case "deploy":
		fs := flag.NewFlagSet("rights deploy", flag.ExitOnError)
		purchase := fs.Uint64("purchase-rate", 0, "Right purchase fee in base units")
		listen := fs.Uint64("listen-rate", 0, "Listen fee in base units")
		fs.Parse(args[1:])
		c.send("rights_deploy", rpc.DeployParam{RightsParams: ledger.RightsParams{
			RightPurchaseRate: *purchase,
			ListenRate:        *listen,
		}})
	case "assign", "withdraw":
		fs := flag.NewFlagSet("rights "+args[0], flag.ExitOnError)
		l := fs.String("ledger", "", "Rights ledger address")
		holder := fs.String("holder", "", "Holder address")
		pct := fs.Uint64("pct", 0, "Percentage")
		fs.Parse(args[1:])
		if *l == "" || *holder == "" || *pct == 0 {
			fatal("Usage: oyster-cli rights %s --ledger <addr> --holder <addr> --pct <n>", args[0])
		}
		method := "rights_assign"
		if args[0] == "withdraw" {
			method = "rights_withdraw"
		}
		c.send(method, rpc.ShareParam{
			Ledger: parseAddress(*l, "ledger"),
			Holder: parseAddress(*holder, "holder"),
			Pct:    *pct,
		})
	case "seal", "buy-lot", "pay-rights", "pay-listen":
		fs := flag.NewFlagSet("rights "+args[0], flag.ExitOnError)
		l := fs.String("ledger", "", "Rights ledger address")
		value := fs.String("value", "", "Attached payment (currency units)")
		fs.Parse(args[1:])
		if *l == "" {
			fatal("Usage: oyster-cli rights %s --ledger <addr> [--value <amt>]", args[0])
		}
		methods := map[string]string{
			"seal":       "rights_seal",
			"buy-lot":    "rights_buyLot",
			"pay-rights": "rights_payRightsFee",
			"pay-listen": "rights_payListenFee",
		}
		p := rpc.LedgerParam{Ledger: parseAddress(*l, "ledger")}
		p.Value = parseValue(*value)
		c.send(methods[args[0]], p)
	case "buy", "sell":
		fs := flag.NewFlagSet("rights "+args[0], flag.ExitOnError)
		l := fs.String("ledger", "", "Rights ledger address")
		amount := fs.Uint64("amount", 0, "Token amount")
		value := fs.String("value", "", "Attached payment (currency units)")
		fs.Parse(args[1:])
		if *l == "" || *amount == 0 {
			fatal("Usage: oyster-cli rights %s --ledger <addr> --amount <n> [--value <amt>]", args[0])
		}
		method := "rights_buyTokens"
		if args[0] == "sell" {
			method = "rights_sellTokens"
		}
		p := rpc.TradeParam{Ledger: parseAddress(*l, "ledger"), Amount: *amount}
		p.Value = parseValue(*value)
		c.send(method, p)
	default:
		fatal("Unknown rights command: %s", args[0])
	}
}

func printRightsInfo(info *ledger.RightsInfo) {
	fmt.Printf("Ledger:         %s\n", info.Address)
	fmt.Printf("Owner:          %s\n", info.Owner)
	fmt.Printf("Sealed:         %v\n", info.Sealed)
	fmt.Printf("Validated:      %v\n", info.Validated)
	fmt.Printf("Remaining:      %d%%\n", info.Remaining)
	fmt.Printf("Currency:       %s\n", config.FormatAmount(info.CurrencyBalance))
	fmt.Printf("Tokens:         %d\n", info.TokenBalance)
	fmt.Printf("Purchase rate:  %s\n", config.FormatAmount(info.RightPurchaseRate))
	fmt.Printf("Listen rate:    %s\n", config.FormatAmount(info.ListenRate))
	if len(info.RightHolders) > 0 {
		fmt.Println("Holders:")
		for _, h := range info.RightHolders {
			fmt.Printf("  %s  %d%%\n", h, info.Division[h])
		}
	}
}

func parseUint(s, what string) uint64 {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		fatal("invalid %s %q", what, s)
	}
	return n
}
