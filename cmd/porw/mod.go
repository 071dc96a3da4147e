// Package main provides the porw command line tool to manage contracts: key
// generation, deployment, calls, lifecycle changes and queries against the
// engine's on-disk state.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	urfave "github.com/urfave/cli/v2"

	"github.com/porwchain/porw/core/chainstate"
	"github.com/porwchain/porw/core/config"
	"github.com/porwchain/porw/core/contract"
	"github.com/porwchain/porw/core/manager"
	"github.com/porwchain/porw/core/store/kv"
	"github.com/porwchain/porw/core/txn"
	"github.com/porwchain/porw/core/value"
	"github.com/porwchain/porw/crypto/ed25519"
	"github.com/porwchain/porw/crypto/loader"
	"golang.org/x/xerrors"
)

var printer io.Writer = os.Stdout

func main() {
	err := makeApp().Run(os.Args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func makeApp() *urfave.App {
	dirFlag := &urfave.StringFlag{
		Name:  "dir",
		Usage: "engine data directory",
		Value: ".porw",
	}

	configFlag := &urfave.StringFlag{
		Name:  "config",
		Usage: "path to the engine configuration file",
	}

	keyFlag := &urfave.StringFlag{
		Name:  "key",
		Usage: "path to the private key file",
		Value: "private.key",
	}

	contractFlag := &urfave.StringFlag{
		Name:     "contract",
		Usage:    "contract identifier",
		Required: true,
	}

	app := &urfave.App{
		Name:  "porw",
		Usage: "manage smart contracts",
		Flags: []urfave.Flag{dirFlag, configFlag},
		Commands: []*urfave.Command{
			{
				Name:   "keygen",
				Usage:  "generate a key pair and print its address",
				Flags:  []urfave.Flag{keyFlag},
				Action: keygenAction,
			},
			{
				Name:  "deploy",
				Usage: "deploy a new contract",
				Flags: []urfave.Flag{
					keyFlag,
					&urfave.StringFlag{
						Name:     "name",
						Usage:    "contract name",
						Required: true,
					},
					&urfave.StringFlag{
						Name:  "description",
						Usage: "contract description",
					},
					&urfave.StringFlag{
						Name:     "language",
						Usage:    "contract language (scripted, json_dsl, wasm)",
						Required: true,
					},
					&urfave.StringFlag{
						Name:     "code",
						Usage:    "path to the contract source file",
						Required: true,
					},
					&urfave.StringFlag{
						Name:  "abi",
						Usage: "path to the contract ABI file",
					},
					&urfave.Uint64Flag{
						Name:  "gas-limit",
						Value: txn.DefaultDeployGasLimit,
					},
					&urfave.Uint64Flag{
						Name:  "gas-price",
						Value: txn.DefaultDeployGasPrice,
					},
				},
				Action: deployAction,
			},
			{
				Name:  "call",
				Usage: "call a contract function",
				Flags: []urfave.Flag{
					keyFlag,
					contractFlag,
					&urfave.StringFlag{
						Name:     "function",
						Usage:    "function to call",
						Required: true,
					},
					&urfave.StringSliceFlag{
						Name:  "arg",
						Usage: "JSON encoded argument, repeatable",
					},
					&urfave.Uint64Flag{
						Name:  "value",
						Usage: "native tokens attached to the call",
					},
					&urfave.Uint64Flag{
						Name:  "gas-limit",
						Value: txn.DefaultCallGasLimit,
					},
					&urfave.Uint64Flag{
						Name:  "gas-price",
						Value: txn.DefaultCallGasPrice,
					},
				},
				Action: callAction,
			},
			{
				Name:  "transfer",
				Usage: "transfer native tokens to a contract",
				Flags: []urfave.Flag{
					keyFlag,
					contractFlag,
					&urfave.Uint64Flag{
						Name:     "value",
						Usage:    "amount to transfer",
						Required: true,
					},
				},
				Action: transferAction,
			},
			{
				Name:   "list",
				Usage:  "list the registered contracts",
				Action: listAction,
			},
			{
				Name:   "show",
				Usage:  "print a contract",
				Flags:  []urfave.Flag{contractFlag},
				Action: showAction,
			},
			{
				Name:   "events",
				Usage:  "print the events of a contract",
				Flags:  []urfave.Flag{contractFlag},
				Action: eventsAction,
			},
			{
				Name:   "pause",
				Usage:  "pause an active contract",
				Flags:  []urfave.Flag{contractFlag},
				Action: lifecycleAction((*manager.Manager).PauseContract),
			},
			{
				Name:   "resume",
				Usage:  "resume a paused contract",
				Flags:  []urfave.Flag{contractFlag},
				Action: lifecycleAction((*manager.Manager).ResumeContract),
			},
			{
				Name:   "terminate",
				Usage:  "terminate a contract",
				Flags:  []urfave.Flag{contractFlag},
				Action: lifecycleAction((*manager.Manager).TerminateContract),
			},
		},
	}

	return app
}

func keygenAction(c *urfave.Context) error {
	signer, err := ed25519.LoadSigner(loader.NewFileLoader(c.String("key")))
	if err != nil {
		return xerrors.Errorf("couldn't load key: %v", err)
	}

	addr, err := signer.GetAddress()
	if err != nil {
		return xerrors.Errorf("couldn't derive address: %v", err)
	}

	fmt.Fprintln(printer, addr)

	return nil
}

func deployAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	signer, addr, err := loadSigner(c)
	if err != nil {
		return err
	}

	code, err := os.ReadFile(c.String("code"))
	if err != nil {
		return xerrors.Errorf("couldn't read code: %v", err)
	}

	data := map[string]value.V{
		"name":        value.NewString(c.String("name")),
		"description": value.NewString(c.String("description")),
		"language":    value.NewString(c.String("language")),
		"code":        value.NewString(string(code)),
	}

	if path := c.String("abi"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return xerrors.Errorf("couldn't read abi: %v", err)
		}

		abi := value.V{}

		err = abi.UnmarshalJSON(raw)
		if err != nil {
			return xerrors.Errorf("couldn't parse abi: %v", err)
		}

		data["abi"] = abi
	}

	tx, err := txn.New(addr,
		txn.WithArgs(value.NewMap(data)),
		txn.WithGas(c.Uint64("gas-limit"), c.Uint64("gas-price")))
	if err != nil {
		return xerrors.Errorf("couldn't create transaction: %v", err)
	}

	err = tx.Sign(signer)
	if err != nil {
		return xerrors.Errorf("couldn't sign transaction: %v", err)
	}

	return printResult(m.DeployContract(tx))
}

func callAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	signer, addr, err := loadSigner(c)
	if err != nil {
		return err
	}

	args, err := parseArgs(c.StringSlice("arg"))
	if err != nil {
		return err
	}

	tx, err := txn.New(addr,
		txn.WithContract(c.String("contract")),
		txn.WithFunction(c.String("function"), args...),
		txn.WithValue(c.Uint64("value")),
		txn.WithGas(c.Uint64("gas-limit"), c.Uint64("gas-price")))
	if err != nil {
		return xerrors.Errorf("couldn't create transaction: %v", err)
	}

	err = tx.Sign(signer)
	if err != nil {
		return xerrors.Errorf("couldn't sign transaction: %v", err)
	}

	return printResult(m.ExecuteTransaction(tx))
}

func transferAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	signer, addr, err := loadSigner(c)
	if err != nil {
		return err
	}

	tx, err := txn.New(addr,
		txn.WithContract(c.String("contract")),
		txn.WithValue(c.Uint64("value")))
	if err != nil {
		return xerrors.Errorf("couldn't create transaction: %v", err)
	}

	err = tx.Sign(signer)
	if err != nil {
		return xerrors.Errorf("couldn't sign transaction: %v", err)
	}

	return printResult(m.ExecuteTransaction(tx))
}

func listAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	for _, ct := range m.ListContracts() {
		fmt.Fprintf(printer, "%s\t%s\t%s\t%s\n", ct.ID, ct.Name, ct.Language, ct.State)
	}

	return nil
}

func showAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	ct, ok := m.GetContract(c.String("contract"))
	if !ok {
		return xerrors.Errorf("unknown contract '%s'", c.String("contract"))
	}

	return printJSON(ct)
}

func eventsAction(c *urfave.Context) error {
	m, closer, err := makeManager(c)
	if err != nil {
		return err
	}

	defer closer()

	events, err := m.GetContractEvents(c.String("contract"))
	if err != nil {
		return xerrors.Errorf("couldn't load events: %v", err)
	}

	return printJSON(events)
}

func lifecycleAction(fn func(*manager.Manager, string) bool) urfave.ActionFunc {
	return func(c *urfave.Context) error {
		m, closer, err := makeManager(c)
		if err != nil {
			return err
		}

		defer closer()

		if !fn(m, c.String("contract")) {
			return xerrors.Errorf("transition refused for contract '%s'",
				c.String("contract"))
		}

		ct, _ := m.GetContract(c.String("contract"))
		fmt.Fprintf(printer, "%s\t%s\n", ct.ID, ct.State)

		return nil
	}
}

// makeManager builds the manager over the configured directory, with the
// chain state read from the node's database.
func makeManager(c *urfave.Context) (*manager.Manager, func(), error) {
	cfg := config.Default(c.String("dir"))

	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, nil, xerrors.Errorf("couldn't load config: %v", err)
		}

		cfg = loaded

		if cfg.Dir == "" {
			cfg.Dir = c.String("dir")
		}
	}

	err := os.MkdirAll(cfg.Dir, 0755)
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't create directory: %v", err)
	}

	db, err := kv.New(filepath.Join(cfg.Dir, "chain.db"))
	if err != nil {
		return nil, nil, xerrors.Errorf("couldn't open chain db: %v", err)
	}

	m, err := manager.NewManager(cfg, chainstate.NewStore(db))
	if err != nil {
		db.Close()

		return nil, nil, xerrors.Errorf("couldn't create manager: %v", err)
	}

	return m, func() { db.Close() }, nil
}

func loadSigner(c *urfave.Context) (ed25519.Signer, string, error) {
	signer, err := ed25519.LoadSigner(loader.NewFileLoader(c.String("key")))
	if err != nil {
		return ed25519.Signer{}, "", xerrors.Errorf("couldn't load key: %v", err)
	}

	addr, err := signer.GetAddress()
	if err != nil {
		return ed25519.Signer{}, "", xerrors.Errorf("couldn't derive address: %v", err)
	}

	return signer, addr, nil
}

// parseArgs decodes each argument as JSON, falling back to a plain string
// when it does not parse, so that `--arg hello` works without quoting.
func parseArgs(raw []string) ([]value.V, error) {
	args := make([]value.V, len(raw))

	for i, r := range raw {
		v := value.V{}

		err := v.UnmarshalJSON([]byte(r))
		if err != nil {
			v = value.NewString(r)
		}

		args[i] = v
	}

	return args, nil
}

func printResult(res contract.ExecutionResult) error {
	err := printJSON(res)
	if err != nil {
		return err
	}

	if !res.Success {
		return xerrors.Errorf("execution failed: %s", res.Error)
	}

	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return xerrors.Errorf("couldn't marshal: %v", err)
	}

	fmt.Fprintln(printer, string(data))

	return nil
}
