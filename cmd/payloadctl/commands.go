package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/urfave/cli/v2"

	"github.com/smallyunet/ethpayload/pkg/codec"
	"github.com/smallyunet/ethpayload/pkg/config"
	"github.com/smallyunet/ethpayload/pkg/ethereum"
	"github.com/smallyunet/ethpayload/pkg/forks"
	"github.com/smallyunet/ethpayload/pkg/payload"
	"github.com/smallyunet/ethpayload/pkg/store"
)

var (
	codecFlag = &cli.StringFlag{
		Name:  "codec",
		Usage: "Wire format of the input file (json, engine, rlp)",
		Value: "json",
	}

	inspectCmd = &cli.Command{
		Action:    inspect,
		Name:      "inspect",
		Usage:     "Decode an envelope file and print a summary",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{codecFlag},
	}

	convertCmd = &cli.Command{
		Action:    convert,
		Name:      "convert",
		Usage:     "Re-encode an envelope file in another wire format",
		ArgsUsage: "IN OUT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "from", Usage: "Input codec", Value: "json"},
			&cli.StringFlag{Name: "to", Usage: "Output codec", Value: "rlp"},
		},
	}

	fetchCmd = &cli.Command{
		Action: fetch,
		Name:   "fetch",
		Usage:  "Retrieve a built payload with engine_getPayload and print it as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "id", Usage: "Payload ID returned by engine_forkchoiceUpdated", Required: true},
			&cli.StringFlag{Name: "fork", Usage: "Fork selecting the engine_getPayload version (defaults to engine.fork)"},
			&cli.StringFlag{Name: "beacon-root", Usage: "Parent beacon block root sent with the payload attributes (Cancun)"},
			&cli.StringFlag{Name: "codec", Usage: "Output format (json, engine)", Value: "json"},
			&cli.BoolFlag{Name: "save", Usage: "Also write the envelope to the store"},
		},
	}

	submitCmd = &cli.Command{
		Action:    submit,
		Name:      "submit",
		Usage:     "Send an envelope file to the execution client with engine_newPayload",
		ArgsUsage: "FILE",
		Flags:     []cli.Flag{codecFlag},
	}

	listCmd = &cli.Command{
		Action: list,
		Name:   "list",
		Usage:  "List stored block numbers and hashes",
	}

	configCmd = &cli.Command{
		Name:  "config",
		Usage: "Manage the configuration file",
		Subcommands: []*cli.Command{
			{
				Action:    configInit,
				Name:      "init",
				Usage:     "Write the default configuration to PATH (config.yaml if omitted)",
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
				},
			},
		},
	}
)

func readEnvelope(path, codecName string) (*payload.Envelope, error) {
	c, err := codec.ByName(codecName)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	env, err := c.DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s as %s: %w", path, c.Name(), err)
	}
	return env, nil
}

func printSummary(w io.Writer, env *payload.Envelope) {
	p := env.Payload()
	fork := "inconsistent"
	if f, err := forks.Detect(env); err == nil {
		fork = f.String()
	}

	fmt.Fprintf(w, "fork:          %s\n", fork)
	fmt.Fprintf(w, "number:        %d\n", p.BlockNumber())
	fmt.Fprintf(w, "hash:          %s\n", p.BlockHash().Hex())
	fmt.Fprintf(w, "parent:        %s\n", p.ParentHash().Hex())
	fmt.Fprintf(w, "timestamp:     %d\n", p.Timestamp())
	fmt.Fprintf(w, "gas:           %d/%d\n", p.GasUsed(), p.GasLimit())
	fmt.Fprintf(w, "baseFee:       %s\n", p.BaseFeePerGas().Dec())
	fmt.Fprintf(w, "transactions:  %d\n", p.TransactionCount())
	if ws, ok := p.Withdrawals(); ok {
		fmt.Fprintf(w, "withdrawals:   %d\n", len(ws))
	} else {
		fmt.Fprintln(w, "withdrawals:   absent")
	}
	if v, ok := p.BlobGasUsed(); ok {
		fmt.Fprintf(w, "blobGasUsed:   %d\n", v)
	} else {
		fmt.Fprintln(w, "blobGasUsed:   absent")
	}
	if v, ok := p.ExcessBlobGas(); ok {
		fmt.Fprintf(w, "excessBlobGas: %d\n", v)
	} else {
		fmt.Fprintln(w, "excessBlobGas: absent")
	}
	if root, ok := env.ParentBeaconBlockRoot(); ok {
		fmt.Fprintf(w, "beaconRoot:    %s\n", root.Hex())
	} else {
		fmt.Fprintln(w, "beaconRoot:    absent")
	}
}

func inspect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("inspect expects exactly one file argument")
	}
	env, err := readEnvelope(c.Args().First(), c.String(codecFlag.Name))
	if err != nil {
		return err
	}
	printSummary(c.App.Writer, env)
	return nil
}

func convert(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("convert expects IN and OUT arguments")
	}
	to, err := codec.ByName(c.String("to"))
	if err != nil {
		return err
	}
	env, err := readEnvelope(c.Args().Get(0), c.String("from"))
	if err != nil {
		return err
	}
	out, err := to.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("encode as %s: %w", to.Name(), err)
	}
	return os.WriteFile(c.Args().Get(1), out, 0644)
}

func engineContext(c *cli.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(appConfig(c).Engine.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(c.Context, timeout)
}

func openStore(c *cli.Context) (*store.Store, error) {
	cfg := appConfig(c)
	sc, err := codec.ByName(cfg.Store.Codec)
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Store.Dir, sc, store.Options{
		CacheSize:  cfg.Store.CacheSize,
		MaxHistory: cfg.Store.MaxHistory,
	})
}

func fetch(c *cli.Context) error {
	cfg := appConfig(c)
	forkName := c.String("fork")
	if forkName == "" {
		forkName = cfg.Engine.Fork
	}
	fork, err := forks.Parse(forkName)
	if err != nil {
		return err
	}
	id, err := hexutil.Decode(c.String("id"))
	if err != nil {
		return fmt.Errorf("invalid payload id %q: %w", c.String("id"), err)
	}
	var beaconRoot *common.Hash
	if s := c.String("beacon-root"); s != "" {
		b, err := hexutil.Decode(s)
		if err != nil || len(b) != common.HashLength {
			return fmt.Errorf("invalid beacon root %q: want 32 bytes of 0x-prefixed hex", s)
		}
		root := common.BytesToHash(b)
		beaconRoot = &root
	}
	out, err := codec.ByName(c.String("codec"))
	if err != nil {
		return err
	}

	client, err := ethereum.NewClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := engineContext(c)
	defer cancel()

	env, err := client.GetPayload(ctx, fork, id, beaconRoot)
	if err != nil {
		return err
	}
	encoded, err := out.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(encoded))

	if c.Bool("save") {
		s, err := openStore(c)
		if err != nil {
			return err
		}
		return s.Put(env)
	}
	return nil
}

func submit(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("submit expects exactly one file argument")
	}
	env, err := readEnvelope(c.Args().First(), c.String(codecFlag.Name))
	if err != nil {
		return err
	}

	client, err := ethereum.NewClient(appConfig(c))
	if err != nil {
		return err
	}
	ctx, cancel := engineContext(c)
	defer cancel()

	status, err := client.NewPayload(ctx, env)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "status: %s\n", status.Status)
	if status.LatestValidHash != nil {
		fmt.Fprintf(c.App.Writer, "latestValidHash: %s\n", status.LatestValidHash.Hex())
	}
	if status.ValidationError != nil {
		fmt.Fprintf(c.App.Writer, "validationError: %s\n", *status.ValidationError)
	}
	if !status.Accepted() {
		return fmt.Errorf("payload not accepted: %s", status.Status)
	}
	return nil
}

func list(c *cli.Context) error {
	s, err := openStore(c)
	if err != nil {
		return err
	}
	for _, n := range s.Numbers() {
		hash, _ := s.HashOf(n)
		fmt.Fprintf(c.App.Writer, "%d\t%s\n", n, hash.Hex())
	}
	return nil
}

func configInit(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite", path)
	}
	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
