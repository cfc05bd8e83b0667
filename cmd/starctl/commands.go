package main

import (
	"StarLedger/internal/btcmsg"
	"StarLedger/internal/ledger"
	"StarLedger/internal/server"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/pterm/pterm"
)

var errUsage = errors.New("invalid arguments, run starctl -h")

type app struct {
	client *server.Client
	net    string
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "height":
		h, err := a.client.Height(ctx)
		if err != nil {
			return err
		}
		pterm.Info.Printfln("height %d", h)
		return nil

	case "block":
		return a.block(ctx, args)

	case "stars":
		if len(args) != 1 {
			return errUsage
		}
		return a.stars(ctx, args[0])

	case "validate":
		return a.validate(ctx)

	case "challenge":
		if len(args) != 1 {
			return errUsage
		}
		msg, err := a.client.RequestValidation(ctx, args[0])
		if err != nil {
			return err
		}
		pterm.Println(msg)
		return nil

	case "sign":
		return a.sign(args)

	case "register":
		return a.register(ctx, args)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) block(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("block", flag.ContinueOnError)
	height := fs.Int64("height", -1, "block height")
	hash := fs.String("hash", "", "block hash")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		b   ledger.Block
		err error
	)
	switch {
	case *hash != "":
		b, err = a.client.BlockByHash(ctx, *hash)
	case *height >= 0:
		b, err = a.client.BlockByHeight(ctx, *height)
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	return printBlock(b)
}

func printBlock(b ledger.Block) error {
	rows := pterm.TableData{
		{"height", strconv.FormatInt(b.Height, 10)},
		{"hash", b.Hash},
		{"previous", b.PreviousBlockHash},
		{"time", time.Unix(b.Time, 0).UTC().Format(time.RFC3339)},
	}
	if p, err := b.Payload(); err == nil {
		decoded, _ := json.Marshal(p)
		rows = append(rows, []string{p.Kind().String(), string(decoded)})
	} else {
		rows = append(rows, []string{"body", b.Body})
	}
	return pterm.DefaultTable.WithData(rows).Render()
}

func (a *app) stars(ctx context.Context, address string) error {
	claims, err := a.client.StarsByOwner(ctx, address)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		pterm.Info.Printfln("no stars registered by %s", address)
		return nil
	}

	rows := pterm.TableData{{"#", "star"}}
	for i, c := range claims {
		rows = append(rows, []string{strconv.Itoa(i + 1), string(c.Star)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func (a *app) validate(ctx context.Context) error {
	resp, err := a.client.ValidateChain(ctx)
	if err != nil {
		return err
	}
	records := resp.Records
	if resp.Valid {
		pterm.Success.Println("chain intact")
		return nil
	}

	rows := pterm.TableData{{"height", "hash", "error"}}
	for _, r := range records {
		rows = append(rows, []string{strconv.FormatInt(r.Block.Height, 10), r.Block.Hash, r.Message})
	}
	pterm.Warning.Printfln("%d integrity errors", len(records))
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}

func (a *app) sign(args []string) error {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	wif := fs.String("wif", "", "private key in WIF")
	kind := fs.String("type", "p2pkh", "address type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	w, err := loadWallet(*wif, *kind, a.net)
	if err != nil {
		return err
	}
	sig, err := btcmsg.Sign(w.key.PrivKey, fs.Arg(0), w.kind)
	if err != nil {
		return err
	}
	pterm.Info.Printfln("address %s", w.address)
	pterm.Println(sig)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	wif := fs.String("wif", "", "private key in WIF")
	kind := fs.String("type", "p2pkh", "address type")
	star := fs.String("star", "", "star metadata as a JSON object")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *star == "" || !json.Valid([]byte(*star)) {
		return fmt.Errorf("-star must be valid JSON")
	}

	w, err := loadWallet(*wif, *kind, a.net)
	if err != nil {
		return err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Requesting challenge for " + w.address)
	msg, err := a.client.RequestValidation(ctx, w.address)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	sig, err := btcmsg.Sign(w.key.PrivKey, msg, w.kind)
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.UpdateText("Submitting star")
	b, err := a.client.SubmitStar(ctx, w.address, msg, sig, json.RawMessage(*star))
	if err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Registered at height %d", b.Height))
	return printBlock(b)
}

type wallet struct {
	key     *btcutil.WIF
	kind    btcmsg.AddressType
	address string
}

func loadWallet(encoded, kindName, netName string) (*wallet, error) {
	if encoded == "" {
		return nil, fmt.Errorf("-wif is required")
	}
	params, err := btcmsg.NetParams(netName)
	if err != nil {
		return nil, err
	}
	kind, err := parseAddressType(kindName)
	if err != nil {
		return nil, err
	}

	key, err := btcutil.DecodeWIF(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode wif: %w", err)
	}
	if !key.IsForNet(params) {
		return nil, fmt.Errorf("wif key is not for %s", params.Name)
	}
	if !key.CompressPubKey {
		return nil, fmt.Errorf("uncompressed wif keys are not supported")
	}

	addr, err := btcmsg.Address(key.PrivKey.PubKey(), kind, true, params)
	if err != nil {
		return nil, err
	}
	return &wallet{key: key, kind: kind, address: addr}, nil
}

func parseAddressType(s string) (btcmsg.AddressType, error) {
	switch s {
	case "p2pkh", "legacy", "":
		return btcmsg.P2PKH, nil
	case "p2sh-p2wpkh", "p2sh":
		return btcmsg.P2SHP2WPKH, nil
	case "p2wpkh", "bech32", "segwit":
		return btcmsg.P2WPKH, nil
	default:
		return 0, fmt.Errorf("unknown address type %q", s)
	}
}
