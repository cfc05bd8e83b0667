package main

import (
	"StarLedger/internal/server"
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
)

const usage = `usage: starctl [-addr host:port] [-timeout 10s] <command> [args]

commands:
  height                          print the chain height
  block -height N | -hash H       print one block
  stars <address>                 list stars registered by address
  validate                        run a full chain validation
  challenge <address>             request an ownership challenge
  sign -wif K [-type T] <message> sign a message locally
  register -wif K [-type T] -star JSON
                                  challenge, sign and submit in one step

address types: p2pkh (default), p2sh-p2wpkh, p2wpkh
`

func main() {
	addrFlag := flag.String("addr", envOr("STARCTL_ADDR", "localhost:9090"), "gRPC address of starledger")
	timeoutFlag := flag.Duration("timeout", 10*time.Second, "per-command timeout")
	netFlag := flag.String("net", envOr("STAR_BITCOIN_NET", "mainnet"), "bitcoin network for local signing")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	client, err := server.Dial(*addrFlag)
	if err != nil {
		pterm.Error.Printfln("dial %s: %v", *addrFlag, err)
		os.Exit(1)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	app := &app{client: client, net: *netFlag}
	if err := app.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		pterm.Error.Println(err.Error())
		cancel()
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
