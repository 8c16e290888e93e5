// Command cinecart is the storefront CLI: browse the catalog, keep a cart,
// check out, and manage the profile.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/and161185/cinecart/internal/config"
	"github.com/and161185/cinecart/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const usageText = `cinecart CLI
Usage:
  cinecart [-addr HOST:PORT] [-cacert file | -insecure | -plaintext] [-config file] <cmd> [args]

Account:
  register   -first <name> -last <name> -email <email> -genres <ids|names>
  login      -email <email>                   (password is prompted)
  login-federated                             (uses CINECART_FEDERATED_ASSERTION)
  logout
  whoami     [-json]
  settings   [-first n] [-last n] [-genres list] [-toggle list] [-password]

Catalog:
  genres
  now-playing [-page n]
  discover   -genre <id|name> [-page n]
  movie      -id <movie id> [-json]

Cart:
  cart
  cart-add   -id <movie id>
  cart-rm    -id <movie id>
  checkout
  purchases

Other:
  ping
  version
`

func usage() {
	fmt.Fprint(os.Stderr, usageText)
	os.Exit(2)
}

// main dispatches subcommands.
func main() {
	env, err := config.Env(".env")
	if err != nil {
		fail(err)
	}
	cfg, rest, err := config.LoadClient(os.Args[1:], env)
	if errors.Is(err, flag.ErrHelp) {
		usage()
	}
	if err != nil {
		fail(err)
	}
	if len(rest) < 1 {
		usage()
	}
	cmd, args := rest[0], rest[1:]

	if cmd == "version" {
		fmt.Printf("cinecart %s (%s)\n", version, buildDate)
		return
	}

	log, err := logging.File(cfg.LogPath(), cfg.Debug)
	if err != nil {
		fail(err)
	}
	defer func() { _ = log.Sync() }()
	log.Debug("command", zap.String("cmd", cmd))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RPCTimeout)
	defer cancel()

	run, ok := commands[cmd]
	if !ok {
		usage()
	}

	a, err := openApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup", zap.Error(err))
		fail(err)
	}
	err = run(ctx, a, args)
	a.Close()
	if err != nil {
		log.Warn("command failed", zap.String("cmd", cmd), zap.Error(err))
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errColor.Sprint(describe(err)))
	os.Exit(1)
}
