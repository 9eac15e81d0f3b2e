// Command authlyctl is the reference embedding of the client runtime: it
// bootstraps an mTLS identity, keeps a connection to an authority alive
// via the background reconciler, exposes a small debug HTTP surface, and
// offers document-file tooling (validate/apply) for the declarative TOML
// manifests described in §6.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signalContext()
	defer stop()

	var err error
	switch os.Args[1] {
	case "run":
		err = runCmd(ctx, os.Args[2:])
	case "document":
		err = documentCmd(ctx, os.Args[2:])
	case "version":
		fmt.Println("authlyctl (authly-go client runtime)")
		return
	default:
		usage()
		os.Exit(2)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("authlyctl: command failed", "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  authlyctl run [-config path]
  authlyctl document validate <file.toml> [...]
  authlyctl document apply [-dry-run] <file.toml> [...]
  authlyctl version`)
}
