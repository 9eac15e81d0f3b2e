package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/authlyhq/authly-go/document"
	"github.com/authlyhq/authly-go/internal/config"
)

// documentCmd dispatches the "document" subcommands: validate and apply.
// Both parse and Validate() every named file; apply additionally records
// labels in a local Store so a collision against an earlier run (not just
// within the same invocation) is caught.
func documentCmd(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("document: expected a subcommand (validate|apply)")
	}
	switch args[0] {
	case "validate":
		return documentValidate(args[1:])
	case "apply":
		return documentApply(ctx, args[1:])
	default:
		return fmt.Errorf("document: unknown subcommand %q", args[0])
	}
}

func documentValidate(args []string) error {
	fs := flag.NewFlagSet("document validate", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("document validate: expected at least one file")
	}

	for _, path := range fs.Args() {
		doc, err := loadDocument(path)
		if err != nil {
			return err
		}
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		slog.Info("authlyctl: document is valid", "path", path)
	}
	return nil
}

func documentApply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("document apply", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "validate and record labels without applying to an authority")
	configPath := fs.String("config", "/etc/authly/authlyctl.yaml", "path to the authlyctl YAML config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("document apply: expected at least one file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		// A bare default is fine here: apply --dry-run is routinely run
		// without a full process config file, just a document tree.
		cfg = &config.Config{Document: config.DocumentConfig{StoreDSN: "authlyctl-documents.db"}}
	}

	store, err := document.OpenStore(cfg.Document.StoreDSN)
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	for _, path := range fs.Args() {
		doc, err := loadDocument(path)
		if err != nil {
			return err
		}
		if err := doc.Validate(); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if err := store.CheckAndRecord(ctx, path, doc); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if *dryRun {
			slog.Info("authlyctl: document would be applied", "path", path)
			continue
		}
		// Non-goal (spec §6): authlyctl does not itself push documents to
		// an authority over the wire; that is the authority's own document
		// ingestion path. apply here means "validated and locally recorded".
		slog.Info("authlyctl: document recorded", "path", path)
	}
	return nil
}

func loadDocument(path string) (*document.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := document.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
