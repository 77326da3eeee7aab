// Copyright 2026 CAP Contributors

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/capassure/cap-agent/pkg/audit"
	"github.com/capassure/cap-agent/pkg/config"
	"github.com/capassure/cap-agent/pkg/manifest"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cap-audit: load config: %v", err)
	}

	switch os.Args[1] {
	case "append":
		cmdAppend(cfg, os.Args[2:])
	case "verify":
		cmdVerify(cfg, os.Args[2:])
	case "set-private-anchor":
		cmdSetPrivateAnchor(cfg, os.Args[2:])
	case "set-public-anchor":
		cmdSetPublicAnchor(cfg, os.Args[2:])
	case "verify-anchor":
		cmdVerifyAnchor(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cap-audit <append|verify|set-private-anchor|set-public-anchor|verify-anchor> [flags]")
}

func cmdAppend(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("append", flag.ExitOnError)
	event := fs.String("event", "", "event type")
	policyID := fs.String("policy-id", "", "policy id")
	fs.Parse(args)

	chain, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("cap-audit: open chain: %v", err)
	}
	ev, err := chain.Append(*event, audit.Details{PolicyID: *policyID})
	if err != nil {
		log.Fatalf("cap-audit: append: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(ev)
}

func cmdVerify(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	fs.Parse(args)

	report, err := audit.VerifyChain(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("cap-audit: verify: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)
	if !report.OK {
		os.Exit(1)
	}
}

func cmdSetPrivateAnchor(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("set-private-anchor", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to manifest.json")
	fs.Parse(args)

	m := loadManifest(*manifestPath)
	chain, err := audit.Open(cfg.AuditLogPath)
	if err != nil {
		log.Fatalf("cap-audit: open chain: %v", err)
	}
	tip, _ := chain.Tip()

	if m.TimeAnchor == nil {
		m.TimeAnchor = &manifest.TimeAnchor{AuditTipHex: tip, Kind: "private"}
	}
	m.TimeAnchor.Private = &manifest.PrivateAnchor{AuditTipHex: tip}
	writeManifest(*manifestPath, m)
}

func cmdSetPublicAnchor(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("set-public-anchor", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to manifest.json")
	chainName := fs.String("chain", "", "anchor chain name")
	txid := fs.String("txid", "", "anchor transaction id")
	digest := fs.String("digest", "", "0x + 64 hex digest")
	fs.Parse(args)

	m := loadManifest(*manifestPath)
	if m.TimeAnchor == nil {
		log.Fatal("cap-audit: manifest has no time anchor; run set-private-anchor first")
	}
	m.TimeAnchor.Public = &manifest.PublicAnchor{Chain: *chainName, TxID: *txid, Digest: *digest}
	if err := m.TimeAnchor.Validate(); err != nil {
		log.Fatalf("cap-audit: invalid public anchor: %v", err)
	}
	writeManifest(*manifestPath, m)
}

func cmdVerifyAnchor(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("verify-anchor", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to manifest.json")
	fs.Parse(args)

	m := loadManifest(*manifestPath)
	if m.TimeAnchor == nil {
		fmt.Println(`{"valid": false, "error": "no time anchor present"}`)
		os.Exit(1)
	}
	if err := m.TimeAnchor.Validate(); err != nil {
		fmt.Printf("{\"valid\": false, \"error\": %q}\n", err.Error())
		os.Exit(1)
	}
	fmt.Println(`{"valid": true}`)
}

func loadManifest(path string) *manifest.Manifest {
	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("cap-audit: read manifest: %v", err)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		log.Fatalf("cap-audit: parse manifest: %v", err)
	}
	return m
}

func writeManifest(path string, m *manifest.Manifest) {
	raw, err := m.Pretty()
	if err != nil {
		log.Fatalf("cap-audit: encode manifest: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		log.Fatalf("cap-audit: write manifest: %v", err)
	}
}
