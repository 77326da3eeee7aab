// Copyright 2026 CAP Contributors

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/capassure/cap-agent/pkg/config"
	"github.com/capassure/cap-agent/pkg/keys"
	"github.com/capassure/cap-agent/pkg/registry"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cap-registry: load config: %v", err)
	}

	kvPath := ""
	if cfg.RegistryBackend == "kv" {
		kvPath = cfg.RegistryKVPath
	}
	reg, err := registry.Open(cfg.RegistryPath, kvPath)
	if err != nil {
		log.Fatalf("cap-registry: open: %v", err)
	}
	defer reg.Close()

	switch os.Args[1] {
	case "add":
		cmdAdd(cfg, reg, os.Args[2:])
	case "list":
		cmdList(reg)
	case "migrate":
		cmdMigrate(reg)
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cap-registry <add|list|migrate> [flags]")
}

func cmdAdd(cfg *config.Config, reg *registry.Registry, args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	entryID := fs.String("entry-id", "", "entry id")
	policyID := fs.String("policy-id", "", "policy id")
	irHash := fs.String("ir-hash", "", "policy IR hash")
	manifestHash := fs.String("manifest-hash", "", "manifest hash")
	proofHash := fs.String("proof-hash", "", "proof hash")
	kid := fs.String("kid", "", "signing key id")
	fs.Parse(args)

	var provider *keys.SoftwareProvider
	if *kid != "" {
		p, err := keys.OpenSoftwareProvider(cfg.KeyStorePath)
		if err != nil {
			log.Fatalf("cap-registry: open key store: %v", err)
		}
		provider = p
	}

	entry := registry.Entry{
		EntryID:      *entryID,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
		PolicyID:     *policyID,
		IRHash:       *irHash,
		ManifestHash: *manifestHash,
		ProofHash:    *proofHash,
		KID:          *kid,
	}
	if err := reg.Add(entry, provider); err != nil {
		log.Fatalf("cap-registry: add: %v", err)
	}
	fmt.Println(entry.EntryID)
}

func cmdList(reg *registry.Registry) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(reg.List())
}

func cmdMigrate(reg *registry.Registry) {
	// Open already migrates v1.0 documents in memory; persist the result.
	if err := reg.Save(); err != nil {
		log.Fatalf("cap-registry: migrate: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(reg.Meta())
}
