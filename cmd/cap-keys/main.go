// Copyright 2026 CAP Contributors

package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/capassure/cap-agent/pkg/config"
	"github.com/capassure/cap-agent/pkg/keys"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("cap-keys: load config: %v", err)
	}
	provider, err := keys.OpenSoftwareProvider(cfg.KeyStorePath)
	if err != nil {
		log.Fatalf("cap-keys: open key store: %v", err)
	}

	switch os.Args[1] {
	case "keygen":
		cmdKeygen(provider, os.Args[2:])
	case "list":
		cmdList(provider)
	case "show":
		cmdShow(provider, os.Args[2:])
	case "rotate":
		cmdRotate(provider, os.Args[2:])
	case "archive":
		cmdArchive(provider, os.Args[2:])
	case "attest":
		cmdAttest(provider, os.Args[2:])
	case "verify-chain":
		cmdVerifyChain(provider, os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cap-keys <keygen|list|show|rotate|attest|archive|verify-chain> [flags]")
}

func cmdKeygen(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	name := fs.String("name", "primary", "key name")
	owner := fs.String("owner", "", "key owner")
	scheme := fs.String("scheme", string(keys.SchemeEd25519), "ed25519 or bls12-381")
	fs.Parse(args)

	var kid keys.KID
	var err error
	switch keys.Scheme(*scheme) {
	case keys.SchemeEd25519:
		kid, err = p.GenerateEd25519(*name, *owner)
	case keys.SchemeBLS12381:
		kid, err = p.GenerateBLS12381(*name, *owner)
	default:
		log.Fatalf("cap-keys: unknown scheme %q", *scheme)
	}
	if err != nil {
		log.Fatalf("cap-keys: keygen: %v", err)
	}
	fmt.Println(kid)
}

func cmdList(p *keys.SoftwareProvider) {
	kids, err := p.ListKIDs()
	if err != nil {
		log.Fatalf("cap-keys: list: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(kids)
}

func cmdShow(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	kid := fs.String("kid", "", "key id")
	fs.Parse(args)

	meta, err := p.Metadata(keys.KID(*kid))
	if err != nil {
		log.Fatalf("cap-keys: show: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(meta)
}

func cmdRotate(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("rotate", flag.ExitOnError)
	oldKID := fs.String("retire", "", "kid to retire")
	name := fs.String("name", "", "new key name")
	owner := fs.String("owner", "", "new key owner")
	scheme := fs.String("scheme", string(keys.SchemeEd25519), "ed25519 or bls12-381")
	fs.Parse(args)

	if *oldKID != "" {
		if err := p.SetStatus(keys.KID(*oldKID), keys.StatusRetired); err != nil {
			log.Fatalf("cap-keys: retire %s: %v", *oldKID, err)
		}
	}

	var newKID keys.KID
	var err error
	switch keys.Scheme(*scheme) {
	case keys.SchemeEd25519:
		newKID, err = p.GenerateEd25519(*name, *owner)
	case keys.SchemeBLS12381:
		newKID, err = p.GenerateBLS12381(*name, *owner)
	default:
		log.Fatalf("cap-keys: unknown scheme %q", *scheme)
	}
	if err != nil {
		log.Fatalf("cap-keys: rotate: %v", err)
	}
	fmt.Println(newKID)
}

func cmdArchive(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	kid := fs.String("kid", "", "kid to revoke")
	fs.Parse(args)

	if err := p.SetStatus(keys.KID(*kid), keys.StatusRevoked); err != nil {
		log.Fatalf("cap-keys: archive: %v", err)
	}
}

// cmdAttest signs an arbitrary message under kid, printing the signature as
// hex. Used to produce manifest and registry-entry signatures out of band.
func cmdAttest(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("attest", flag.ExitOnError)
	kid := fs.String("kid", "", "signing key id")
	message := fs.String("message", "", "hex-encoded message to sign")
	fs.Parse(args)

	msg, err := hex.DecodeString(*message)
	if err != nil {
		log.Fatalf("cap-keys: attest: decode message: %v", err)
	}
	sig, err := p.Sign(keys.KID(*kid), msg)
	if err != nil {
		log.Fatalf("cap-keys: attest: %v", err)
	}
	fmt.Println(hex.EncodeToString(sig))
}

// cmdVerifyChain checks a signature against a message under kid, independent
// of the key's current lifecycle status — a caller deciding whether to trust
// a chain of past attestations must see all of them, not just active ones.
func cmdVerifyChain(p *keys.SoftwareProvider, args []string) {
	fs := flag.NewFlagSet("verify-chain", flag.ExitOnError)
	kid := fs.String("kid", "", "signing key id")
	message := fs.String("message", "", "hex-encoded message")
	signature := fs.String("signature", "", "hex-encoded signature")
	fs.Parse(args)

	msg, err := hex.DecodeString(*message)
	if err != nil {
		log.Fatalf("cap-keys: verify-chain: decode message: %v", err)
	}
	sig, err := hex.DecodeString(*signature)
	if err != nil {
		log.Fatalf("cap-keys: verify-chain: decode signature: %v", err)
	}
	ok, err := p.Verify(keys.KID(*kid), msg, sig)
	if err != nil {
		log.Fatalf("cap-keys: verify-chain: %v", err)
	}
	if !ok {
		fmt.Println("invalid")
		os.Exit(1)
	}
	fmt.Println("valid")
}
