// Copyright 2026 CAP Contributors

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/capassure/cap-agent/pkg/bundle"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "bundle-v2":
		cmdAssemble(os.Args[2:])
	case "verify-bundle":
		cmdVerify(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: cap-bundle <bundle-v2|verify-bundle> [flags]")
}

// fileFlag is one repeated -file name=path[:role[:optional]] flag.
type fileFlag struct {
	name, path, role string
	optional         bool
}

type fileFlagList []fileFlag

func (f *fileFlagList) String() string { return "" }

func (f *fileFlagList) Set(value string) error {
	parts := strings.SplitN(value, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("expected name=path[:role[:optional]], got %q", value)
	}
	name := parts[0]
	rest := strings.Split(parts[1], ":")
	ff := fileFlag{name: name, path: rest[0]}
	if len(rest) > 1 {
		ff.role = rest[1]
	}
	if len(rest) > 2 && rest[2] == "optional" {
		ff.optional = true
	}
	*f = append(*f, ff)
	return nil
}

func cmdAssemble(args []string) {
	fs := flag.NewFlagSet("bundle-v2", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "path to manifest.json")
	proofPath := fs.String("proof", "", "path to the CAPZ proof container")
	out := fs.String("out", "", "output directory or .zip path (without extension)")
	asZip := fs.Bool("zip", false, "write out.zip instead of a directory")
	force := fs.Bool("force", false, "overwrite an existing output")
	var files fileFlagList
	fs.Var(&files, "file", "additional name=path[:role[:optional]], repeatable")
	fs.Parse(args)

	if *out == "" {
		log.Fatal("cap-bundle: -out is required")
	}

	inputs := make([]bundle.Input, 0, len(files)+2)
	if *manifestPath != "" {
		b, err := os.ReadFile(*manifestPath)
		if err != nil {
			log.Fatalf("cap-bundle: read manifest: %v", err)
		}
		inputs = append(inputs, bundle.Input{Name: bundle.FileManifest, Bytes: b, Role: "manifest"})
	}
	if *proofPath != "" {
		b, err := os.ReadFile(*proofPath)
		if err != nil {
			log.Fatalf("cap-bundle: read proof: %v", err)
		}
		inputs = append(inputs, bundle.Input{Name: bundle.FileProofCAPZ, Bytes: b, Role: "proof"})
	}
	for _, f := range files {
		b, err := os.ReadFile(f.path)
		if err != nil {
			log.Fatalf("cap-bundle: read %s: %v", f.path, err)
		}
		inputs = append(inputs, bundle.Input{Name: f.name, Bytes: b, Role: f.role, Optional: f.optional})
	}

	outputPath := *out
	if *asZip {
		outputPath += ".zip"
	}

	meta, err := bundle.Assemble(inputs, bundle.AssembleOptions{
		OutputPath: outputPath,
		AsZip:      *asZip,
		Force:      *force,
	})
	if err != nil {
		log.Fatalf("cap-bundle: assemble: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(meta)
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify-bundle", flag.ExitOnError)
	bundlePath := fs.String("bundle", "", "bundle directory or .zip path")
	checkTimestamp := fs.Bool("check-timestamp", false, "require a valid time anchor")
	checkRegistry := fs.Bool("check-registry", false, "require a registry match")
	fs.Parse(args)

	src, err := bundle.BundleSourceFromPath(*bundlePath)
	if err != nil {
		log.Fatalf("cap-bundle: %v", err)
	}
	report, err := bundle.Verify(src, bundle.VerifyOptions{
		CheckTimestamp: *checkTimestamp,
		CheckRegistry:  *checkRegistry,
	})
	if err != nil {
		log.Fatalf("cap-bundle: verify: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(report)
	if report.Status != "ok" {
		os.Exit(1)
	}
}
