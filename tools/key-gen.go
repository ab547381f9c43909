// key-gen provisions the daemon's key files: a random master secret is
// expanded with HKDF-SHA256 into separate authentication and envelope keys,
// so both sides only ever exchange the derived material.
package main

import (
	"crypto/rand"
	"crypto/sha256"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize = 32

	authKeyInfo     = "ahrsmon-auth"
	envelopeKeyInfo = "ahrsmon-envelope"
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "gen":
		return runGen(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runGen(args []string, stdout io.Writer, stderr io.Writer) int {
	fgen := flag.NewFlagSet("gen", flag.ContinueOnError)
	fgen.SetOutput(stderr)

	outDir := fgen.String("out", "configs/secrets", "output directory for key files")

	if err := fgen.Parse(args); err != nil {
		return 2
	}

	master := make([]byte, keySize)
	if _, err := rand.Read(master); err != nil {
		fmt.Fprintln(stderr, "generate master secret:", err)
		return 1
	}

	authKey, err := deriveKey(master, authKeyInfo)
	if err != nil {
		fmt.Fprintln(stderr, "derive auth key:", err)
		return 1
	}
	envelopeKey, err := deriveKey(master, envelopeKeyInfo)
	if err != nil {
		fmt.Fprintln(stderr, "derive envelope key:", err)
		return 1
	}

	if err := os.MkdirAll(*outDir, 0o700); err != nil {
		fmt.Fprintln(stderr, "create output directory:", err)
		return 1
	}

	files := map[string][]byte{
		"auth.key":     authKey,
		"envelope.key": envelopeKey,
	}
	for name, key := range files {
		path := filepath.Join(*outDir, name)
		if err := os.WriteFile(path, key, 0o600); err != nil {
			fmt.Fprintln(stderr, "write", path+":", err)
			return 1
		}
		fmt.Fprintf(stdout, "[KeyGen] Wrote %s (%d bytes)\n", path, len(key))
	}
	return 0
}

func deriveKey(master []byte, info string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  go run tools/key-gen.go gen [--out configs/secrets]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  gen   generate fresh authentication and envelope keys")
}
