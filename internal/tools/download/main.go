// Command download fetches a runtime asset (python.wasm, picoc.wasm, bsh.jar)
// into libs/ unless it is already there.
//
//	go run ./internal/tools/download [-sha256 HEX] <url> <output>
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func main() {
	sum := flag.String("sha256", "", "expected SHA-256 of the file, hex encoded")
	timeout := flag.Duration("timeout", 5*time.Minute, "download timeout")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: download [-sha256 HEX] <url> <output>")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := fetch(ctx, http.DefaultClient, flag.Arg(0), flag.Arg(1), *sum); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fetch downloads url to output through a temp file in the same directory,
// so a partial download never looks like an installed asset.
func fetch(ctx context.Context, client *http.Client, url, output, want string) error {
	if _, err := os.Stat(output); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(output), filepath.Base(output)+".part-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("download %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if want != "" {
		if got := hex.EncodeToString(h.Sum(nil)); !strings.EqualFold(got, want) {
			return fmt.Errorf("download %s: sha256 %s, want %s", url, got, want)
		}
	}
	return os.Rename(tmp.Name(), output)
}
