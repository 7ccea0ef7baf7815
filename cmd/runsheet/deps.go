package main

import (
	"archive/zip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const defaultPackagesDir = ".runsheet/python/packages"

// pypiBaseURL is replaced in tests.
var pypiBaseURL = "https://pypi.org/pypi"

var pypiClient = &http.Client{Timeout: 60 * time.Second}

func newDepsCmd(c *cli) *cobra.Command {
	var dir string
	packagesDir := func() string {
		if dir != "" {
			return dir
		}
		if c.cfg != nil && c.cfg.Embedded.Packages != "" {
			return c.cfg.Embedded.Packages
		}
		return defaultPackagesDir
	}

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Manage Python packages for the embedded interpreter",
		Long: `Install and manage pure-Python packages that Python files can import.

Packages are downloaded directly from PyPI as wheels. Wheels carrying C
extensions cannot run on the WebAssembly interpreter and are refused.

Point embedded.packages in the config file at the same directory to make
them importable.`,
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Package directory (default: embedded.packages or "+defaultPackagesDir+")")

	install := &cobra.Command{
		Use:   "install [packages...]",
		Short: "Install packages from PyPI",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := packagesDir()
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("create package dir: %w", err)
			}
			for _, spec := range args {
				name := packageName(spec)
				if reason, blocked := blockedPackages[strings.ToLower(name)]; blocked {
					return fmt.Errorf("%s cannot run on the embedded interpreter: %s", name, reason)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Installing %s...\n", name)
				if err := installPackage(cmd.Context(), name, dest); err != nil {
					return fmt.Errorf("install %s: %w", name, err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Done.")
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List installed packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := packagesDir()
			names, err := installedPackages(dest)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No packages installed.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Packages in %s:\n", dest)
			for _, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", n)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove [packages...]",
		Short: "Remove packages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := packagesDir()
			for _, pkg := range args {
				if err := removePackage(dest, pkg); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", pkg)
			}
			return nil
		},
	}

	cmd.AddCommand(install, list, remove)
	return cmd
}

// Packages known not to work on a WASI interpreter.
var blockedPackages = map[string]string{
	"numpy":         "requires C extensions",
	"pandas":        "requires C extensions (numpy)",
	"scipy":         "requires C extensions",
	"matplotlib":    "requires C extensions",
	"pillow":        "requires C extensions",
	"scikit-learn":  "requires C extensions",
	"opencv-python": "requires C extensions",
	"cryptography":  "requires C extensions",
	"lxml":          "requires C extensions",
	"requests":      "needs sockets",
	"httpx":         "needs sockets",
	"urllib3":       "needs sockets",
	"flask":         "needs sockets",
	"django":        "needs sockets",
}

type pypiFile struct {
	PackageType string `json:"packagetype"`
	Filename    string `json:"filename"`
	URL         string `json:"url"`
}

type pypiRelease struct {
	Info struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"info"`
	URLs []pypiFile `json:"urls"`
}

// packageName strips a version constraint such as ">=2.0" from spec.
func packageName(spec string) string {
	if i := strings.IndexAny(spec, "<>=!~"); i != -1 {
		return strings.TrimSpace(spec[:i])
	}
	return strings.TrimSpace(spec)
}

func installPackage(ctx context.Context, name, dest string) error {
	release, err := fetchRelease(ctx, name)
	if err != nil {
		return err
	}
	wheel := pureWheel(release.URLs)
	if wheel == "" {
		return fmt.Errorf("no pure-Python wheel for %s %s", release.Info.Name, release.Info.Version)
	}

	tmp, err := os.CreateTemp("", "runsheet-*.whl")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := download(ctx, wheel, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return extractWheel(tmp.Name(), dest)
}

func fetchRelease(ctx context.Context, name string) (*pypiRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json", pypiBaseURL, name), nil)
	if err != nil {
		return nil, err
	}
	resp, err := pypiClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch package info: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("package %s not found on PyPI", name)
	default:
		return nil, fmt.Errorf("PyPI returned %s", resp.Status)
	}

	var release pypiRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("parse PyPI response: %w", err)
	}
	return &release, nil
}

func download(ctx context.Context, url string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := pypiClient.Do(req)
	if err != nil {
		return fmt.Errorf("download wheel: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download wheel: %s", resp.Status)
	}
	_, err = io.Copy(w, resp.Body)
	return err
}

// pureWheel returns the URL of a py3-none-any wheel, if the release has one.
func pureWheel(files []pypiFile) string {
	for _, f := range files {
		if f.PackageType != "bdist_wheel" {
			continue
		}
		name := strings.ToLower(f.Filename)
		if strings.Contains(name, "-py3-none-any") || strings.Contains(name, "-py2.py3-none-any") {
			return f.URL
		}
	}
	return ""
}

func extractWheel(wheelPath, dest string) error {
	r, err := zip.OpenReader(wheelPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".so", ".pyd", ".dylib":
			return fmt.Errorf("wheel contains a native extension (%s)", filepath.Base(f.Name))
		}
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		if strings.Contains(f.Name, ".dist-info/") {
			continue
		}
		target := filepath.Join(root, f.Name)
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("wheel entry %q escapes the package dir", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func installedPackages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasSuffix(e.Name(), ".dist-info") && !strings.HasPrefix(e.Name(), "__") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func removePackage(dir, name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid package name %q", name)
	}
	if err := os.RemoveAll(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}
