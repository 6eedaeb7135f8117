package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli/v2"

	"github.com/carapace-run/carapace/sandbox"
	"github.com/carapace-run/carapace/specadapt"
)

const specConfig = "config.json"

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "run the bundle's process inside the sandbox",
	ArgsUsage: "",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bundle", Aliases: []string{"b"}, Value: ".", Usage: "path to the bundle directory containing config.json"},
		&cli.Uint64Flag{Name: "real-time-limit", Usage: "wall-clock limit in milliseconds (0 = unlimited)"},
		&cli.StringFlag{Name: "cg-limit-memory", Usage: "cgroup memory limit, e.g. 256MiB (overrides the bundle's spec if set)"},
		&cli.Uint64Flag{Name: "cg-limit-max-pids", Usage: "cgroup pids.max (overrides the bundle's spec if set)"},
	},
	Action: func(c *cli.Context) error {
		bundle := c.String("bundle")
		spec, err := loadSpec(filepath.Join(bundle, specConfig))
		if err != nil {
			return err
		}

		rootfs := spec.Root.Path
		if !filepath.IsAbs(rootfs) {
			rootfs = filepath.Join(bundle, rootfs)
		}

		cfg, err := specadapt.FromOCIProcess(spec, rootfs)
		if err != nil {
			return err
		}

		if v := c.Uint64("real-time-limit"); v > 0 {
			cfg.RealTimeLimitMillis = v
		}
		if s := c.String("cg-limit-memory"); s != "" {
			bytes, err := units.RAMInBytes(s)
			if err != nil {
				return fmt.Errorf("invalid cg-limit-memory %q: %w", s, err)
			}
			limit := uint64(bytes)
			cfg.CgroupLimitMemoryBytes = &limit
		}
		if v := c.Uint64("cg-limit-max-pids"); v > 0 {
			cfg.CgroupLimitMaxPids = &v
		}

		out, err := sandbox.Run(cfg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// loadSpec reads and parses an OCI runtime spec, adapted from the
// teacher's spec-loading helper of the same name (originally wired through
// a "system container" transform we do not perform here).
func loadSpec(path string) (*specs.Spec, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("bundle spec %s not found", path)
		}
		return nil, err
	}
	defer f.Close()

	var spec specs.Spec
	if err := json.NewDecoder(f).Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if spec.Root == nil {
		return nil, fmt.Errorf("%s: spec.root is required", path)
	}
	return &spec, nil
}
