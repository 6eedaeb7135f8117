package main

import (
	"encoding/json"
	"fmt"
	"os"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/urfave/cli/v2"
)

var specCommand = &cli.Command{
	Name:      "spec",
	Usage:     "create a starter bundle specification file",
	ArgsUsage: "",
	Description: `The spec command creates a new ` + specConfig + ` in the bundle directory.

The generated file is a starter: it names "/bin/true" as the process to run
inside the bundle's own rootfs, with a proc mount at /proc, a 5-second
RLIMIT_CPU and a pids limit of 64. Edit it to describe the binary you
actually want sandboxed.`,
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "bundle", Aliases: []string{"b"}, Value: "", Usage: "path to the bundle directory"},
	},
	Action: func(c *cli.Context) error {
		bundle := c.String("bundle")
		if bundle != "" {
			if err := os.Chdir(bundle); err != nil {
				return err
			}
		}

		if _, err := os.Stat(specConfig); err == nil {
			return fmt.Errorf("file %s exists, remove it first", specConfig)
		} else if !os.IsNotExist(err) {
			return err
		}

		spec := exampleSpec()
		data, err := json.MarshalIndent(spec, "", "\t")
		if err != nil {
			return err
		}
		return os.WriteFile(specConfig, data, 0o644)
	},
}

// exampleSpec is a minimal starter spec: the subset of the OCI runtime
// spec that specadapt.FromOCIProcess actually reads (spec.md §1
// Non-goals: no OCI hook/lifecycle support, no image layers).
func exampleSpec() *specs.Spec {
	return &specs.Spec{
		Version:  specs.Version,
		Hostname: "carapace-sandbox",
		Root: &specs.Root{
			Path:     "rootfs",
			Readonly: false,
		},
		Process: &specs.Process{
			Args: []string{"/bin/true"},
			Env:  []string{"PATH=/usr/bin:/bin"},
			Rlimits: []specs.POSIXRlimit{
				{Type: "RLIMIT_CPU", Hard: 5, Soft: 5},
			},
		},
		Mounts: []specs.Mount{
			{Destination: "/proc", Type: "proc", Source: "proc"},
		},
		Linux: &specs.Linux{
			Resources: &specs.LinuxResources{
				Pids: &specs.LinuxPids{Limit: 64},
			},
		},
	}
}
