// Command carapace drives the sandbox core from the command line: it
// reads an OCI-style bundle (config.json + rootfs), runs the configured
// binary inside the sandbox, and prints the resulting SandboxOutput as
// JSON. Argument parsing, logging setup and profiling live here, outside
// the core (spec.md §1 "deliberately out of scope").
package main

import (
	"fmt"
	"os"

	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/carapace-run/carapace/sandbox"
)

func main() {
	// The re-exec'd child init path never reaches the CLI parser: it is
	// detected and dispatched before anything else runs (spec §4.B, §9
	// "error propagation across the clone boundary").
	if sandbox.IsChildInit(os.Args) {
		sandbox.ChildMain()
		return
	}

	app := &cli.App{
		Name:  "carapace",
		Usage: "run an untrusted binary under strict isolation and resource accounting",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "logrus level (debug, info, warn, error)"},
			&cli.StringFlag{Name: "profile", Usage: "enable pkg/profile mode (cpu, mem, block)"},
		},
		Before: func(c *cli.Context) error {
			lvl, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return fmt.Errorf("invalid log-level: %w", err)
			}
			logrus.SetLevel(lvl)
			if mode := c.String("profile"); mode != "" {
				stop := startProfile(mode)
				c.App.Metadata["profileStop"] = stop
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if stop, ok := c.App.Metadata["profileStop"].(interface{ Stop() }); ok {
				stop.Stop()
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			specCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Error("carapace failed")
		os.Exit(1)
	}
}

func startProfile(mode string) interface{ Stop() } {
	switch mode {
	case "cpu":
		return profile.Start(profile.CPUProfile)
	case "mem":
		return profile.Start(profile.MemProfile)
	case "block":
		return profile.Start(profile.BlockProfile)
	default:
		logrus.Warnf("unknown profile mode %q, ignoring", mode)
		return nil
	}
}
