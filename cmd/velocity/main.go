package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/spade-lang/velocity/elp"
	"github.com/spade-lang/velocity/memory"
	"github.com/spade-lang/velocity/version"
	"github.com/spade-lang/velocity/vm"
)

func main() {
	app := &cli.Command{
		Name:  "velocity",
		Usage: "The Velocity virtual machine for Spade bytecode",
		Commands: []*cli.Command{
			versionCommand,
			inspectCommand,
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "settings",
				Aliases: []string{"s"},
				Usage:   "Load VM settings from a YAML `FILE`",
			},
			&cli.StringSliceFlag{
				Name:    "modpath",
				Aliases: []string{"p"},
				Usage:   "Add `DIR` to the module search path",
			},
			&cli.IntFlag{
				Name:  "stack-depth",
				Usage: "Per-thread call stack depth",
			},
			&cli.StringFlag{
				Name:  "entry",
				Usage: "Entry point member name",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print heap statistics after execution",
			},
			&cli.BoolFlag{
				Name:    "interactive",
				Aliases: []string{"a"},
				Usage:   "Start the interactive inspector",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			settings, err := resolveSettings(cmd)
			if err != nil {
				return err
			}
			manager := memory.NewBasicManager()
			machine, err := vm.New(manager, settings)
			if err != nil {
				return err
			}
			machine.SetOutput(os.Stdout)

			if cmd.Bool("interactive") {
				return runInspector(machine, manager)
			}

			args := cmd.Args().Slice()
			if len(args) == 0 {
				return cli.Exit("no bytecode file given", 64)
			}
			code, err := machine.StartFile(args[0], args[1:])
			if err != nil {
				fmt.Fprintf(os.Stderr, "velocity: %v\n", err)
			}
			if cmd.Bool("stats") {
				fmt.Fprintln(os.Stderr, manager.Stats())
			}
			if code != 0 {
				return cli.Exit("", code)
			}
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if exit, ok := err.(cli.ExitCoder); ok {
			if msg := err.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "velocity: %s\n", msg)
			}
			os.Exit(exit.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "velocity: %v\n", err)
		os.Exit(1)
	}
}

func resolveSettings(cmd *cli.Command) (vm.Settings, error) {
	settings := vm.DefaultSettings()
	if path := cmd.String("settings"); path != "" {
		loaded, err := vm.LoadSettings(path)
		if err != nil {
			return settings, err
		}
		settings = loaded
	}
	if modPath := cmd.StringSlice("modpath"); len(modPath) > 0 {
		settings.ModPath = append(settings.ModPath, modPath...)
	}
	if depth := cmd.Int("stack-depth"); depth > 0 {
		settings.StackDepth = int(depth)
	}
	if entry := cmd.String("entry"); entry != "" {
		settings.EntryName = entry
	}
	return settings, nil
}

var versionCommand = &cli.Command{
	Name:  "version",
	Usage: "Print the VM version",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		settings := vm.DefaultSettings()
		fmt.Printf("%s %s\n", settings.InfoString(), version.Version())
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Verify a module file and print its structure counts",
	ArgsUsage: "FILE",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		path := cmd.Args().First()
		if path == "" {
			return cli.Exit("no bytecode file given", 64)
		}
		info, err := elp.ReadFile(path)
		if err != nil {
			return err
		}
		if err := elp.NewVerifier(info, path).Verify(); err != nil {
			return err
		}
		fmt.Printf("%s: ok\n", path)
		fmt.Printf("  magic:     0x%08x\n", info.Magic)
		fmt.Printf("  type:      0x%02x\n", info.Type)
		fmt.Printf("  constants: %d\n", len(info.ConstantPool))
		fmt.Printf("  globals:   %d\n", len(info.Globals))
		fmt.Printf("  objects:   %d\n", len(info.Objects))
		return nil
	},
}
