package main

import (
	"github.com/spf13/cobra"

	"github.com/pthm/forgewire/lib/generator"
)

func generateCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "generate [packages]",
		Short: "Generate component definitions",
		Long: `Scan packages for //wire:component types and write a *_wire.go file
next to every source file that declares one.

Examples:
  forgewire generate ./...
  forgewire generate ./components/counter
  forgewire generate --dry-run ./...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := generator.New(generator.Options{DryRun: dryRun, Out: cmd.OutOrStdout()})
			return gen.Generate(patterns(args)...)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be generated without writing files")
	return cmd
}

func cleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [packages]",
		Short: "Remove generated *_wire.go files",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := generator.New(generator.Options{Out: cmd.OutOrStdout()})
			return gen.Clean(patterns(args)...)
		},
	}
}

func patterns(args []string) []string {
	if len(args) == 0 {
		return []string{"./..."}
	}
	return args
}
