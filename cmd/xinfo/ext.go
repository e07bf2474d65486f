package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Extensions probed when none are named on the command line.
var wellKnownExtensions = []string{
	"BIG-REQUESTS",
	"XC-MISC",
	"Generic Event Extension",
	"RANDR",
	"RENDER",
	"XFIXES",
	"XInputExtension",
	"MIT-SHM",
	"Composite",
	"DAMAGE",
	"SHAPE",
	"XKEYBOARD",
	"Present",
	"DRI3",
	"GLX",
	"SYNC",
}

func extCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ext [NAME...]",
		Short: "Query extensions",
		Long:  "Query the named extensions, or probe a list of well-known ones.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExt(args)
		},
	}
}

func runExt(names []string) error {
	conn, ctx, cancel, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	if len(names) == 0 {
		names = wellKnownExtensions
	}

	// Get every query on the wire before collecting any reply.
	for _, name := range names {
		if err := conn.PrefetchExtension(ctx, name); err != nil {
			return err
		}
	}

	for _, name := range names {
		info, err := conn.ExtensionInfo(ctx, name)
		if err != nil {
			return err
		}
		if info == nil {
			fmt.Printf("%-26s absent\n", name)
			continue
		}
		fmt.Printf("%-26s opcode %3d", name, info.MajorOpcode)
		if info.FirstEvent != 0 {
			fmt.Printf("  first event %3d", info.FirstEvent)
		}
		if info.FirstError != 0 {
			fmt.Printf("  first error %3d", info.FirstError)
		}
		fmt.Println()
	}
	return nil
}
