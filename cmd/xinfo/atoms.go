package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	x11 "github.com/qlentz/x11"
)

func atomsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "atoms NAME|ID...",
		Short: "Intern atom names, or resolve numeric atom ids",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAtoms(args)
		},
	}
}

func runAtoms(args []string) error {
	conn, ctx, cancel, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	var names []string
	for _, arg := range args {
		if _, err := strconv.ParseUint(arg, 10, 32); err != nil {
			names = append(names, arg)
		}
	}
	// One pipelined batch for the names instead of a round trip each.
	if _, err := conn.PrefetchAtoms(ctx, names...); err != nil {
		return err
	}

	for _, arg := range args {
		if id, err := strconv.ParseUint(arg, 10, 32); err == nil {
			name, err := conn.AtomName(ctx, x11.Atom(id))
			if err != nil {
				return err
			}
			fmt.Printf("%-10s %s\n", arg, name)
			continue
		}
		atom, err := conn.InternAtom(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Printf("%-30s %d\n", arg, atom)
	}
	return nil
}
