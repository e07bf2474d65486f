package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func infoCmd() *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print server setup information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(full)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Also print per-screen details")

	return cmd
}

func runInfo(full bool) error {
	conn, ctx, cancel, err := connect()
	if err != nil {
		return err
	}
	defer cancel()
	defer conn.Close()

	setup := conn.Setup()
	fmt.Printf("vendor:             %s\n", setup.Vendor)
	fmt.Printf("release:            %d\n", setup.ReleaseNumber)
	fmt.Printf("protocol version:   %d.%d\n", setup.ProtocolMajorVersion, setup.ProtocolMinorVersion)
	fmt.Printf("screens:            %d (using %d)\n", len(setup.Roots), conn.ScreenNumber())
	fmt.Printf("resource id base:   0x%08x\n", setup.ResourceIDBase)
	fmt.Printf("resource id mask:   0x%08x\n", setup.ResourceIDMask)
	fmt.Printf("motion buffer size: %d\n", setup.MotionBufferSize)
	fmt.Printf("image byte order:   %s\n", byteOrderName(setup.ImageByteOrder))
	fmt.Printf("keycode range:      %d-%d\n", setup.MinKeycode, setup.MaxKeycode)

	maxReq, err := conn.MaximumRequestBytes(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("max request bytes:  %d\n", maxReq)

	id, err := conn.GenerateID(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("sample resource id: 0x%08x\n", id)

	if !full {
		return nil
	}
	for i, screen := range setup.Roots {
		fmt.Printf("\nscreen %d:\n", i)
		fmt.Printf("  root window:  0x%08x\n", screen.Root)
		fmt.Printf("  dimensions:   %dx%d pixels (%dx%d mm)\n",
			screen.WidthInPixels, screen.HeightInPixels,
			screen.WidthInMillimeters, screen.HeightInMillimeters)
		fmt.Printf("  root depth:   %d\n", screen.RootDepth)
		fmt.Printf("  root visual:  0x%x\n", screen.RootVisual)
		fmt.Printf("  white pixel:  0x%06x\n", screen.WhitePixel)
		fmt.Printf("  black pixel:  0x%06x\n", screen.BlackPixel)
		fmt.Printf("  depths:       %d\n", len(screen.AllowedDepths))
	}
	return nil
}

func byteOrderName(order byte) string {
	if order == 0 {
		return "little-endian"
	}
	return "big-endian"
}
