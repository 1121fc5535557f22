package cmd

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/gmlewis/volrender/loader"
	"github.com/gmlewis/volrender/slicer"
	"github.com/gmlewis/volrender/voxels"
)

// NewInspectCmd prints the header, metadata, and levels of containers.
func NewInspectCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <file>...",
		Short: "print container header and metadata",
		Long:  "Print the header, key/value metadata, and mipmap levels of each container. With --structures, also list the structures of a mask volume and how many connected pieces each has.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			structures, _ := cmd.Flags().GetBool("structures")
			out := cmd.OutOrStdout()
			for _, arg := range args {
				v, err := a.load(ctx, arg)
				if err != nil {
					return err
				}
				printVolume(out, v)
				if structures {
					if err := printStructures(out, v); err != nil {
						return fmt.Errorf("%v: %w", arg, err)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().Bool("structures", false, "list mask structures and their connected components")
	return cmd
}

func printVolume(w io.Writer, v *loader.Volume) {
	h := v.Header
	fmt.Fprintf(w, "%v:\n", v.ID)
	fmt.Fprintf(w, "  byte order: %v\n", h.ByteOrder)
	fmt.Fprintf(w, "  size: %vx%vx%v\n", h.PixelWidth, h.PixelHeight, h.PixelDepth)
	fmt.Fprintf(w, "  type: 0x%04X (%v bytes), format: 0x%04X, internal format: 0x%04X\n", h.GLType, h.GLTypeSize, h.GLFormat, h.GLInternalFormat)
	fmt.Fprintf(w, "  array elements: %v, faces: %v\n", h.NumberOfArrayElements, h.NumberOfFaces)
	for _, kv := range h.KeyValues {
		fmt.Fprintf(w, "  %v = %v\n", kv.Key, printable(kv.Value))
	}
	for i, level := range v.Levels {
		x, y, z := h.LevelDims(i)
		fmt.Fprintf(w, "  level %v: %vx%vx%v, %v bytes\n", i, x, y, z, level.Size)
	}
}

// printable shows text values as text and anything else as hex.
func printable(value []byte) string {
	if n := len(value); n > 0 && value[n-1] == 0 {
		value = value[:n-1]
	}
	if utf8.Valid(value) {
		return fmt.Sprintf("%q", value)
	}
	return fmt.Sprintf("% X", value)
}

func printStructures(w io.Writer, v *loader.Volume) error {
	s, err := slicer.New(v.Header, v.Levels, 0)
	if err != nil {
		return err
	}
	indices := s.Indices()
	fmt.Fprintf(w, "  %v structures\n", len(indices))
	for _, idx := range indices {
		n, err := voxels.Components(s, idx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  structure %v: %v components\n", idx, n)
	}
	return nil
}
