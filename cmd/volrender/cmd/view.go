package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gmlewis/volrender/loader"
	"github.com/gmlewis/volrender/viewer"
)

// NewViewCmd opens the interactive viewer.
func NewViewCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "display a volume in a window",
		Long: `Display a signal volume, optionally colored by a mask volume. Volumes are read
from --root (a local directory) or --url (an HTTP base URL).

Keys: arrows rotate, +/- change gamma, B toggles the white background,
C toggles a central crop, A accepts the crop, Esc quits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			signal, _ := flags.GetString("signal")
			mask, _ := flags.GetString("mask")
			root, _ := flags.GetString("root")
			url, _ := flags.GetString("url")

			var files loader.FileSource = loader.LocalFiles{Root: root}
			if url != "" {
				files = loader.HTTPFiles{BaseURL: url}
			}
			l, err := a.loader(files)
			if err != nil {
				return err
			}
			return viewer.Run(ctx, a.cfg, l, viewer.Options{SignalID: signal, MaskID: mask})
		},
	}
	pf := cmd.Flags()
	pf.String("signal", "", "Signal volume id")
	pf.String("mask", "", "Mask volume id (optional)")
	pf.String("root", "", "Directory the volume ids are relative to")
	pf.String("url", "", "HTTP base URL the volume ids are relative to")
	cmd.MarkFlagRequired("signal")
	return cmd
}
