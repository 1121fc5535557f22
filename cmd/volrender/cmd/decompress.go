package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gmlewis/volrender/ktx"
)

// NewDecompressCmd writes the uncompressed form of a file.
func NewDecompressCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decompress <in> [out]",
		Short: "uncompress a volume file",
		Long:  "Uncompress <in> with the first algorithm of the compression chain that claims it. The output name defaults to <in> without its compression extension.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.cfg.Resolver()
			if err != nil {
				return err
			}
			in := args[0]
			out := r.DecompressedNameFor(in)
			if len(args) == 2 {
				out = args[1]
			}
			if out == in {
				return fmt.Errorf("%v: output would overwrite input; name the output file", in)
			}

			f, err := os.Open(in)
			if err != nil {
				return err
			}
			defer f.Close()
			var buf []byte
			if strict, _ := cmd.Flags().GetBool("strict"); strict {
				buf, err = r.ResolveStrict(filepath.Base(in), f)
			} else {
				buf, err = r.Resolve(filepath.Base(in), f)
			}
			if err != nil {
				return fmt.Errorf("%v: %w", in, err)
			}

			if check, _ := cmd.Flags().GetBool("ktx"); check {
				h, levels, err := ktx.DecodeContext(ctx, bytes.NewReader(buf))
				if err != nil {
					return fmt.Errorf("%v: %w", in, err)
				}
				var re bytes.Buffer
				if err := ktx.Encode(&re, h, levels); err != nil {
					return fmt.Errorf("%v: %w", in, err)
				}
				buf = re.Bytes()
			}

			if err := os.WriteFile(out, buf, 0644); err != nil {
				return err
			}
			log.Infof("Wrote %v (%v bytes)", out, len(buf))
			return nil
		},
	}
	cmd.Flags().Bool("strict", false, "fail unless a decompressing algorithm claims the file")
	cmd.Flags().Bool("ktx", false, "decode the result as a KTX container and write it back out normalized")
	return cmd
}
