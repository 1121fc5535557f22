package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gmlewis/volrender/binvox"
	"github.com/gmlewis/volrender/photon"
	"github.com/gmlewis/volrender/slicer"
	"github.com/gmlewis/volrender/voxels"
	"github.com/gmlewis/volrender/zipper"
)

// NewExportCmd writes slices and voxel models of containers.
func NewExportCmd(ctx context.Context, a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <file>...",
		Short: "write image slices, binvox, cbddlp, SVX, or STL files",
		Long: `Export one mipmap level of each container. --zip writes the level as PNG Z slices.
--binvox, --dlp, --svx, and --stl treat the container as a mask and write one file per
structure (or only --index). With --index, --zip writes that structure's slices.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			writeBinvox, _ := flags.GetBool("binvox")
			writeDLP, _ := flags.GetBool("dlp")
			writeSTL, _ := flags.GetBool("stl")
			writeSVX, _ := flags.GetBool("svx")
			writeZip, _ := flags.GetBool("zip")
			level, _ := flags.GetInt("level")
			index, _ := flags.GetUint32("index")
			voxelSize, _ := flags.GetFloat64("voxel-size")
			outDir, _ := flags.GetString("out")

			if !writeBinvox && !writeDLP && !writeSTL && !writeSVX && !writeZip {
				return fmt.Errorf("--binvox, --dlp, --stl, --svx, or --zip must be supplied")
			}

			for _, arg := range args {
				v, err := a.load(ctx, arg)
				if err != nil {
					return err
				}
				s, err := slicer.New(v.Header, v.Levels, level)
				if err != nil {
					return fmt.Errorf("%v: %w", arg, err)
				}
				baseName := exportBase(a, arg, outDir)

				if writeZip {
					if index == 0 {
						log.Infof("Slicing %v into a ZIP file (%v slices)...", arg, s.NumZSlices())
						if err := zipper.Slice(baseName+".zip", s); err != nil {
							return fmt.Errorf("zipper.Slice: %w", err)
						}
					} else if err := zipper.SliceMask(fmt.Sprintf("%v-structure%v.zip", baseName, index), s, index); err != nil {
						return fmt.Errorf("zipper.SliceMask: %w", err)
					}
				}
				if !writeBinvox && !writeDLP && !writeSTL && !writeSVX {
					continue
				}

				indices := []uint32{index}
				if index == 0 {
					indices = s.Indices()
				}
				log.Infof("Slicing %v structures of %v into separate files (%v slices each)...", len(indices), arg, s.NumZSlices())
				for _, idx := range indices {
					name := fmt.Sprintf("%v-structure%v", baseName, idx)
					if writeBinvox {
						if err := binvox.Slice(name+".binvox", s, idx); err != nil {
							return fmt.Errorf("binvox.Slice: %w", err)
						}
					}
					if writeDLP {
						// One layer per Z slice of this level.
						thickness := float32(voxelSize*1000) * 2 * s.VoxelRadius()
						if err := photon.Slice(name+".cbddlp", s, idx, photon.DefaultSettings(thickness)); err != nil {
							return fmt.Errorf("photon.Slice: %w", err)
						}
					}
					if writeSTL {
						if err := voxels.Slice(name+".stl", s, idx); err != nil {
							return fmt.Errorf("voxels.Slice: %w", err)
						}
					}
					if writeSVX {
						md := zipper.Metadata{Author: "volrender", Date: time.Now().Format("2006-01-02"), VoxelSize: voxelSize}
						if err := zipper.SVXSlice(name+".svx", s, idx, md); err != nil {
							return fmt.Errorf("zipper.SVXSlice: %w", err)
						}
					}
				}
			}
			log.Info("Done.")
			return nil
		},
	}
	f := cmd.Flags()
	f.Bool("binvox", false, "Write binvox files, one per structure")
	f.Bool("dlp", false, "Write ChiTuBox .cbddlp files (same as AnyCubic .photon), one per structure")
	f.Bool("stl", false, "Write STL files, one per structure")
	f.Bool("svx", false, "Write SVX voxel files, one per structure")
	f.Bool("zip", false, "Write PNG slices to a ZIP file")
	f.Int("level", 0, "Mipmap level to export")
	f.Uint32("index", 0, "Only export this structure (0 means all)")
	f.Float64("voxel-size", 1e-6, "Edge length of one base level voxel in meters (SVX and cbddlp layer thickness)")
	f.String("out", "", "Output directory (default is next to the input)")
	return cmd
}

// exportBase strips the container and compression extensions of path and
// moves it to outDir if set.
func exportBase(a *app, path, outDir string) string {
	base := path
	if r, err := a.cfg.Resolver(); err == nil {
		base = r.DecompressedNameFor(base)
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if outDir != "" {
		base = filepath.Join(outDir, filepath.Base(base))
	}
	return base
}
