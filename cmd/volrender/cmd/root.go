package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/profile"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gmlewis/volrender/config"
	"github.com/gmlewis/volrender/loader"
	"github.com/gmlewis/volrender/logging"
)

// app is the state shared by every subcommand once flags are parsed.
type app struct {
	cfg     *config.Config
	logFile io.Closer
	prof    interface{ Stop() }
}

func NewRoot(ctx context.Context, gitsha string) *cobra.Command {
	a := &app{cfg: config.DefaultConfig()}
	cmd := &cobra.Command{
		Use:          "volrender",
		Short:        "decode, inspect, export, and view microscopy volumes",
		Long:         "volrender reads multi-resolution KTX volume containers, optionally compressed with lz4, zstd, or gzip.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
		Run: func(cmd *cobra.Command, args []string) {
			printCommandTree(cmd.OutOrStdout(), cmd, 0)
		},
	}
	cmd.AddCommand(
		NewVersionCmd(ctx, gitsha),
		NewInspectCmd(ctx, a),
		NewDecompressCmd(ctx, a),
		NewExportCmd(ctx, a),
		NewViewCmd(ctx, a),
	)
	pf := cmd.PersistentFlags()
	pf.String("config", "", "YAML config file")
	pf.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	pf.String("profile", "", "Write a cpu or mem profile to the current directory")
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = strings.ToLower(level)
	}
	a.cfg = cfg

	a.logFile, err = logging.Setup(cfg)
	if err != nil {
		return err
	}

	switch p, _ := cmd.Flags().GetString("profile"); p {
	case "":
	case "cpu":
		a.prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."))
	case "mem":
		a.prof = profile.Start(profile.MemProfile, profile.ProfilePath("."))
	default:
		return fmt.Errorf("unknown profile %q (want cpu or mem)", p)
	}
	return nil
}

func (a *app) teardown() {
	if a.prof != nil {
		a.prof.Stop()
		a.prof = nil
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			log.Warnf("closing log: %v", err)
		}
		a.logFile = nil
	}
}

// loader returns a loader over files using the configured compression
// chain.
func (a *app) loader(files loader.FileSource) (*loader.Loader, error) {
	r, err := a.cfg.Resolver()
	if err != nil {
		return nil, err
	}
	return &loader.Loader{Resolver: r, Files: files, Concurrency: a.cfg.Loader.Concurrency}, nil
}

// load reads one local volume.
func (a *app) load(ctx context.Context, path string) (*loader.Volume, error) {
	l, err := a.loader(loader.LocalFiles{})
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}

func printCommandTree(w io.Writer, cmd *cobra.Command, indent int) {
	fmt.Fprintln(w, strings.Repeat("\t", indent), cmd.Use+":", cmd.Short)
	for _, subCmd := range cmd.Commands() {
		printCommandTree(w, subCmd, indent+1)
	}
}

func NewVersionCmd(ctx context.Context, gitsha string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "git sha for this build",
		Long:  "git sha for this build",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), gitsha)
		},
	}
	return cmd
}
