package cmd

import (
	"fmt"
	"io"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/catalog"
	"github.com/ampt/dumpkit/convert"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RebuildConfig is the configuration of the rebuild command.
type RebuildConfig struct {
	Manifest string   `help:"Catalog manifest store to rebuild: bolt or leveldb."`
	Kinds    []string `help:"Kinds to rebuild. Empty means all."`
	Verbose  bool     `help:"Enable verbose logging."`
}

// NewRebuildCommand returns a command which rebuilds the catalog manifest of
// a converted directory from its partitions.
func NewRebuildCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &RebuildConfig{Manifest: convert.ManifestBolt}
	rebuildCommand := &cobra.Command{
		Use:   "rebuild <dir>",
		Short: "rebuild the catalog manifest of a converted directory",
		Long: `Rebuild discards the catalog manifest of a converted directory and
recreates it by reading the metadata of every partition. Leftover temporary
files from an interrupted conversion are removed first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var log dumpkit.Logger = dumpkit.NewStdLogger(stderr)
			if conf.Verbose {
				log = dumpkit.NewVerboseLogger(stderr)
			}
			return rebuild(stdout, log, args[0], conf)
		},
	}
	err := commandeer.Flags(rebuildCommand.Flags(), conf)
	if err != nil {
		panic(err)
	}
	return rebuildCommand
}

func rebuild(w io.Writer, log dumpkit.Logger, dir string, conf *RebuildConfig) (err error) {
	if conf.Manifest == convert.ManifestNone {
		return errors.New("nothing to rebuild without a manifest store")
	}
	kinds, err := dumpkit.ParseKinds(conf.Kinds)
	if err != nil {
		return err
	}
	removed, err := catalog.Cleanup(dir)
	if err != nil {
		return err
	}
	for _, name := range removed {
		log.Debugf("removed stale temp file %s", name)
	}

	man, _, err := convert.OpenManifest(dir, conf.Manifest, log)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := man.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing manifest")
		}
	}()
	for _, k := range kinds {
		cat, err := catalog.Open(dir, k, man, catalog.OptLogger(log))
		if err != nil {
			return errors.Wrapf(err, "opening %s catalog", k)
		}
		if err := cat.Rebuild(); err != nil {
			return errors.Wrapf(err, "rebuilding %s catalog", k)
		}
		fmt.Fprintf(w, "%s: %d timesteps\n", k, cat.Len())
	}
	return nil
}

func init() {
	subcommandFns["rebuild"] = NewRebuildCommand
}
