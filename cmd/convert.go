package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/ampt/dumpkit/convert"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ConvertMain is wrapped by NewConvertCommand and only exported for testing
// purposes.
var ConvertMain *convert.Main

// NewConvertCommand returns a new cobra command wrapping ConvertMain.
func NewConvertCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	ConvertMain = convert.NewMain()
	convertCommand := &cobra.Command{
		Use:   "convert [dirs...]",
		Short: "convert raw dump files into per-timestep parquet partitions",
		Long: `Convert reads the particle, grid, surface and flow dump files of one or
more simulation directories and writes one parquet partition per timestep.

Runs are resumable. Timesteps which already have a partition are read past
without being decoded, unless --force is given. A truncated final block, as
left by an interrupted solver, is reported as a warning. The command exits
non-zero if any file had a format error, a write error or could not be read.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ConvertMain.Dirs = append(ConvertMain.Dirs, args...)
			cmd.SilenceUsage = true

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			sum, err := ConvertMain.Run(ctx)
			if sum != nil {
				sum.Report(stdout)
			}
			if err != nil {
				return err
			}
			if sum.Failed() {
				return errors.Errorf("conversion finished with %d errors", len(sum.Errors()))
			}
			return nil
		},
	}
	flags := convertCommand.Flags()
	err := commandeer.Flags(flags, ConvertMain)
	if err != nil {
		panic(err)
	}
	return convertCommand
}

func init() {
	subcommandFns["convert"] = NewConvertCommand
}
