package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/dataset"
	"github.com/jaffee/commandeer"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// ShowConfig is the configuration of the show command.
type ShowConfig struct {
	Kind    string   `help:"Kind of the timestep to show."`
	Step    int      `help:"Timestep to show. Negative means the last one."`
	Columns []string `help:"Columns to show. Empty means all."`
	Rows    int      `help:"Maximum number of rows to print. Negative means all."`
}

// NewShowCommand returns a command printing one timestep of a converted
// directory.
func NewShowCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &ShowConfig{
		Kind: string(dumpkit.Particle),
		Step: -1,
		Rows: 10,
	}
	showCommand := &cobra.Command{
		Use:   "show <dir>",
		Short: "print the header and first rows of one timestep",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return show(stdout, dataset.Open(args[0]), conf)
		},
	}
	err := commandeer.Flags(showCommand.Flags(), conf)
	if err != nil {
		panic(err)
	}
	return showCommand
}

func show(w io.Writer, ds *dataset.Dataset, conf *ShowConfig) error {
	k, err := dumpkit.ParseKind(conf.Kind)
	if err != nil {
		return err
	}
	step := int64(conf.Step)
	if step < 0 {
		steps, err := ds.Timesteps(k)
		if err != nil {
			return err
		}
		if len(steps) == 0 {
			return errors.Errorf("no %s timesteps in %s", k, ds.Dir())
		}
		step = steps[len(steps)-1]
	}
	blk, err := ds.Read(k, step, conf.Columns...)
	if err != nil {
		return errors.Wrapf(err, "%s timestep %d", k, step)
	}

	fmt.Fprintf(w, "%s timestep %d: %d rows, schema epoch %d\n", k, blk.Timestep, blk.Rows, blk.Epoch())
	b := blk.Box
	fmt.Fprintf(w, "box %s: [%g %g] [%g %g] [%g %g]\n", strings.Join(b.Flags, " "),
		b.Lo[0], b.Hi[0], b.Lo[1], b.Hi[1], b.Lo[2], b.Hi[2])

	n := blk.Rows
	if conf.Rows >= 0 && conf.Rows < n {
		n = conf.Rows
	}
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\t\n", strings.Join(blk.Schema.Names(), "\t"))
	for i := 0; i < n; i++ {
		fmt.Fprintf(tw, "%s\t\n", strings.Join(blk.Row(i), "\t"))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n < blk.Rows {
		fmt.Fprintf(w, "... %d more rows\n", blk.Rows-n)
	}
	return nil
}

func init() {
	subcommandFns["show"] = NewShowCommand
}
