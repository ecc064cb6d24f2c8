package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ampt/dumpkit"
	"github.com/ampt/dumpkit/dataset"
	"github.com/jaffee/commandeer"
	"github.com/spf13/cobra"
)

// LsConfig is the configuration of the ls command.
type LsConfig struct {
	Kinds []string `help:"Kinds to list. Empty means all."`
	Steps bool     `help:"Print every timestep rather than a range."`
}

// NewLsCommand returns a command listing the timesteps of a converted
// directory.
func NewLsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := &LsConfig{}
	lsCommand := &cobra.Command{
		Use:   "ls <dir>",
		Short: "list the timesteps of a converted directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := dumpkit.ParseKinds(conf.Kinds)
			if err != nil {
				return err
			}
			return listTimesteps(stdout, dataset.Open(args[0]), kinds, conf.Steps)
		},
	}
	err := commandeer.Flags(lsCommand.Flags(), conf)
	if err != nil {
		panic(err)
	}
	return lsCommand
}

func listTimesteps(w io.Writer, ds *dataset.Dataset, kinds []dumpkit.Kind, all bool) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, k := range kinds {
		steps, err := ds.Timesteps(k)
		if err != nil {
			return err
		}
		switch {
		case len(steps) == 0:
			fmt.Fprintf(tw, "%s\t0 timesteps\t\n", k)
		case all:
			strs := make([]string, len(steps))
			for i, s := range steps {
				strs[i] = fmt.Sprint(s)
			}
			fmt.Fprintf(tw, "%s\t%d timesteps\t%s\n", k, len(steps), strings.Join(strs, " "))
		default:
			fmt.Fprintf(tw, "%s\t%d timesteps\t%d .. %d\n", k, len(steps), steps[0], steps[len(steps)-1])
		}
	}
	return tw.Flush()
}

func init() {
	subcommandFns["ls"] = NewLsCommand
}
