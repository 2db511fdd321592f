package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/eaf2kaldi/orchestrator"
)

func newSpeakerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "speaker <tier-name>...",
		Short: "Print the speaker label derived from tier names",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := a.load()
			if err != nil {
				return err
			}
			n, err := orchestrator.NewSpeakerNormalizer(conf.Speakers.StripPatterns)
			if err != nil {
				return err
			}
			for _, tier := range args {
				fmt.Fprintln(cmd.OutOrStdout(), n.Normalize(tier))
			}
			return nil
		},
	}
}
