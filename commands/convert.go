package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maastricht-university/eaf2kaldi/orchestrator"
)

func newConvertCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [pattern]",
		Short: "Write segments, text, utt2spk and speakers files for each recording",
		Long: `Convert every annotation file matching the glob pattern (default
corpus.pattern, relative to corpus.root). Files are processed one at a
time in sorted order. The first failure aborts the batch unless
--keep-going is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				a.v.Set("corpus.pattern", args[0])
			}
			conf, err := a.load()
			if err != nil {
				return err
			}
			log := a.logger(conf, cmd.ErrOrStderr())

			p, err := orchestrator.NewPipeline(conf, log)
			if err != nil {
				return err
			}
			report, err := p.Run(cmd.Context(), conf.Pattern())
			if report != nil {
				utts := 0
				for _, r := range report.Recordings {
					utts += r.Utterances
				}
				fmt.Fprintf(cmd.OutOrStdout(), "converted %d recordings, %d utterances, %d failed\n",
					len(report.Recordings), utts, len(report.Failures))
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("root", "", "corpus root directory")
	f.String("terminators", "", "characters that end an utterance")
	f.Bool("seconds", false, "write segment times in seconds")
	f.Bool("keep-going", false, "continue with the next recording after a failure")
	f.String("report", "", "write a YAML batch report to this path")
	for key, flag := range map[string]string{
		"corpus.root":           "root",
		"segmenter.terminators": "terminators",
		"output.seconds":        "seconds",
		"pipeline.keep_going":   "keep-going",
		"paths.report":          "report",
	} {
		mustBindFlag(a.v, key, f.Lookup(flag))
	}
	return cmd
}
