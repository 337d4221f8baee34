package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/Comparador/internal/fixture"
	"github.com/MikeSquared-Agency/Comparador/internal/scoring"
)

func rankCmd() *cobra.Command {
	var (
		fixturePath string
		detail      bool
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Score and rank the lots of a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			if fixturePath == "" {
				return errors.New("--fixture is required")
			}
			set, err := fixture.Load(fixturePath)
			if err != nil {
				return err
			}
			res, err := scoring.Compare(set.Tree, set.Lots, set.Evaluations, set.Tree.Factors())
			if err != nil {
				return err
			}
			return printRanking(cmd.OutOrStdout(), res, detail)
		},
	}
	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "path to the YAML fixture")
	cmd.Flags().BoolVar(&detail, "detail", false, "print the per-criterion breakdown of every lot")
	return cmd
}

func printRanking(out io.Writer, res scoring.Comparison, detail bool) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tLOT\tSCORE\tMAX\tPERCENT\tCOMPLETE")
	for _, l := range res.Ranking {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d/%d\n",
			l.Rank, l.Name,
			scoring.FormatScore(l.Total), scoring.FormatScore(l.MaxTotal),
			scoring.FormatPercentage(l.Percentage), l.Evaluated, l.CriteriaCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if !detail {
		return nil
	}

	for _, l := range res.Lots {
		fmt.Fprintf(out, "\n%s (#%d)\n", l.Name, l.Rank)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, c := range l.Classifications {
			fmt.Fprintf(tw, "  %s\t\t%s\t%s\t%s\n", c.Name,
				scoring.FormatScore(c.Score), scoring.FormatScore(c.MaxScore), scoring.FormatPercentage(c.Percentage))
			for _, cr := range c.Criteria {
				choice := "-"
				if cr.Selection != nil {
					choice = cr.Selection.Name
				}
				fmt.Fprintf(tw, "    %s\t%s\t%s\t%s\t%s\n", cr.Name, choice,
					scoring.FormatScore(cr.Score), scoring.FormatScore(cr.MaxScore), scoring.FormatPercentage(cr.Percentage))
			}
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
