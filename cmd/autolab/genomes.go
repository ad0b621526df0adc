package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-autolab/internal/domain"
)

func newGenomesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "genomes [lab]",
		Short:     "List the genome lineage of one or both labs",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: domain.LabNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if err := a.service.EnsureSeeds(ctx); err != nil {
				return err
			}

			labs := domain.LabNames
			if len(args) == 1 {
				labs = args
			}
			lineages := make(map[string][]domain.Genome, len(labs))
			for _, lab := range labs {
				rows, err := a.service.Lineage(ctx, lab)
				if err != nil {
					return err
				}
				lineages[lab] = rows
			}
			return printLineages(cmd.OutOrStdout(), labs, lineages)
		},
	}
}

func printLineages(out io.Writer, labs []string, lineages map[string][]domain.Genome) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LAB\tVERSION\tPARENT\tACTIVE\tCREATED\tCHANGES")
	for _, lab := range labs {
		for _, g := range lineages[lab] {
			parent := "-"
			if g.ParentVersion != nil {
				parent = *g.ParentVersion
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n",
				g.LabName, g.Version, parent, g.IsActive,
				g.CreatedAt.UTC().Format(time.RFC3339), g.ChangeDescription)
		}
	}
	return w.Flush()
}
