package main

import (
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"talentCorner/internal/report"
)

func newStatsCmd(a *app) *cobra.Command {
	var year int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print ranking totals per year, domain and sub-domain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.open(false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			reporter := report.NewReporter(db, a.logger)

			var filter *int
			if year > 0 {
				filter = &year
			}

			total, err := reporter.Total(ctx)
			if err != nil {
				return err
			}
			byYear, err := reporter.ByYear(ctx)
			if err != nil {
				return err
			}
			byDomain, err := reporter.ByDomain(ctx, filter)
			if err != nil {
				return err
			}
			bySub, err := reporter.BySubDomain(ctx, filter)
			if err != nil {
				return err
			}
			orgs, err := reporter.OrgEmailCounts(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.Cyan("\n=== Talent Corner statistics ===")
			color.Green("Total ranked candidates: %d", total)

			color.Yellow("\nCandidates by year")
			rows := make([][]string, 0, len(byYear))
			for _, r := range byYear {
				rows = append(rows, []string{strconv.Itoa(r.Year), strconv.FormatInt(r.Count, 10)})
			}
			renderTable(out, []string{"Year", "Count"}, rows)

			color.Yellow("\nCandidates by domain")
			rows = rows[:0]
			for _, r := range byDomain {
				rows = append(rows, []string{r.Domain, strconv.FormatInt(r.Count, 10)})
			}
			renderTable(out, []string{"Domain", "Count"}, rows)

			color.Yellow("\nCandidates by sub-domain")
			rows = rows[:0]
			for _, r := range bySub {
				rows = append(rows, []string{r.SubDomain, strconv.FormatInt(r.Count, 10)})
			}
			renderTable(out, []string{"Sub-domain", "Count"}, rows)

			color.Yellow("\nEmails sent per organization")
			rows = rows[:0]
			for _, r := range orgs {
				rows = append(rows, []string{r.OrgName, strconv.FormatInt(r.EmailSentCount, 10)})
			}
			renderTable(out, []string{"Organization", "Emails"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "只统计该年份的领域分布（可选）")
	return cmd
}

func renderTable(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}
