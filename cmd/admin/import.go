package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"talentCorner/internal/importer"
)

func newImportCmd(a *app) *cobra.Command {
	var (
		file       string
		appendRows bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a contacts CSV into imported_data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open %s: %w", file, err)
			}
			defer f.Close()

			db, err := a.open(true)
			if err != nil {
				return err
			}
			res, err := importer.NewPipeline(db, a.logger).Import(cmd.Context(), f, importer.Options{Append: appendRows})
			if err != nil {
				return err
			}

			if res.Cleared {
				color.Yellow("existing rows cleared")
			}
			color.Green("%d of %d rows imported", res.Imported, res.Parsed)
			if res.Skipped > 0 {
				color.Yellow("%d rows skipped (missing full name or email)", res.Skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "CSV 文件路径（必填）")
	cmd.Flags().BoolVar(&appendRows, "append", true, "保留已有数据；为 false 时先清空")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
