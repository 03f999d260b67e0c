package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/ideamans/go-sheetstore"
	"github.com/spf13/cobra"
)

func newSheetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets",
		Short: "List the sheets of the workbook with their row counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SHEET\tROWS\tLAST ROW")
			err = store.View(func(wb *sheetstore.Workbook) error {
				for _, sheet := range wb.Sheets() {
					fmt.Fprintf(w, "%s\t%d\t%d\n", sheet.Name(), sheet.PhysicalNumberOfRows(), sheet.LastRowNum()+1)
				}
				return nil
			})
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
}
