package main

import (
	"fmt"

	"github.com/ideamans/go-sheetstore"
	"github.com/spf13/cobra"
)

func newLocateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "locate <class> <key>...",
		Short: "Print the sheet row holding an object",
		Long: `Locate finds the object with the given primary key values, or the
datastore identity, and prints its sheet and 1-based row number.

Example:
  sheetstore locate Person alice`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeStore(store, a.logger)

			class, err := classOf(store, args[0])
			if err != nil {
				return err
			}
			keys := make([]any, 0, len(args)-1)
			for _, k := range args[1:] {
				keys = append(keys, k)
			}
			record, err := sheetstore.NewSession(store).Find(class.Name, keys...)
			if err != nil {
				return fmt.Errorf("locate %s: %w", class.Name, err)
			}
			row, err := store.RowOf(record)
			if err != nil {
				return fmt.Errorf("locate %s: %w", class.Name, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", class.TableName(), row+1)
			return nil
		},
	}
}
