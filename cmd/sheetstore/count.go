package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCountCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "count <class>",
		Short: "Count the objects of a class",
		Long: `Count reports the number of rows holding objects of the class. Rows
whose identity column is empty are not counted.`,
		Args: cobra.ExactArgs(1),
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
			n, err := store.ActiveRowCount(class)
			if err != nil {
				return fmt.Errorf("count %s: %w", class.Name, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}
