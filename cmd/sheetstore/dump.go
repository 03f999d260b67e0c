package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ideamans/go-sheetstore"
	"github.com/spf13/cobra"
)

type dumpOptions struct {
	where  []string
	limit  int
	offset int
	json   bool
}

func newDumpCmd(a *app) *cobra.Command {
	var opts dumpOptions
	cmd := &cobra.Command{
		Use:   "dump <class>",
		Short: "Print the objects of a class",
		Long: `Dump reads every object of the class and prints its fields.

Each --where takes "<field> <operator> <value>" with an operator among
==, !=, >, >=, <, <=. Conditions are combined with AND.

Example:
  sheetstore dump Person --where "age >= 30" --limit 10
  sheetstore dump Person --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, a, args[0], opts)
		},
	}
	cmd.Flags().StringArrayVar(&opts.where, "where", nil, `filter as "<field> <operator> <value>" (repeatable)`)
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "maximum number of objects (0 = no limit)")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "number of objects to skip")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func runDump(cmd *cobra.Command, a *app, className string, opts dumpOptions) error {
	query := sheetstore.Query{Limit: opts.limit, Offset: opts.offset}
	for _, w := range opts.where {
		cond, err := parseCondition(w)
		if err != nil {
			return err
		}
		query.Conditions = append(query.Conditions, cond)
	}
	if err := sheetstore.ValidateQuery(query); err != nil {
		return err
	}

	store, err := a.openStore(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer closeStore(store, a.logger)

	class, err := classOf(store, className)
	if err != nil {
		return err
	}
	records, err := sheetstore.NewSession(store).Query(class.Name, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", class.Name, err)
	}

	if opts.json {
		out := make([]map[string]any, 0, len(records))
		for _, r := range records {
			out = append(out, recordValues(r))
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal %s: %w", class.Name, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	return printRecords(cmd.OutOrStdout(), class, records)
}

// recordValues exports a record, with the surrogate identity under "_id"
func recordValues(r *sheetstore.Record) map[string]any {
	values := r.Values()
	if id := r.ID(); id != nil {
		values["_id"] = id
	}
	return values
}

// printRecords prints records in a human-readable table format
func printRecords(out io.Writer, class *sheetstore.ClassMeta, records []*sheetstore.Record) error {
	var headers []string
	if class.Identity == sheetstore.IdentityDatastore {
		headers = append(headers, "_id")
	}
	for _, f := range class.AllFields() {
		headers = append(headers, f.Name)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(headers, "\t")))
	for _, r := range records {
		values := recordValues(r)
		cells := make([]string, len(headers))
		for i, h := range headers {
			if v, ok := values[h]; ok {
				cells[i] = fmt.Sprint(v)
			}
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}

var conditionOperators = []string{"==", "!=", ">=", "<=", ">", "<"}

// parseCondition reads "<field> <operator> <value>". The value is typed as
// an integer, float or bool when it parses as one, and a string otherwise.
func parseCondition(s string) (sheetstore.Condition, error) {
	parts := strings.Fields(s)
	if len(parts) < 3 {
		return sheetstore.Condition{}, fmt.Errorf("invalid condition %q: want <field> <operator> <value>", s)
	}
	op := parts[1]
	valid := false
	for _, o := range conditionOperators {
		if o == op {
			valid = true
			break
		}
	}
	if !valid {
		return sheetstore.Condition{}, fmt.Errorf("invalid condition %q: unknown operator %s", s, op)
	}
	return sheetstore.Condition{
		Column:   parts[0],
		Operator: op,
		Value:    parseValue(strings.Join(parts[2:], " ")),
	}, nil
}

func parseValue(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return strings.Trim(s, `"'`)
}
