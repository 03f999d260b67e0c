package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ideamans/go-sheetstore"
	"github.com/ideamans/go-sheetstore/adapters/excel"
	"github.com/ideamans/go-sheetstore/adapters/googlesheets"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app carries the resolved configuration shared by the subcommands
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	var configFile string

	root := &cobra.Command{
		Use:   "sheetstore",
		Short: "Inspect objects persisted in a spreadsheet",
		Long: `sheetstore reads a workbook through a YAML class-mapping schema.

The workbook is an Excel file given as a connection URL
(excel:file:<path>, ooxml:file:<path> or xls:file:<path>) or a Google
Sheets spreadsheet ID.

Example:
  sheetstore --url excel:file:data.xlsx sheets
  sheetstore --url excel:file:data.xlsx --schema schema.yaml count Person
  sheetstore --spreadsheet 1AbC --credentials key.json --schema schema.yaml dump Person --where "age >= 30"`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfig(a.v, configFile); err != nil {
				return err
			}
			a.logger = newLogger(os.Stderr, a.v.GetBool(cfgKeyVerbose))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: ./sheetstore.yaml)")
	pf.String("url", "", "Excel connection URL, e.g. excel:file:data.xlsx")
	pf.String("spreadsheet", "", "Google Sheets spreadsheet ID")
	pf.String("credentials", "", "service account key file for Google Sheets (default: application default credentials)")
	pf.String("schema", "", "YAML class-mapping schema")
	pf.Int("max-retries", 3, "retries for workbook load and save")
	pf.BoolP("verbose", "v", false, "log debug output")
	if err := bindConfig(a.v, root); err != nil {
		panic(err)
	}

	root.AddCommand(newSheetsCmd(a))
	root.AddCommand(newCountCmd(a))
	root.AddCommand(newDumpCmd(a))
	root.AddCommand(newLocateCmd(a))
	return root
}

// newLogger builds a tint handler, coloured only when w is a terminal
func newLogger(w *os.File, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(w), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	}))
}

// openAdapter selects the backend from the configuration
func (a *app) openAdapter(ctx context.Context) (sheetstore.Adapter, *sheetstore.Config, error) {
	if url := a.v.GetString(cfgKeyURL); url != "" {
		adapter, err := excel.NewFromURL(url)
		if err != nil {
			return nil, nil, err
		}
		return adapter, excel.DefaultClientConfig(), nil
	}
	if id := a.v.GetString(cfgKeySpreadsheet); id != "" {
		adapter, err := googlesheets.NewWithCredentials(ctx,
			googlesheets.Config{SpreadsheetID: id},
			googlesheets.Credentials{KeyFile: a.v.GetString(cfgKeyCredentials)})
		if err != nil {
			return nil, nil, err
		}
		return adapter, googlesheets.DefaultClientConfig(), nil
	}
	return nil, nil, errors.New("no workbook configured: set --url or --spreadsheet")
}

// openStore loads the schema and connects a store to the workbook. The
// store never syncs periodically; commands only read.
func (a *app) openStore(ctx context.Context, needSchema bool) (*sheetstore.Store, error) {
	var schema *sheetstore.Schema
	if path := a.v.GetString(cfgKeySchema); path != "" {
		var err error
		if schema, err = sheetstore.LoadSchemaFile(path); err != nil {
			return nil, err
		}
	} else if needSchema {
		return nil, errors.New("no schema configured: set --schema")
	}

	adapter, config, err := a.openAdapter(ctx)
	if err != nil {
		return nil, err
	}
	config.SyncInterval = 0
	config.MaxRetries = a.v.GetInt(cfgKeyRetries)
	config.Logger = a.logger

	store := sheetstore.New(adapter, schema, config)
	if err := store.Initialize(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	return store, nil
}

// classOf resolves a class name against the store schema
func classOf(store *sheetstore.Store, name string) (*sheetstore.ClassMeta, error) {
	cmd, ok := store.Schema().Class(name)
	if !ok {
		return nil, fmt.Errorf("unknown class %q", name)
	}
	return cmd, nil
}

func closeStore(store *sheetstore.Store, logger *slog.Logger) {
	if err := store.Close(); err != nil {
		logger.Error("close store", "error", err)
	}
}
