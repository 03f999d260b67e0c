package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configFileName = "sheetstore"
	configFileType = "yaml"
	envPrefix      = "SHEETSTORE"

	cfgKeyURL         = "url"
	cfgKeySpreadsheet = "spreadsheet"
	cfgKeyCredentials = "credentials"
	cfgKeySchema      = "schema"
	cfgKeyRetries     = "max_retries"
	cfgKeyVerbose     = "verbose"
)

// bindConfig wires the persistent flags of root into v. Precedence is
// flag, then SHEETSTORE_* environment, then sheetstore.yaml.
func bindConfig(v *viper.Viper, root *cobra.Command) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetDefault(cfgKeyRetries, 3)

	flags := map[string]string{
		cfgKeyURL:         "url",
		cfgKeySpreadsheet: "spreadsheet",
		cfgKeyCredentials: "credentials",
		cfgKeySchema:      "schema",
		cfgKeyRetries:     "max-retries",
		cfgKeyVerbose:     "verbose",
	}
	for key, name := range flags {
		if err := v.BindPFlag(key, root.PersistentFlags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// readConfig loads the config file. An explicit file must exist; otherwise
// sheetstore.yaml is looked up in the working directory and may be absent.
func readConfig(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
