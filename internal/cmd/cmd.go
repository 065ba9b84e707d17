// Package cmd implements the svitlo command line interface.
package cmd

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/clambin/go-common/charmer"
	"github.com/omelnyk/svitlo/internal/cmd/monitor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	configFilename string
	RootCmd        = cobra.Command{
		Use:   "svitlo",
		Short: "Electricity outage schedule monitor for Ukrainian energy providers",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			charmer.SetJSONLogger(cmd, viper.GetBool("debug"))
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&configFilename, "config", "", "Configuration file")
	RootCmd.PersistentFlags().Bool("debug", false, "Log debug messages")
	_ = viper.BindPFlag("debug", RootCmd.PersistentFlags().Lookup("debug"))

	RootCmd.AddCommand(&monitor.Cmd)
}

var args = charmer.Arguments{
	"debug":              charmer.Argument{Default: false, Help: "Log debug messages"},
	"provider.name":      charmer.Argument{Default: "yasno", Help: "Schedule provider (yasno, oblenergo)"},
	"provider.url":       charmer.Argument{Default: "", Help: "Provider schedule endpoint"},
	"provider.timezone":  charmer.Argument{Default: "Europe/Kyiv", Help: "Provider time zone"},
	"provider.timeout":   charmer.Argument{Default: 10 * time.Second, Help: "Provider fetch timeout"},
	"groups":             charmer.Argument{Default: []string{}, Help: "Groups (queues) to monitor"},
	"poller.interval":    charmer.Argument{Default: 15 * time.Minute, Help: "Schedule refresh interval"},
	"poller.retention":   charmer.Argument{Default: 24 * time.Hour, Help: "How long elapsed intervals are retained"},
	"poller.max-backoff": charmer.Argument{Default: 2 * time.Hour, Help: "Retry delay ceiling after refresh failures"},
	"exporter.addr":      charmer.Argument{Default: ":9090", Help: "Address of the Prometheus exporter"},
	"health.addr":        charmer.Argument{Default: ":8080", Help: "Address of the /health endpoint"},
	"api.addr":           charmer.Argument{Default: ":8081", Help: "Address of the entity API"},
}

func initConfig() {
	if configFilename != "" {
		viper.SetConfigFile(configFilename)
	} else {
		viper.AddConfigPath("/etc/svitlo/")
		viper.AddConfigPath("$HOME/.svitlo")
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
	}

	if err := charmer.SetDefaults(viper.GetViper(), args); err != nil {
		panic("failed to set viper defaults: " + err.Error())
	}

	viper.SetEnvPrefix("SVITLO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Error("failed to read config file", "err", err)
			os.Exit(1)
		}
	}
}
