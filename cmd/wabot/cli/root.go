package cli

import (
	"github.com/spf13/cobra"

	"github.com/actiomidia/projeto-bot-whatsapp/internal/config"
	"github.com/actiomidia/projeto-bot-whatsapp/pkg/contracts"
)

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	return newRootCmd(version, commit, date).Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	if version == "" || version == "dev" {
		version = contracts.Version
	}
	if commit != "" && commit != "unknown" {
		contracts.GitCommit = commit
	}
	if date != "" && date != "unknown" {
		contracts.BuildTime = date
	}

	var cfgFile string

	cmd := &cobra.Command{
		Use:   "wabot",
		Short: "Licensed WhatsApp bulk messaging bot",
		Long: `wabot drives a WhatsApp Web session to send individual, bulk and group
messages. Every send is gated by a license key that is checked against a
remote licensing authority and cached locally.

Configuration comes from defaults, an optional YAML file and WABOT_*
environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ./configs/config.yaml)")

	load := func() (*config.Config, error) {
		if cfgFile != "" {
			return config.LoadFrom(cfgFile)
		}
		return config.Load()
	}

	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newLicenseCmd(load))
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

type configLoader func() (*config.Config, error)
