// Package cmd assembles the pestguard command tree.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/pestguard-go/cmd/diag"
	"github.com/tphakala/pestguard-go/cmd/sounds"
	"github.com/tphakala/pestguard-go/cmd/watch"
	"github.com/tphakala/pestguard-go/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "pestguard",
		Short:   "PestGuard wildlife surveillance and deterrence controller",
		Version: settings.Version,
	}

	setupFlags(rootCmd, settings)

	rootCmd.AddCommand(
		watch.Command(settings),
		sounds.Command(settings),
		diag.Command(settings),
	)

	return rootCmd
}

// setupFlags binds the global flags into viper so they override the file
// configuration.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
