// Command tutorctl inspects and exercises the tutor without running the HTTP
// server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Keyring-Network/gavryn-tutor/internal/bootstrap"
	"github.com/Keyring-Network/gavryn-tutor/internal/config"
)

var (
	loadConfig  = config.LoadWithOverlay
	newEmbedder = bootstrap.NewEmbedder
	newProvider = bootstrap.NewProvider
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutorctl",
		Short:         "Operate the Gavryn math tutor",
		Long:          `tutorctl builds the knowledge index, asks one-off questions and inspects feedback using the same configuration as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newIndexCmd(),
		newClassifyCmd(),
		newAskCmd(),
		newFeedbackCmd(),
		newSecretsCmd(),
	)
	return root
}

// loadResolvedConfig is config loading followed by secret resolution.
func loadResolvedConfig() (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return config.Config{}, err
	}
	if err := bootstrap.ResolveSecrets(&cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
