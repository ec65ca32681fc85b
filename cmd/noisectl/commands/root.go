package commands

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const passphraseEnv = "NOISECTL_PASSPHRASE"

var (
	logLevel   string
	storeDir   string
	passphrase string
)

// NewRootCommand builds the noisectl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "noisectl",
		Short:         "Noise Protocol channel tooling",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}
			logrus.SetLevel(level)
			if passphrase == "" {
				passphrase = os.Getenv(passphraseEnv)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "logrus level (trace, debug, info, warn, error)")
	root.PersistentFlags().StringVar(&storeDir, "store", "", "encrypted key store directory")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "key store passphrase (default $"+passphraseEnv+")")

	root.AddCommand(keygenCmd(), pubkeyCmd(), demoCmd(), windowCmd())
	return root
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}
