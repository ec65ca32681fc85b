package commands

import (
	"encoding/hex"
	"fmt"

	"github.com/opd-ai/noisemobile/crypto"
	"github.com/spf13/cobra"
)

func openStore() (*crypto.EncryptedKeyStore, error) {
	if storeDir == "" {
		return nil, fmt.Errorf("--store is required")
	}
	if passphrase == "" {
		return nil, fmt.Errorf("passphrase required (-p or $%s)", passphraseEnv)
	}
	return crypto.NewEncryptedKeyStore(storeDir, []byte(passphrase))
}

func keygenCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a Curve25519 static key pair",
		Long: "Generate a static key pair and print the public key. With --id the " +
			"private key is sealed into the encrypted key store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(kp.Private[:])

			if id != "" {
				ks, err := openStore()
				if err != nil {
					return err
				}
				defer ks.Close()
				if exists, err := ks.HasIdentity(id); err != nil {
					return err
				} else if exists {
					return fmt.Errorf("identity %q already exists", id)
				}
				if err := ks.StoreIdentity(kp.Private[:], id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored identity %q\n", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Public key: %s\n", hex.EncodeToString(kp.Public[:]))
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "store the private key under this identity")
	return cmd
}

func pubkeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pubkey <id>",
		Short: "Print the public key of a stored identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ks, err := openStore()
			if err != nil {
				return err
			}
			defer ks.Close()

			secret, err := ks.LoadIdentity(args[0])
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(secret)
			kp, err := crypto.FromSecretKeyBytes(secret)
			if err != nil {
				return err
			}
			defer crypto.ZeroBytes(kp.Private[:])
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(kp.Public[:]))
			return nil
		},
	}
	return cmd
}
