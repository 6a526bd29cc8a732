package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the license server key pair",
	Long: `Generate an RSA key pair for the license server. The private key stays on
the server; the public key ships with the licensed software.`,
	Example: `  cnw-nodelock keygen --out ./keys --bits 3072`,
	Args:    cobra.NoArgs,
	RunE:    keygenCmdRun,
}

type keygenFlags struct {
	outDir string
	bits   int
	force  bool
}

var keygenArgs = keygenFlags{
	bits: 3072,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenArgs.outDir, "out", ".",
		"Directory to write private.pem and public.pem to.")
	keygenCmd.Flags().IntVar(&keygenArgs.bits, "bits", keygenArgs.bits,
		"RSA modulus size in bits (at least 2048).")
	keygenCmd.Flags().BoolVar(&keygenArgs.force, "force", false,
		"Overwrite existing key files.")
	rootCmd.AddCommand(keygenCmd)
}

func keygenCmdRun(cmd *cobra.Command, args []string) error {
	privPath := filepath.Join(keygenArgs.outDir, "private.pem")
	pubPath := filepath.Join(keygenArgs.outDir, "public.pem")
	if !keygenArgs.force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", p)
			}
		}
	}

	key, err := nodelock.GenerateKeyPair(keygenArgs.bits)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	privPEM, err := nodelock.MarshalPrivateKeyPEM(key)
	if err != nil {
		return err
	}
	pubPEM, err := nodelock.MarshalPublicKeyPEM(&key.PublicKey)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(keygenArgs.outDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}

	logger.Debug("Key pair generated", "bits", keygenArgs.bits)
	_, err = fmt.Fprintf(rootCmd.OutOrStdout(), "private key: %s\npublic key:  %s\n", privPath, pubPath)
	return err
}
