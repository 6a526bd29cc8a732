package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Write a license request for this machine",
	Long: `Fingerprint this machine and write an encrypted license request that only
the license server can read.`,
	Example: `  cnw-nodelock request --public-key public.pem --product-version 2.1 --out request.txt`,
	Args:    cobra.NoArgs,
	RunE:    requestCmdRun,
}

type requestFlags struct {
	publicKey      string
	out            string
	productVersion string
}

var requestArgs requestFlags

func init() {
	requestCmd.Flags().StringVar(&requestArgs.publicKey, "public-key", "",
		"Path to the license server public key. Defaults to the configured key.")
	requestCmd.Flags().StringVar(&requestArgs.out, "out", "request.txt",
		"Path to write the encrypted request to.")
	requestCmd.Flags().StringVar(&requestArgs.productVersion, "product-version", "",
		"Version of the product the license is requested for.")
	rootCmd.AddCommand(requestCmd)
}

func requestCmdRun(cmd *cobra.Command, args []string) error {
	cfg := *rootArgs.cfg
	if requestArgs.publicKey != "" {
		cfg.PublicKeyFile = requestArgs.publicKey
		cfg.PublicKeyPEM = ""
	}
	ch, err := cfg.Channel()
	if err != nil {
		return fmt.Errorf("load public key: %w", err)
	}
	env, err := hostEnvironment(&cfg, requestArgs.productVersion)
	if err != nil {
		return err
	}

	contact, err := nodelock.NewContact(env)
	if err != nil {
		return err
	}
	w, err := nodelock.NewContactWriter(ch)
	if err != nil {
		return err
	}
	if err := w.ToFile(requestArgs.out, contact); err != nil {
		return err
	}

	_, err = fmt.Fprintf(rootCmd.OutOrStdout(), "request %s written to %s (%d hardware entries)\n",
		contact.ID(), requestArgs.out, contact.HardwareLen())
	return err
}

// hostEnvironment returns the environment of this machine with the given
// product version, or an unknown version when it is empty.
func hostEnvironment(cfg *nodelock.Config, productVersion string) (nodelock.Environment, error) {
	host, err := cfg.Environment(logger)
	if err != nil {
		return nil, err
	}
	env := nodelock.StaticEnvironment{
		Hardware: host.Fingerprint(),
		Clock:    host.Now,
	}
	if productVersion != "" {
		v, err := nodelock.ParseVersion(productVersion)
		if err != nil {
			return nil, err
		}
		env.Version = &v
	}
	return env, nil
}
