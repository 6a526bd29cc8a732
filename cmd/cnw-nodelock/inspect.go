package main

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

var inspectCmd = &cobra.Command{
	Use:     "inspect",
	Short:   "Print the contents of a license request",
	Example: `  cnw-nodelock inspect --private-key private.pem --request request.txt`,
	Args:    cobra.NoArgs,
	RunE:    inspectCmdRun,
}

type inspectFlags struct {
	privateKey string
	request    string
}

var inspectArgs inspectFlags

func init() {
	inspectCmd.Flags().StringVar(&inspectArgs.privateKey, "private-key", "",
		"Path to the license server private key. Defaults to the configured key.")
	inspectCmd.Flags().StringVar(&inspectArgs.request, "request", "request.txt",
		"Path to the encrypted license request.")
	rootCmd.AddCommand(inspectCmd)
}

func inspectCmdRun(cmd *cobra.Command, args []string) error {
	ch, err := serverChannel(inspectArgs.privateKey)
	if err != nil {
		return err
	}
	r, err := nodelock.NewContactReader(ch)
	if err != nil {
		return err
	}
	contact, err := r.FromFile(inspectArgs.request)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return printContact(rootCmd.OutOrStdout(), contact)
}

func printContact(w io.Writer, c *nodelock.Contact) error {
	version := "unknown"
	if v := c.SoftwareVersion(); v != nil {
		version = v.String()
	}
	created := "unknown"
	if t := c.CreationTime(); !t.IsZero() {
		created = t.Format(time.RFC3339)
	}
	hardware := c.RequiredHardware()
	if _, err := fmt.Fprintf(w, "id:          %s\ncreated:     %s\nversion:     %s\nfingerprint: %s\nhardware:\n",
		c.ID(), created, version, nodelock.FingerprintDigest(hardware)); err != nil {
		return err
	}
	keys := make([]string, 0, len(hardware))
	for k := range hardware {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(w, "  %s = %s\n", k, hardware[k]); err != nil {
			return err
		}
	}
	return nil
}
