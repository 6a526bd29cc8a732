package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/CloudNativeWorks/cnw-nodelock-sdk/nodelock"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the license of this machine",
	Long: `Verify the license file and evaluate it against this machine. Without
--license the file is searched next to the executable, in the shared
documents directory and in the working directory. The command fails when
the license is missing, invalid or does not grant the requested feature.`,
	Example: `  cnw-nodelock check --public-key public.pem --license product.lic --feature 1`,
	Args:    cobra.NoArgs,
	RunE:    checkCmdRun,
}

type checkFlags struct {
	publicKey      string
	license        string
	productVersion string
	features       []int
	enforceLimits  bool
	nodes          int
}

var checkArgs checkFlags

func init() {
	checkCmd.Flags().StringVar(&checkArgs.publicKey, "public-key", "",
		"Path to the license server public key. Defaults to the configured key.")
	checkCmd.Flags().StringVar(&checkArgs.license, "license", "",
		"Path to the license file. Defaults to the search path.")
	checkCmd.Flags().StringVar(&checkArgs.productVersion, "product-version", "",
		"Version of the product to check the license for.")
	checkCmd.Flags().IntSliceVar(&checkArgs.features, "feature", nil,
		"Feature id that must be granted, can be repeated.")
	checkCmd.Flags().BoolVar(&checkArgs.enforceLimits, "enforce-limits", false,
		"Fail when this machine exceeds the CPU limit granted by the license.")
	checkCmd.Flags().IntVar(&checkArgs.nodes, "nodes", 0,
		"Number of active nodes to check against the node limit.")
	rootCmd.AddCommand(checkCmd)
}

var errNoLicense = errors.New("no valid license")

func checkCmdRun(cmd *cobra.Command, args []string) error {
	cfg := *rootArgs.cfg
	if checkArgs.publicKey != "" {
		cfg.PublicKeyFile = checkArgs.publicKey
		cfg.PublicKeyPEM = ""
	}
	ch, err := cfg.Channel()
	if err != nil {
		return fmt.Errorf("load public key: %w", err)
	}
	env, err := hostEnvironment(&cfg, checkArgs.productVersion)
	if err != nil {
		return err
	}
	reader, err := nodelock.NewLicenseReader(ch, nodelock.WithReaderEnvironment(env))
	if err != nil {
		return err
	}

	sp := cfg.SearchPath()
	if checkArgs.license != "" {
		sp = nodelock.SearchPath{
			FileName: filepath.Base(checkArgs.license),
			Dirs:     []string{filepath.Dir(checkArgs.license)},
		}
	}
	mgr, err := nodelock.NewManager(nodelock.FileLoader(reader, sp), nodelock.WithLogger(logger))
	if err != nil {
		return err
	}
	return runCheck(mgr.NewSession(), checkArgs)
}

func runCheck(session *nodelock.Session, flags checkFlags) error {
	lic, err := session.License()
	if err != nil {
		return err
	}
	if lic == nil {
		return errNoLicense
	}
	out := rootCmd.OutOrStdout()
	fmt.Fprintf(out, "license %s is valid\n", lic.ID())
	if to := lic.Validity().To(); !to.IsZero() {
		fmt.Fprintf(out, "valid until %s\n", to.Format(time.RFC3339))
	}
	if u, ok := lic.EndUser(); ok {
		fmt.Fprintf(out, "licensed to %s\n", u.DisplayName())
	}

	for _, id := range flags.features {
		if !session.IsFeatureAvailable(id) {
			return fmt.Errorf("feature %d is not granted", id)
		}
		value, _ := session.Feature(id)
		fmt.Fprintf(out, "feature %d = %d\n", id, value)
	}

	if flags.enforceLimits {
		limits := nodelock.ExtractLimits(lic)
		if err := nodelock.CheckCPU(limits); err != nil {
			return err
		}
		if err := nodelock.CheckNodeCount(limits, flags.nodes); err != nil {
			return err
		}
	}
	return nil
}
