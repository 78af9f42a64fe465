package main

import (
	"context"
	"errors"
	"fmt"

	"signalhouse/overture/pkg/cli"
	"signalhouse/overture/pkg/config"
	"signalhouse/overture/pkg/policy"

	"github.com/spf13/cobra"
)

var validateFlags struct {
	policyPath string
	skipPolicy bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and policy pack",
	Long: `Validate the configuration file and the policy pack it references.

The command checks:
  - YAML syntax and unknown fields in the config file
  - Field values after defaults and environment overrides
  - Policy pack syntax, limits, and experiment parameters

All findings are reported in one run, and the exit code is non-zero
when anything is invalid.

Examples:
  # Validate the default config and its policy pack
  overture validate

  # Validate a specific config
  overture validate --config /etc/overture/config.yaml

  # Validate a candidate pack before committing it
  overture validate --policy ./packs/spring-launch

  # Config only
  overture validate --skip-policy`,
	RunE: validateDeployment,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateFlags.policyPath, "policy", "", "validate this pack file or directory instead of the configured source")
	validateCmd.Flags().BoolVar(&validateFlags.skipPolicy, "skip-policy", false, "validate the config only")
}

func validateDeployment(cmd *cobra.Command, args []string) error {
	fmt.Printf("Validating configuration: %s\n", cfgFile)

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		var verr config.ValidationError
		if errors.As(err, &verr) {
			fmt.Println("✗ Configuration invalid:")
			for _, fe := range verr.Errors {
				fmt.Printf("  - %s\n", fe.Error())
			}
		} else {
			fmt.Printf("✗ %v\n", err)
		}
		return cli.NewConfigError("", "validation failed")
	}
	fmt.Println("✓ Configuration valid")

	if validateFlags.skipPolicy {
		return nil
	}

	logger := cliLogger()

	var src policy.Source
	if validateFlags.policyPath != "" {
		src = policy.NewFileSource(validateFlags.policyPath, logger)
	} else {
		src, err = newPolicySource(cfg, logger)
		if err != nil {
			return cli.NewConfigError("policy.mode", err.Error())
		}
	}

	fmt.Printf("Validating policy pack: %s\n", src.Describe())
	pack, err := src.Load(context.Background())
	if err != nil {
		fmt.Printf("✗ Policy pack invalid: %v\n", err)
		return cli.NewConfigError("", "validation failed")
	}

	fmt.Printf("✓ Policy pack valid (%s)\n", pack.Version.Ref())
	fmt.Printf("  Frequency cap: %d per %s\n", pack.Frequency.Cap, pack.Frequency.Window)
	fmt.Printf("  Rate limit: %.1f/s (burst %d)\n", pack.Rate.PerSecond, pack.Rate.Burst)
	fmt.Printf("  Experiment alpha: %.2f, sweep: %q\n", pack.Experiments.Alpha, pack.Experiments.SweepSchedule)
	return nil
}
