package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"distreg/adapters/archive"
	"distreg/app"
	"distreg/domain/core"
	"distreg/internal"
	"distreg/internal/config"
	"distreg/internal/errors"
	"distreg/internal/export"
	"distreg/internal/geo"
	"distreg/internal/migration"
	"distreg/internal/testkit"
	"distreg/ports"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "distreg",
		Short:         "Distance regressions for Latin American states",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newDistanceCmd(),
		newRunsCmd(),
		newMigrateCmd(),
		newSynthCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(1)
	}
}

// errorMessage prefixes application errors with their code
func errorMessage(err error) string {
	if errors.IsAppError(err) {
		return fmt.Sprintf("[%s] %v", errors.GetCode(err), err)
	}
	return err.Error()
}

// setup loads .env and the process configuration
func setup() (*config.Config, *internal.Logger, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewLogger(internal.ParseLogLevel(cfg.Log.Level)), nil
}

func openArchive(ctx context.Context, cfg *config.Config) (ports.RunArchive, func(), error) {
	if !cfg.Archive.Enabled() {
		return nil, func() {}, nil
	}
	db, err := archive.Open(ctx, cfg.Archive.Driver, cfg.Archive.DSN)
	if err != nil {
		return nil, nil, err
	}
	return archive.NewRunArchive(db), func() { db.Close() }, nil
}

func newRunCmd() *cobra.Command {
	var outDir string
	var workbook bool

	cmd := &cobra.Command{
		Use:   "run [study.yaml]",
		Short: "Merge, transform, fit and export a study",
		Long: `Run every stage of a study and write the result tables.

Settings come from the environment (optionally a .env file):
- LOG_LEVEL (ERROR|WARN|INFO|DEBUG|TRACE)
- DISTREG_OUTPUT_DIR (default: output)
- DISTREG_WORKBOOK (also write results.xlsx)
- DISTREG_ARCHIVE_DRIVER (sqlite|postgres) and DISTREG_ARCHIVE_DSN
- DISTREG_PARALLELISM, DISTREG_CONFIDENCE_LEVEL

Example: distreg run configs/latam_capability.yaml --out results --workbook`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			if outDir != "" {
				cfg.Output.Dir = outDir
			}
			if cmd.Flags().Changed("workbook") {
				cfg.Output.Workbook = workbook
			}

			study, err := config.LoadStudy(args[0])
			if err != nil {
				return err
			}

			runs, closeArchive, err := openArchive(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeArchive()

			result, err := app.NewStudyService(cfg, logger, runs).Run(cmd.Context(), study)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: %d countries, %d of %d models fitted\n",
				result.Manifest.RunID, result.Selection.Kept, result.Fitted(), len(result.Report.Outcomes))
			for _, o := range result.Report.Outcomes {
				if o.Failed() {
					fmt.Fprintf(out, "  %s: %v\n", o.Spec.Name, o.Err)
				}
			}
			for _, f := range result.Files {
				fmt.Fprintf(out, "  wrote %s\n", f)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (overrides DISTREG_OUTPUT_DIR)")
	cmd.Flags().BoolVar(&workbook, "workbook", false, "Also write results.xlsx")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [study.yaml]",
		Short: "Check a study definition without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			study, err := config.LoadStudy(args[0])
			if err != nil {
				return err
			}
			for _, in := range append([]config.InputConfig{study.Inputs.Base}, study.Inputs.Secondaries...) {
				if in.Path == "" {
					continue
				}
				if _, err := os.Stat(study.ResolvePath(in.Path)); err != nil {
					return fmt.Errorf("input %s: %w", in.Name, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d inputs, %d transforms, %d models\n",
				study.Name, 1+len(study.Inputs.Secondaries), len(study.Transforms), len(study.Models))
			for _, m := range study.Models {
				fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", m.Name, m.Formula())
			}
			return nil
		},
	}
}

func newDistanceCmd() *cobra.Command {
	var lat, lon float64
	var countries string
	var outFile string

	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Print capital-to-reference great-circle distances",
		Long: `Build the base distance table from the built-in capital list.

Example: distreg distance --countries ARG,BRA,CHL --out distance.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var codes []string
			if countries != "" {
				for _, c := range strings.Split(countries, ",") {
					codes = append(codes, c)
				}
			}

			svc := app.NewStudyService(&config.Config{}, nil, nil)
			tbl, err := svc.DistanceTable("distance", geo.Point{Lat: lat, Lon: lon}, codes)
			if err != nil {
				return err
			}

			if outFile == "" {
				return export.WriteTable(cmd.OutOrStdout(), tbl)
			}
			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			if err := export.WriteTable(f, tbl); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", geo.Washington.Lat, "Reference latitude")
	cmd.Flags().Float64Var(&lon, "lon", geo.Washington.Lon, "Reference longitude")
	cmd.Flags().StringVar(&countries, "countries", "", "Comma-separated ISO3 codes (default: all)")
	cmd.Flags().StringVar(&outFile, "out", "", "Write CSV to file instead of stdout")
	return cmd
}

func newRunsCmd() *cobra.Command {
	var limit int
	var fingerprint string
	var coefficients string

	cmd := &cobra.Command{
		Use:   "runs [study-name]",
		Short: "List archived runs of a study",
		Long: `List archived runs, newest first. With --fingerprint, list every run
that consumed the same inputs and configuration instead. With
--coefficients, print the coefficients archived for one run.

Example: distreg runs latam_capability --limit 5`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !cfg.Archive.Enabled() {
				return fmt.Errorf("no archive configured (set DISTREG_ARCHIVE_DRIVER and DISTREG_ARCHIVE_DSN)")
			}

			runs, closeArchive, err := openArchive(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeArchive()

			if coefficients != "" {
				runID, err := core.ParseRunID(coefficients)
				if err != nil {
					return err
				}
				coefs, err := runs.Coefficients(cmd.Context(), runID)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "MODEL\tTERM\tESTIMATE\tSTD.ERROR\tP")
				for _, c := range coefs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
						c.Model, c.Term, storedFloat(c.Estimate), storedFloat(c.StdError), storedFloat(c.PValue))
				}
				return w.Flush()
			}

			var summaries []ports.RunSummary
			switch {
			case fingerprint != "":
				summaries, err = runs.FindByFingerprint(cmd.Context(), core.Hash(fingerprint))
			case len(args) == 1:
				summaries, err = runs.ListRuns(cmd.Context(), args[0], limit)
			default:
				return fmt.Errorf("a study name or --fingerprint is required")
			}
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTUDY\tMODELS\tFAILED\tFINGERPRINT\tCREATED")
			for _, r := range summaries {
				created := r.CreatedAt
				if ts, err := core.ParseSortable(r.CreatedAt); err == nil {
					created = ts.String()
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
					r.RunID, r.Study, r.Models, r.Failed, core.Hash(r.Fingerprint).Short(), created)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "List runs with this fingerprint")
	cmd.Flags().StringVar(&coefficients, "coefficients", "", "Print the archived coefficients of this run")
	return cmd
}

// storedFloat prints an archived value; NULL was a non-finite estimate
func storedFloat(v *float64) string {
	if v == nil {
		return "NA"
	}
	return export.FormatFloat(*v)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the run archive schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()
			if !cfg.Archive.Enabled() {
				return fmt.Errorf("no archive configured (set DISTREG_ARCHIVE_DRIVER and DISTREG_ARCHIVE_DSN)")
			}

			db, err := archive.Open(cmd.Context(), cfg.Archive.Driver, cfg.Archive.DSN)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("archive schema %s applied (%s)", migration.NewRunner().Version(), cfg.Archive.Driver)
			return nil
		},
	}
}

func newSynthCmd() *cobra.Command {
	var seed int64

	cmd := &cobra.Command{
		Use:   "synth [dir]",
		Short: "Write a synthetic study with known coefficients",
		Long: `Generate deterministic COW, World Bank and geography tables plus a study
definition that fits them.

Example: distreg synth demo --seed 42 && distreg run demo/study.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(args[0], 0o755); err != nil {
				return err
			}
			path, err := testkit.NewTestKit(seed).WriteStudy(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")
	return cmd
}
