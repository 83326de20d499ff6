package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"referral-process-measures/internal/api"
	"referral-process-measures/internal/config"
	"referral-process-measures/internal/measures"
	"referral-process-measures/internal/records"
	"referral-process-measures/internal/snapshot"
	"referral-process-measures/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "referral-measures",
		Short:         "Referral process-time and CRM usage measures by clinic",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(snapshotCmd())

	if err := rootCmd.Execute(); err != nil {
		exitWithError(err)
	}
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a clinic's measures for one reporting month",
		RunE: func(cmd *cobra.Command, args []string) error {
			clinic, _ := cmd.Flags().GetString("clinic")
			monthFlag, _ := cmd.Flags().GetString("month")
			jsonOut, _ := cmd.Flags().GetString("json")
			csvOut, _ := cmd.Flags().GetString("csv")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			s, _, err := buildStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			month := s.LastMonth()
			if monthFlag != "" {
				month, err = parseMonthFlag(monthFlag)
				if err != nil {
					return err
				}
			}
			if s.Table(month) == nil {
				return fmt.Errorf("month %s is not a reporting month", month.Format("2006-01"))
			}
			if clinic == "" {
				clinic = measures.AllClinics
			}
			if _, err := s.ScoreUsage(month, clinic); err != nil {
				return err
			}

			printReport(os.Stdout, s, month, clinic)

			if jsonOut != "" {
				if err := writeJSON(s, month, jsonOut); err != nil {
					return err
				}
				fmt.Printf("\nJSON month table saved to %s\n", jsonOut)
			}
			if csvOut != "" {
				if err := writeMeasuresCSV(s, month, csvOut); err != nil {
					return err
				}
				fmt.Printf("Measures CSV saved to %s\n", csvOut)
			}
			return nil
		},
	}
	cmd.Flags().String("clinic", "", "Clinic to report (default: all clinics)")
	cmd.Flags().String("month", "", "Reporting month YYYY-MM (default: last reporting month)")
	cmd.Flags().String("json", "", "Optional JSON output path for the month table")
	cmd.Flags().String("csv", "", "Optional CSV output path for every clinic row")
	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Build the measure store and serve the query API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			s, elapsed, err := buildStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}

			metrics := api.NewMetrics()
			clinics := map[string]int{}
			for _, month := range s.Months() {
				clinics[month.Format("2006-01")] = len(s.Clinics(month))
			}
			metrics.ObserveBuild(elapsed, clinics)

			e := api.NewServer(s, metrics, logger)
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				addr := ":" + cfg.Port
				logger.Info().Str("addr", addr).Msg("starting query API")
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()

			<-ctx.Done()
			logger.Info().Msg("shutting down query API")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		},
	}
}

func snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Build the measure store and persist it to Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			tag, _ := cmd.Flags().GetString("tag")

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("database URL missing; set DATABASE_URL")
			}
			s, _, err := buildStore(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			for _, month := range s.Months() {
				for _, clinic := range append(s.Clinics(month), measures.AllClinics) {
					if _, err := s.ScoreUsage(month, clinic); err != nil {
						return err
					}
				}
			}

			runID, err := snapshot.Save(cmd.Context(), s, snapshot.Config{
				URL:    cfg.DatabaseURL,
				Schema: cfg.DBSchema,
				Tag:    tag,
			})
			if err != nil {
				return err
			}
			logger.Info().Str("run_id", runID).Str("schema", cfg.DBSchema).Msg("stored measure snapshot")
			fmt.Printf("Stored measure snapshot in Postgres (run_id=%s)\n", runID)
			return nil
		},
	}
	cmd.Flags().String("tag", "", "Optional label for this snapshot run")
	return cmd
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Logger{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, newLogger(cfg), nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return logger
}

// buildStore loads both sources and computes the store within BUILD_TIMEOUT.
// A missing message file is not fatal: the DSM measures are then zero.
func buildStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*store.Store, time.Duration, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	asOf, err := cfg.AsOf()
	if err != nil {
		return nil, 0, err
	}

	refs, err := records.LoadReferrals(cfg.ReferralsPath, asOf)
	if err != nil {
		return nil, 0, fmt.Errorf("load referrals: %w", err)
	}
	logger.Info().Str("path", cfg.ReferralsPath).Int("rows", len(refs.Rows)).Msg("referrals loaded")

	dsms, err := records.LoadDSMs(cfg.DSMPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn().Str("path", cfg.DSMPath).Msg("direct secure message file not found; DSM measures will be zero")
		dsms = nil
	case err != nil:
		return nil, 0, fmt.Errorf("load direct secure messages: %w", err)
	default:
		logger.Info().Str("path", cfg.DSMPath).Int("rows", len(dsms.Rows)).Msg("direct secure messages loaded")
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.BuildTimeout)
	defer cancel()
	s, err := store.Build(ctx, refs, dsms, store.Options{
		AsOf:    asOf,
		Months:  cfg.Months,
		Targets: measures.Targets{RoutinePct: cfg.RoutineTargetPct, UrgentPct: cfg.UrgentTargetPct},
	}, logger)
	if err != nil {
		return nil, 0, err
	}
	return s, time.Since(start), nil
}

func parseMonthFlag(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01", "2006-01-02"} {
		if t, err := time.Parse(layout, strings.TrimSpace(value)); err == nil {
			return measures.FirstOfMonth(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid --month value: %s", value)
}

var reportSections = []struct {
	title    string
	measures []string
}{
	{"Process aims", []string{
		"Pct Routine Referrals Seen in 30d",
		"MOV91 Pct Routine Referrals Seen in 30d",
		"Target Pct Routine Referrals Seen in 30d",
		"Pct Urgent Referrals Seen in 5d",
		"MOV91 Pct Urgent Referrals Seen in 5d",
		"Target Pct Urgent Referrals Seen in 5d",
		measures.MedianDaysSeen,
		measures.MedianDaysScheduled,
		measures.DimensionAgeToSeen,
		measures.DimensionAgeToScheduled,
	}},
	{"Referrals after 90 days", []string{
		"Referrals Sent",
		"Referrals Aged",
		"Referrals Seen After 90d",
		"Referrals Scheduled After 90d",
		"Referrals Waiting After 90d",
		"Referrals Not Scheduled After 90d",
		"Referrals Closed WBS After 90d",
		"Pct Referrals Seen After 90d",
	}},
	{"Categories", []string{
		"Routine Performance vs. Target",
		"Routine Improvement Direction",
		"Urgent Performance vs. Target",
		"Urgent Improvement Direction",
	}},
	{"Variances", []string{
		"Var Target MOV91 Pct Routine Referrals Seen in 30d",
		"Var MOV91 Pct Routine Referrals Seen in 30d",
		"Var Target MOV91 Pct Urgent Referrals Seen in 5d",
		"Var MOV91 Pct Urgent Referrals Seen in 5d",
		"Var MOV91 Median Days until Seen",
		"Var MOV91 Median Days until Scheduled",
	}},
}

func printReport(w io.Writer, s *store.Store, month time.Time, clinic string) {
	fmt.Fprintln(w, "Referral Process Measures")
	fmt.Fprintln(w, strings.Repeat("=", 38))
	fmt.Fprintf(w, "As of: %s\n", s.AsOf().Format("2006-01-02"))
	fmt.Fprintf(w, "Month: %s\n", month.Format("2006-01"))
	fmt.Fprintf(w, "Clinic: %s\n", clinic)

	for _, section := range reportSections {
		fmt.Fprintf(w, "\n%s\n", section.title)
		fmt.Fprintln(w, strings.Repeat("-", 38))
		for _, name := range section.measures {
			value := formatValue(s.ClinicMeasure(month, clinic, name))
			if dir, ok := s.ClinicMeasure(month, clinic, measures.DirectionName(name)).(string); ok {
				value += " " + dir
			}
			fmt.Fprintf(w, "%s: %s\n", name, value)
		}
	}

	results := s.UsageResults(month, clinic)
	if len(results) > 0 {
		fmt.Fprintln(w, "\nCRM usage tests")
		fmt.Fprintln(w, strings.Repeat("-", 38))
		for _, r := range results {
			fmt.Fprintf(w, "%s | %s | result %d%% | score %.2f of %d\n", r.Milestone, r.Title, r.Result, r.Score, r.Points)
		}
		points, score, pct := store.UsageTotals(results)
		fmt.Fprintf(w, "Total: %.2f of %d (%d%%)\n", score, points, pct)
	}
}

func formatValue(value any) string {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	}
	return fmt.Sprintf("%v", value)
}

type clinicExport struct {
	Clinic   string                     `json:"clinic"`
	Measures map[string]any             `json:"measures"`
	Usage    []measures.UsageTestResult `json:"usage,omitempty"`
}

type monthExport struct {
	AsOf    string         `json:"as_of"`
	Month   string         `json:"month"`
	Clinics []clinicExport `json:"clinics"`
}

func buildExport(s *store.Store, month time.Time) monthExport {
	table := s.Table(month)
	export := monthExport{
		AsOf:    s.AsOf().Format("2006-01-02"),
		Month:   month.Format("2006-01-02"),
		Clinics: []clinicExport{},
	}
	for _, clinic := range table.Keys() {
		row := table.Row(clinic)
		values := make(map[string]any, len(row))
		for name, v := range row {
			values[name] = v.Raw()
		}
		export.Clinics = append(export.Clinics, clinicExport{
			Clinic:   clinic,
			Measures: values,
			Usage:    s.UsageResults(month, clinic),
		})
	}
	return export
}

func writeJSON(s *store.Store, month time.Time, path string) error {
	data, err := json.MarshalIndent(buildExport(s, month), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// writeMeasuresCSV writes one row per clinic (the all-clinics row included) and one
// column per measure.
func writeMeasuresCSV(s *store.Store, month time.Time, path string) error {
	table := s.Table(month)
	if table == nil {
		return fmt.Errorf("month %s is not a reporting month", month.Format("2006-01"))
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	columns := table.Columns()
	if err := writer.Write(append([]string{"month", "clinic"}, columns...)); err != nil {
		return err
	}
	for _, clinic := range table.Keys() {
		row := table.Row(clinic)
		record := []string{month.Format("2006-01-02"), clinic}
		for _, name := range columns {
			v, ok := row[name]
			if !ok {
				record = append(record, "")
				continue
			}
			record = append(record, formatValue(v.Raw()))
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
