package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rustyeddy/spottrader/journal"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Journal prints trades from the SQLite journal as Org-mode entries.

Examples:
  trader journal --db ./output/trader.sqlite trade 01HV...
  trader journal --db ./output/trader.sqlite today
  trader journal --db ./output/trader.sqlite day 2026-01-24
  trader journal --db ./output/trader.sqlite run 01HV...
  trader journal --db ./output/trader.sqlite decisions 2026-01-24`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <position_id>",
	Short: "Print one closed trade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(j *journal.SQLite) error {
			rec, err := j.GetTrade(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
			return nil
		})
	},
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "Print trades closed today (local time)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printDay(cmd, time.Now().In(time.Local).Format("2006-01-02"))
	},
}

var journalDayCmd = &cobra.Command{
	Use:   "day YYYY-MM-DD",
	Short: "Print trades closed on a day (local time)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printDay(cmd, args[0])
	},
}

var journalRunCmd = &cobra.Command{
	Use:   "run <run_id>",
	Short: "Print a recorded run summary and its trades",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withJournal(func(j *journal.SQLite) error {
			r, err := j.GetRun(args[0])
			if err != nil {
				return err
			}
			if err := r.WriteOrg(cmd.OutOrStdout()); err != nil {
				return err
			}
			trades, err := j.ListTradesByRun(args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(trades))
			return nil
		})
	},
}

var journalDecisionsCmd = &cobra.Command{
	Use:   "decisions [YYYY-MM-DD]",
	Short: "Print admission and close decisions for a day (default today)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		day := time.Now().In(time.Local).Format("2006-01-02")
		if len(args) == 1 {
			day = args[0]
		}
		start, end, err := dayBounds(time.Local, day)
		if err != nil {
			return fmt.Errorf("date: %w", err)
		}
		return withJournal(func(j *journal.SQLite) error {
			recs, err := j.ListDecisionsBetween(start, end)
			if err != nil {
				return fmt.Errorf("query decisions: %w", err)
			}
			printDecisions(cmd.OutOrStdout(), recs)
			return nil
		})
	},
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd, journalTodayCmd, journalDayCmd, journalRunCmd, journalDecisionsCmd)

	journalCmd.PersistentFlags().StringVar(&journalDBPath, "db", "", "path to SQLite journal DB (default journal.db_path)")
}

func withJournal(fn func(j *journal.SQLite) error) error {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return fmt.Errorf("no journal database: pass --db or set journal.db_path")
	}

	j, err := journal.NewSQLite(path)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()
	return fn(j)
}

func printDay(cmd *cobra.Command, day string) error {
	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return withJournal(func(j *journal.SQLite) error {
		recs, err := j.ListTradesClosedBetween(start, end)
		if err != nil {
			return fmt.Errorf("query trades: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradesOrg(recs))
		return nil
	})
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	return start, end, nil
}

func printDecisions(w io.Writer, recs []journal.DecisionRecord) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tALLOWED\tCODES\tPRICE\tQTY\tPOSITION\tDETAIL")
	for _, d := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%.2f\t%g\t%s\t%s\n",
			d.Time.Local().Format("15:04:05"), d.Action, d.Allowed, d.Codes,
			d.Price, d.Quantity, d.PositionID, d.Detail)
	}
	tw.Flush()
}
