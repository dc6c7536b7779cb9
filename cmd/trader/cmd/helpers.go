package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rustyeddy/spottrader/config"
	"github.com/rustyeddy/spottrader/journal"
	strategy "github.com/rustyeddy/spottrader/signal"
)

// openJournal builds the configured journal, creating parent directories
// for its files.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		for _, p := range []string{jc.TradesFile, jc.EquityFile, jc.DecisionsFile} {
			if err := ensureDir(p); err != nil {
				return nil, err
			}
		}
		return journal.NewCSV(jc.TradesFile, jc.EquityFile, jc.DecisionsFile)
	case "sqlite":
		if err := ensureDir(jc.DBPath); err != nil {
			return nil, err
		}
		return journal.NewSQLite(jc.DBPath)
	default:
		return journal.Nop{}, nil
	}
}

func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	return nil
}

func signalParams(cfg *config.Config) strategy.Params {
	return strategy.Params{
		Fast:         cfg.Strategy.EMAFast,
		Slow:         cfg.Strategy.EMASlow,
		RSIPeriod:    cfg.Strategy.RSIPeriod,
		RSIThreshold: cfg.Strategy.RSIThreshold,
		UseRSI:       cfg.Strategy.UseRSIFilter,
	}
}
