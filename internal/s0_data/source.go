package s0_data

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/cbquant/pkg/config"
	"github.com/wonny/cbquant/pkg/database"
	"github.com/wonny/cbquant/pkg/logger"
)

// Source produces a freshly loaded panel
type Source interface {
	Name() string
	Load(ctx context.Context) (*Panel, error)
}

// CSVSource loads the panel from a CSV file
type CSVSource struct {
	Path    string
	Options CSVOptions
}

// Name returns the source label used in logs
func (s *CSVSource) Name() string {
	return "csv:" + s.Path
}

// Load reads and indexes the CSV file
func (s *CSVSource) Load(ctx context.Context) (*Panel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadCSV(s.Path, s.Options)
}

// PostgresSource loads the whole stored panel through PanelRepository
type PostgresSource struct {
	Repo *PanelRepository
	From time.Time
	To   time.Time
}

// Name returns the source label used in logs
func (s *PostgresSource) Name() string {
	return "postgres:data.cb_daily"
}

// Load queries the configured range and indexes it
func (s *PostgresSource) Load(ctx context.Context) (*Panel, error) {
	table, err := s.Repo.LoadRange(ctx, s.From, s.To)
	if err != nil {
		return nil, err
	}
	if table.Len() == 0 {
		return nil, fmt.Errorf("no panel rows between %s and %s",
			s.From.Format("2006-01-02"), s.To.Format("2006-01-02"))
	}
	return Load(table)
}

// NewSource picks the panel source configured by DATA_SOURCE.
// db may be nil for the csv source.
func NewSource(cfg *config.Config, db *database.DB) (Source, error) {
	switch cfg.Data.Source {
	case "csv":
		return &CSVSource{
			Path:    cfg.Data.CSVPath,
			Options: CSVOptions{PctChgPercent: cfg.Data.PctChgPercent},
		}, nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres panel source needs a database connection")
		}
		return &PostgresSource{
			Repo: NewPanelRepository(db.Pool),
			From: time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Now().AddDate(1, 0, 0),
		}, nil
	default:
		return nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// LoadWithLog loads a panel and logs its shape
func LoadWithLog(ctx context.Context, src Source, log *logger.Logger) (*Panel, error) {
	start := time.Now()
	p, err := src.Load(ctx)
	if err != nil {
		log.WithError(err).WithField("source", src.Name()).Error("Panel load failed")
		return nil, fmt.Errorf("load panel from %s: %w", src.Name(), err)
	}

	dates := p.Dates()
	fields := map[string]interface{}{
		"source":      src.Name(),
		"rows":        p.Len(),
		"instruments": len(p.Groups()),
		"dates":       len(dates),
		"version":     p.Version(),
	}
	if len(dates) > 0 {
		fields["first_date"] = dates[0]
		fields["last_date"] = dates[len(dates)-1]
	}
	log.WithDuration(start).WithFields(fields).Info("Panel loaded")

	return p, nil
}
