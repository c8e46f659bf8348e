package store

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"cortex5/internal/model"
)

var _ BarStore = (*PostgresStore)(nil)

const (
	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
	writeBatchSize         = 500
)

// PostgresOption defines connection options for PostgreSQL or TimescaleDB.
type PostgresOption struct {
	Host       string
	Port       int
	User       string
	Password   string
	Database   string
	SSLMode    string
	Params     map[string]string
	ConnString string
	Config     *gorm.Config
}

// BarRow is the relational schema of a daily bar.
type BarRow struct {
	Symbol string    `gorm:"primaryKey;size:16"`
	Time   time.Time `gorm:"primaryKey;index"`
	Open   float64   `gorm:"not null"`
	High   float64   `gorm:"not null"`
	Low    float64   `gorm:"not null"`
	Close  float64   `gorm:"not null"`
	Volume int64     `gorm:"not null"`
}

func (BarRow) TableName() string { return "market_bars" }

func toRow(symbol string, b model.OHLCV) BarRow {
	return BarRow{
		Symbol: symbol,
		Time:   b.Time.UTC(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

func (r BarRow) bar() model.OHLCV {
	return model.OHLCV{Time: r.Time.UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume}
}

// PostgresStore implements BarStore on a PostgreSQL table via gorm.
type PostgresStore struct {
	opt PostgresOption
	db  *gorm.DB
}

// NewPostgresStore connects and migrates the bars table.
func NewPostgresStore(option PostgresOption) (*PostgresStore, error) {
	connString, err := option.dsn()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{}
	}

	db, err := gorm.Open(postgres.Open(connString), config)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&BarRow{}); err != nil {
		return nil, fmt.Errorf("migrate bars: %w", err)
	}
	return &PostgresStore{opt: option, db: db}, nil
}

// WriteBars upserts bars keyed by (symbol, time).
func (s *PostgresStore) WriteBars(ctx context.Context, symbol string, bars []model.OHLCV) error {
	if len(bars) == 0 {
		return nil
	}
	symbol = strings.ToUpper(symbol)
	rows := make([]BarRow, len(bars))
	for i, b := range bars {
		rows[i] = toRow(symbol, b)
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "time"}},
			DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
		}).
		CreateInBatches(rows, writeBatchSize).Error
	if err != nil {
		return fmt.Errorf("write bars for %s: %w", symbol, err)
	}
	return nil
}

// ReadBars returns bars for symbol within [start, end], oldest first.
func (s *PostgresStore) ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]model.OHLCV, error) {
	q := s.db.WithContext(ctx).Where("symbol = ?", strings.ToUpper(symbol))
	if !start.IsZero() {
		q = q.Where("time >= ?", start.UTC())
	}
	if !end.IsZero() {
		q = q.Where("time <= ?", end.UTC())
	}
	var rows []BarRow
	if err := q.Order("time").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read bars for %s: %w", symbol, err)
	}
	bars := make([]model.OHLCV, len(rows))
	for i, r := range rows {
		bars[i] = r.bar()
	}
	return bars, nil
}

// ListSymbols returns the distinct stored symbols.
func (s *PostgresStore) ListSymbols(ctx context.Context) ([]string, error) {
	var symbols []string
	err := s.db.WithContext(ctx).Model(&BarRow{}).Distinct("symbol").Order("symbol").Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("list symbols: %w", err)
	}
	return symbols, nil
}

// Close closes the underlying connection pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt PostgresOption) dsn() (string, error) {
	if opt.ConnString != "" {
		return opt.ConnString, nil
	}
	if opt.Database == "" {
		return "", fmt.Errorf("postgres: database is required")
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
		Path:   "/" + opt.Database,
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}
