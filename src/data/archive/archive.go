// Package archive mirrors proposals, votes and warnings from store snapshots
// into a SQL database for reporting. The JSON snapshot stays the source of
// truth; the mirror is rebuilt after every save.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oooz/oooz-bot/src/data/store"
	"github.com/oooz/oooz-bot/src/sugestie"
	"github.com/oooz/oooz-bot/src/warns"
)

// Proposal is one row of the proposals table.
type Proposal struct {
	ID          string `gorm:"primaryKey;size:32"`
	Channel     string `gorm:"size:32"`
	Author      string `gorm:"size:32;index"`
	Text        string `gorm:"type:text"`
	Created     time.Time
	ReviewEnd   time.Time
	VoteEnd     time.Time
	Phase       string `gorm:"size:16;index"`
	For         int
	Abstain     int
	Against     int
	Outcome     *bool
	DoneAt      *time.Time
	Changes     string `gorm:"type:text"`
	AnnulledAt  *time.Time
	AnnulReason string `gorm:"type:text"`
}

// ProposalVote is one voter's current choice.
type ProposalVote struct {
	ProposalID string `gorm:"primaryKey;size:32"`
	UserID     string `gorm:"primaryKey;size:32"`
	Choice     string `gorm:"size:8"`
}

// Warning is one warning row.
type Warning struct {
	ID      uint   `gorm:"primaryKey"`
	UserID  string `gorm:"size:32;index"`
	Issued  time.Time
	Reason  string `gorm:"type:text"`
	Expired *time.Time
}

type Archive struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

// Open connects to driver ("mysql" or "sqlite") and migrates the schema.
func Open(driver, dsn string, log *slog.Logger) (*Archive, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "archive")
	cfg := &gorm.Config{Logger: gormLogger(log)}

	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(driver) {
	case "mysql":
		db, err = gorm.Open(mysql.Open(mysqlDSN(dsn)), cfg)
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("archive: unknown driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", driver, err)
	}
	if err := db.AutoMigrate(&Proposal{}, &ProposalVote{}, &Warning{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Archive{db: db, log: log, now: time.Now}, nil
}

func gormLogger(log *slog.Logger) logger.Interface {
	return logger.New(
		slog.NewLogLogger(log.Handler(), slog.LevelWarn),
		logger.Config{SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true},
	)
}

// mysqlDSN makes times scan into time.Time and text use utf8mb4.
func mysqlDSN(dsn string) string {
	dsn = ensureParam(dsn, "parseTime", "true")
	if !strings.Contains(dsn, "charset=") {
		dsn = ensureParam(dsn, "charset", "utf8mb4")
		dsn = ensureParam(dsn, "collation", "utf8mb4_unicode_ci")
	}
	return dsn
}

func ensureParam(dsn, key, val string) string {
	if strings.Contains(dsn, key+"=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + val
}

// Sync replaces the mirror with the content of snapshot in one transaction.
func (a *Archive) Sync(ctx context.Context, snapshot map[string]any) error {
	now := a.now()
	var (
		proposals []Proposal
		votes     []ProposalVote
		warnings  []Warning
	)
	for _, p := range sugestie.FromSnapshot(snapshot) {
		row := Proposal{
			ID:        p.ID,
			Channel:   p.Channel,
			Author:    p.Author,
			Text:      p.Text,
			Created:   p.Created,
			ReviewEnd: p.ReviewEnd,
			VoteEnd:   p.VoteEnd,
			Phase:     p.Phase(now).String(),
			For:       p.For.Len(),
			Abstain:   p.Abstain.Len(),
			Against:   p.Against.Len(),
			Outcome:   p.Outcome,
		}
		if p.Done != nil {
			row.DoneAt, row.Changes = &p.Done.Time, p.Done.Text
		}
		if p.Annulled != nil {
			row.AnnulledAt, row.AnnulReason = &p.Annulled.Time, p.Annulled.Text
		}
		proposals = append(proposals, row)
		for _, c := range sugestie.Choices {
			for _, user := range p.Votes(c).Items() {
				votes = append(votes, ProposalVote{ProposalID: p.ID, UserID: user, Choice: string(c)})
			}
		}
	}
	for _, w := range warns.FromSnapshot(snapshot) {
		warnings = append(warnings, Warning{UserID: w.User, Issued: w.Time, Reason: w.Reason, Expired: w.Expired})
	}

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&ProposalVote{}, &Proposal{}, &Warning{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		if len(proposals) > 0 {
			if err := tx.CreateInBatches(&proposals, 200).Error; err != nil {
				return err
			}
		}
		if len(votes) > 0 {
			if err := tx.CreateInBatches(&votes, 500).Error; err != nil {
				return err
			}
		}
		if len(warnings) > 0 {
			if err := tx.CreateInBatches(&warnings, 500).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive: sync: %w", err)
	}
	a.log.Debug("archive synced", "proposals", len(proposals), "votes", len(votes), "warnings", len(warnings))
	return nil
}

// Hook returns a store save hook that syncs the mirror and logs failures.
func (a *Archive) Hook() store.SaveHook {
	return func(ctx context.Context, snapshot map[string]any) {
		if err := a.Sync(ctx, snapshot); err != nil {
			a.log.Error("archive sync failed", "error", err)
		}
	}
}

// DB exposes the connection for read-only reporting.
func (a *Archive) DB() *gorm.DB { return a.db }

func (a *Archive) Close() error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
