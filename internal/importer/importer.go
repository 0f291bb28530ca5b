// Package importer loads candidate contact lists from CSV uploads into imported_records.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"talentCorner/internal/database"
	"talentCorner/internal/errcode"
	"talentCorner/internal/metrics"
)

const (
	importTable      = "imported_records"
	defaultChunkSize = 100
)

// ErrEmptyInput is returned when the upload contains no data rows.
var ErrEmptyInput = errcode.NewValidation("CSV file is empty or has no valid rows.")

// Options controls a single import.
type Options struct {
	// Append keeps existing rows; when false the table is cleared first.
	Append bool
}

// Result summarizes an import.
type Result struct {
	Parsed   int  `json:"parsed"`
	Imported int  `json:"imported"`
	Skipped  int  `json:"skipped"`
	Cleared  bool `json:"cleared"`
}

// Pipeline 负责 CSV 解析、字段别名解析、校验与批量写入。
type Pipeline struct {
	db        *gorm.DB
	aliases   Aliases
	logger    *slog.Logger
	chunkSize int
}

// NewPipeline 使用默认别名表构造导入管道。
func NewPipeline(db *gorm.DB, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		db:        db,
		aliases:   DefaultAliases,
		logger:    logger,
		chunkSize: defaultChunkSize,
	}
}

// Accept resolves each row into a record. Rows missing a full name, email or phone are
// returned as 1-based positions in skipped.
func (p *Pipeline) Accept(rows []Row) (records []database.ImportedRecord, skipped []int) {
	records = make([]database.ImportedRecord, 0, len(rows))
	for i, row := range rows {
		rec := database.ImportedRecord{
			FullName: p.aliases.Resolve(row, FieldFullName),
			Email:    p.aliases.Resolve(row, FieldEmail),
			PhoneNo:  p.aliases.Resolve(row, FieldPhone),
			TokenURL: p.aliases.Resolve(row, FieldToken),
		}
		if rec.FullName == "" || rec.Email == "" || rec.PhoneNo == "" {
			skipped = append(skipped, i+1)
			continue
		}
		records = append(records, rec)
	}
	return records, skipped
}

// Import parses r completely, then writes the accepted rows through one pooled connection.
func (p *Pipeline) Import(ctx context.Context, r io.Reader, opts Options) (Result, error) {
	rows, err := ReadAll(r)
	if err != nil {
		return Result{}, errcode.Wrap(errcode.Validation, "invalid CSV file", err)
	}
	if len(rows) == 0 {
		return Result{}, ErrEmptyInput
	}

	records, skipped := p.Accept(rows)
	for _, n := range skipped {
		p.logger.Info("skipping csv row with missing required fields", slog.Int("row", n))
	}

	res := Result{Parsed: len(rows), Skipped: len(skipped)}

	err = p.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		session := conn.Session(&gorm.Session{SkipDefaultTransaction: true})
		if !opts.Append {
			if err := p.clear(session); err != nil {
				return err
			}
			res.Cleared = true
		}
		return p.insert(ctx, session, records)
	})
	if err != nil {
		return res, errcode.Persistence("import csv rows", err)
	}

	res.Imported = len(records)
	metrics.ObserveImport(res.Imported, res.Skipped)
	p.logger.Info("csv import finished",
		slog.Int("parsed", res.Parsed),
		slog.Int("imported", res.Imported),
		slog.Int("skipped", res.Skipped),
		slog.Bool("cleared", res.Cleared),
	)
	return res, nil
}

func (p *Pipeline) clear(conn *gorm.DB) error {
	if err := conn.Exec("TRUNCATE TABLE " + importTable).Error; err != nil {
		p.logger.Warn("truncate failed, falling back to delete", slog.Any("error", err))
		if err := conn.Exec("DELETE FROM " + importTable).Error; err != nil {
			return fmt.Errorf("clear %s: %w", importTable, err)
		}
	}
	return nil
}

// insert schedules every chunk at once. The borrowed connection runs one statement at a time,
// so the goroutines take turns on it; the first failure cancels the chunks still waiting.
func (p *Pipeline) insert(ctx context.Context, conn *gorm.DB, records []database.ImportedRecord) error {
	if len(records) == 0 {
		return nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(records); start += p.chunkSize {
		chunk := records[start:min(start+p.chunkSize, len(records))]
		g.Go(func() error {
			mu.Lock()
			defer mu.Unlock()
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := conn.WithContext(gctx).Create(&chunk).Error; err != nil {
				return fmt.Errorf("insert %d rows: %w", len(chunk), err)
			}
			return nil
		})
	}
	return g.Wait()
}
