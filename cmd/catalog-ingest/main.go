package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/gomart/order-engine/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	minorUnits    = 100
)

// feedRow is one NDJSON line of a supplier catalog dump.
// Prices come in as major currency units with up to two decimals.
type feedRow struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Image        string          `json:"image"`
	Price        decimal.Decimal `json:"price"`
	CountInStock int             `json:"countInStock"`
}

// fileResult holds the parsed rows of a single feed file, in file order.
type fileResult struct {
	rows []feedRow
}

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.ndjson.gz catalog feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.ndjson.gz"))
	if err != nil {
		return errors.Wrap(err, "list feed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.ndjson.gz feeds found in %s", dataDir)
	}

	slog.Info("parsing catalog feeds", slog.Int("files", len(files)))

	results, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	// Feeds are ordered by supplier priority: the first occurrence of a
	// product id wins, later feeds only fill in ids not seen before.
	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	exact := make(map[string]struct{})

	var merged []feedRow
	for _, r := range results {
		for _, row := range r.rows {
			if seen.TestString(row.ID) {
				// Bloom hits can be false positives, confirm before skipping.
				if _, dup := exact[row.ID]; dup {
					continue
				}
			}
			seen.AddString(row.ID)
			exact[row.ID] = struct{}{}
			merged = append(merged, row)
		}
	}

	slog.Info("feeds merged", slog.Int("unique_products", len(merged)))

	if len(merged) == 0 {
		slog.Info("no products to ingest")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := writeProducts(ctx, pool, merged); err != nil {
		return errors.Wrap(err, "write products to database")
	}

	return nil
}

// parseFeeds streams and parses every feed file concurrently.
func parseFeeds(ctx context.Context, files []string) ([]fileResult, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFeedFile(ctx, i, f, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

func parseFeedFile(ctx context.Context, idx int, path string, results []fileResult) func() error {
	return func() error {
		var (
			rows  []feedRow
			count uint64
		)

		if err := streamGzFile(ctx, path, func(line []byte) error {
			var row feedRow
			if err := json.Unmarshal(line, &row); err != nil {
				return errors.Wrapf(err, "parse line %d", count+1)
			}
			if row.ID == "" || row.Name == "" {
				return errors.Errorf("line %d: missing id or name", count+1)
			}
			if row.Price.IsNegative() || row.CountInStock < 0 {
				return errors.Errorf("line %d: negative price or stock for %s", count+1, row.ID)
			}

			rows = append(rows, row)
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress",
					slog.String("file", filepath.Base(path)),
					slog.Uint64("rows", count),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "parse feed %s", path)
		}

		slog.Info("feed parsed",
			slog.String("file", filepath.Base(path)),
			slog.Uint64("total_rows", count),
		)

		results[idx] = fileResult{rows: rows}
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const upsertProductSQL = `
INSERT INTO products (id, name, image, price, count_in_stock)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    image = EXCLUDED.image,
    price = EXCLUDED.price,
    count_in_stock = EXCLUDED.count_in_stock
`

// writeProducts upserts all merged catalog rows into the database.
func writeProducts(ctx context.Context, pool *pgxpool.Pool, rows []feedRow) error {
	slog.Info("writing products to database", slog.Int("count", len(rows)))

	for i, row := range rows {
		minor := row.Price.Mul(decimal.NewFromInt(minorUnits))
		if !minor.IsInteger() {
			return errors.Errorf("product %s: price %s has sub-minor-unit precision", row.ID, row.Price)
		}

		if _, err := pool.Exec(ctx, upsertProductSQL,
			row.ID, row.Name, row.Image, minor.IntPart(), row.CountInStock,
		); err != nil {
			return errors.Wrapf(err, "upsert product %s", row.ID)
		}

		if (i+1)%100 == 0 || i+1 == len(rows) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(rows)))
		}
	}

	return nil
}
