package main

import (
	"encoding/csv"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/pipeline"
)

var (
	batchFile    string
	batchWorkers int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Rescore books from a CSV file",
	Long: `Reads title,author[,isbn] rows from a CSV file and scores each book
with bounded concurrency. Rescoring does not count against anyone's
quota and does not bump times_requested. Per-book failures are logged
and the batch continues.

Example:
  stylescope batch --file books.csv --workers 4`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queries, err := readBatchFile(batchFile)
		if err != nil {
			return err
		}
		if len(queries) == 0 {
			return eris.Errorf("batch: no rows in %s", batchFile)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Batch.MaxConcurrentBooks
		}
		if workers <= 0 {
			workers = 1
		}

		log := zap.L().With(zap.String("command", "batch"))
		log.Info("batch: starting", zap.Int("books", len(queries)), zap.Int("workers", workers))

		var scored, failed atomic.Int64
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)

		for _, q := range queries {
			q := q
			g.Go(func() error {
				result, err := env.Pipeline.ScoreBook(gctx, q, pipeline.ScoreOptions{})
				if err != nil {
					failed.Add(1)
					log.Error("batch: book failed", zap.String("title", q.Title), zap.Error(err))
					return nil
				}
				if result.Score.Status != model.ScoringOK {
					failed.Add(1)
					return nil
				}
				scored.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		log.Info("batch: finished",
			zap.Int64("scored", scored.Load()),
			zap.Int64("failed", failed.Load()))
		return nil
	},
}

// readBatchFile parses title,author[,isbn] rows. A first row whose title
// column reads "title" is treated as a header and skipped.
func readBatchFile(path string) ([]model.BookQuery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: parse %s", path)
	}

	var queries []model.BookQuery
	for i, row := range rows {
		if len(row) < 2 {
			continue
		}
		title := strings.TrimSpace(row[0])
		author := strings.TrimSpace(row[1])
		if i == 0 && strings.EqualFold(title, "title") {
			continue
		}
		if title == "" || author == "" {
			continue
		}
		q := model.BookQuery{Title: title, Author: author}
		if len(row) > 2 {
			q.ISBN = strings.TrimSpace(row[2])
		}
		queries = append(queries, q)
	}
	return queries, nil
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchFile, "file", "", "CSV file of title,author[,isbn] rows (required)")
	f.IntVar(&batchWorkers, "workers", 0, "concurrent books (default from config)")
	_ = batchCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(batchCmd)
}
