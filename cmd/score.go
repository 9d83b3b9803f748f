package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BeyondDrewTV/stylescope/internal/model"
	"github.com/BeyondDrewTV/stylescope/internal/pipeline"
)

var (
	scoreTitle  string
	scoreAuthor string
	scoreISBN   string
	scoreJSON   bool
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a single book and print the result",
	Long: `Resolves the book against the source chain, scores it, and persists
the result. The score prints to stdout; add --json for the full record.

Examples:
  stylescope score --title "The Remains of the Day" --author "Kazuo Ishiguro"
  stylescope score --title "Dune" --author "Frank Herbert" --json`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		q := model.BookQuery{Title: scoreTitle, Author: scoreAuthor, ISBN: scoreISBN}
		result, err := env.Pipeline.ScoreBook(ctx, q, pipeline.ScoreOptions{IncrementRequested: true})
		if err != nil {
			return err
		}

		if scoreJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		score := result.Score
		fmt.Printf("%s by %s\n", q.Title, q.Author)
		fmt.Printf("  status:      %s\n", score.Status)
		if score.Status == model.ScoringOK {
			fmt.Printf("  overall:     %d\n", score.Overall)
			fmt.Printf("  readability: %d  grammar: %d  polish: %d  prose: %d  pacing: %d\n",
				score.Dimensions.Readability, score.Dimensions.Grammar,
				score.Dimensions.Polish, score.Dimensions.Prose, score.Dimensions.Pacing)
			fmt.Printf("  confidence:  %d (%s)\n", score.Confidence, score.ConfidenceLabel())
		}
		if len(score.Flags) > 0 {
			fmt.Printf("  flags:       %v\n", score.Flags)
		}
		if result.Context != nil {
			fmt.Printf("  context:     %s (%d excerpts)\n", result.Context.Source, result.Context.ExcerptCount)
		}

		zap.L().Info("score command complete", zap.String("title", q.Title))
		return nil
	},
}

func init() {
	f := scoreCmd.Flags()
	f.StringVar(&scoreTitle, "title", "", "book title (required)")
	f.StringVar(&scoreAuthor, "author", "", "book author (required)")
	f.StringVar(&scoreISBN, "isbn", "", "ISBN-10 or ISBN-13 hint")
	f.BoolVar(&scoreJSON, "json", false, "print the full result as JSON")
	_ = scoreCmd.MarkFlagRequired("title")
	_ = scoreCmd.MarkFlagRequired("author")

	rootCmd.AddCommand(scoreCmd)
}
