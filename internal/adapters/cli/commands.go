package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

func newIndexCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "index <path|url>...",
		Short: "Load, chunk, embed and store documents",
		Long: `Indexes each path or http(s) URL in turn. Documents whose content is
already indexed are skipped. Every locator is attempted; the command fails
if any of them failed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := r.ensure(cmd.Context())
			if err != nil {
				return err
			}

			var (
				reports []*domain.IndexReport
				errs    []error
			)
			for _, locator := range args {
				report, err := services.Indexer.CreateIndex(cmd.Context(), locator)
				if err != nil {
					errs = append(errs, err)
					cmd.PrintErrf("failed  %s: %v\n", locator, err)
					continue
				}
				reports = append(reports, report)
				if r.jsonOut {
					continue
				}
				if report.Skipped {
					cmd.Printf("skipped %s (already indexed, %s)\n", locator, shortHash(report.ContentHash))
				} else {
					cmd.Printf("indexed %s: %d chunks (%s)\n", locator, report.Chunks, shortHash(report.ContentHash))
				}
			}
			if r.jsonOut {
				if err := r.printJSON(cmd, reports); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

func newAskCommand(r *runner) *cobra.Command {
	var showContext bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := r.ensure(cmd.Context())
			if err != nil {
				return err
			}
			answer, err := services.Answerer.AnswerQuestion(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if r.jsonOut {
				return r.printJSON(cmd, answer)
			}

			cmd.Println(answer.Text)
			if showContext {
				cmd.Println()
				for i, passage := range answer.ContextUsed {
					source := passage.Metadata[domain.MetaSource]
					if source == "" {
						source = string(passage.Origin)
					}
					cmd.Printf("[%d] %s\n%s\n\n", i+1, source, passage.Text)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&showContext, "context", "c", false, "print the passages used to answer")
	return cmd
}

func newClearCommand(r *runner) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every indexed entry, upload and ledger record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			services, err := r.ensure(cmd.Context())
			if err != nil {
				return err
			}
			if err := services.Admin.ClearAll(cmd.Context()); err != nil {
				return err
			}
			cmd.Println("index cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the wipe")
	return cmd
}

func newRecordsCommand(r *runner) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "records [content-hash]",
		Short: "Show index ledger records",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := r.ensure(cmd.Context())
			if err != nil {
				return err
			}
			var records []domain.IndexRecord
			if len(args) == 1 {
				record, err := services.Admin.GetRecord(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				records = append(records, *record)
			} else {
				records, err = services.Admin.ListRecords(cmd.Context(), limit)
				if err != nil {
					return err
				}
			}
			if r.jsonOut {
				return r.printJSON(cmd, records)
			}
			if len(records) == 0 {
				cmd.Println("No records.")
				return nil
			}
			for _, rec := range records {
				line := fmt.Sprintf("%s  %-10s %4d  %s", shortHash(rec.ContentHash), rec.Status, rec.Chunks, rec.Locator)
				if rec.Error != "" {
					line += "  error: " + rec.Error
				}
				cmd.Println(line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of records")
	return cmd
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
