package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dvloznov/moneychat-nlp/internal/app"
	"github.com/dvloznov/moneychat-nlp/internal/cache"
	"github.com/dvloznov/moneychat-nlp/internal/config"
	"github.com/dvloznov/moneychat-nlp/internal/domain"
	"github.com/dvloznov/moneychat-nlp/internal/logger"
	"github.com/dvloznov/moneychat-nlp/internal/pipeline"
	"github.com/dvloznov/moneychat-nlp/internal/sheet"
)

const commandTimeout = 5 * time.Minute

// extractor is the part of pipeline.Service the commands call.
type extractor interface {
	ExtractExpense(ctx context.Context, msg domain.ChatMessage) (*domain.NLPResponse, error)
	AnalyzeSpreadsheet(ctx context.Context, req pipeline.AnalyzeRequest) (*domain.ExcelAnalysisResponse, error)
	ProcessRow(ctx context.Context, req pipeline.RowRequest) (*domain.RowResult, error)
}

// serviceFactory builds the service from the environment; tests replace it.
type serviceFactory func(ctx context.Context) (extractor, func(), error)

func buildService(ctx context.Context) (extractor, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	provider, err := app.NewProvider(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.Build(ctx, cfg, provider)
	if err != nil {
		return nil, nil, err
	}
	return a.Service, func() { _ = a.Close() }, nil
}

func newRootCmd(out io.Writer, newService serviceFactory) *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:           "nlp-cli",
		Short:         "Debug the expense extraction pipeline from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Show help when no subcommand is provided
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	commandContext := func(cmd *cobra.Command) (context.Context, context.CancelFunc) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log := logger.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.RFC3339}).Level(level)
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		return logger.WithContext(ctx, log), cancel
	}

	var msg domain.ChatMessage
	extractCmd := &cobra.Command{
		Use:   "extract <message>",
		Short: "Extract expenses from a chat message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			svc, closeFn, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			req := msg
			req.Message = args[0]
			resp, err := svc.ExtractExpense(ctx, req)
			if err != nil {
				return err
			}
			return printJSON(out, resp)
		},
	}
	extractCmd.Flags().StringVar(&msg.UserID, "user", "", "User ID")
	extractCmd.Flags().StringVar(&msg.SessionID, "session", "", "Session ID")
	extractCmd.Flags().StringArrayVar(&msg.Context, "context", nil, "Earlier conversation turn (repeatable, oldest first)")

	var (
		analyzeUser string
		processRows int
	)
	analyzeCmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Propose a column mapping for a spreadsheet and optionally process rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			svc, closeFn, err := newService(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			analysis, err := svc.AnalyzeSpreadsheet(ctx, pipeline.AnalyzeRequest{
				FileContent: base64.StdEncoding.EncodeToString(data),
				Filename:    filepath.Base(args[0]),
				UserID:      analyzeUser,
			})
			if err != nil {
				return err
			}
			if err := printJSON(out, analysis); err != nil {
				return err
			}
			if processRows <= 0 || !analysis.Success {
				return nil
			}

			tbl, err := sheet.Read(data, args[0])
			if err != nil {
				return err
			}
			for i := 0; i < tbl.Len() && i < processRows; i++ {
				res, err := svc.ProcessRow(ctx, pipeline.RowRequest{
					RowData:       tbl.Row(i),
					ColumnMapping: analysis.ColumnMapping,
				})
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "row %d: %v\n", i+1, err)
					continue
				}
				if err := printJSON(out, res); err != nil {
					return err
				}
			}
			return nil
		},
	}
	analyzeCmd.Flags().StringVar(&analyzeUser, "user", "", "User ID")
	analyzeCmd.Flags().IntVar(&processRows, "rows", 0, "Also process the first N data rows with the proposed mapping")

	previewCmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Print the headers and first rows of a spreadsheet without calling the model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			tbl, err := sheet.Read(data, args[0])
			if err != nil {
				return err
			}
			return printJSON(out, map[string]interface{}{
				"headers":      tbl.Headers,
				"total_rows":   tbl.Len(),
				"preview_data": tbl.Preview(sheet.PreviewSize),
			})
		},
	}

	var keyMsg domain.ChatMessage
	cacheKeyCmd := &cobra.Command{
		Use:   "cache-key <message>",
		Short: "Print the response cache key for a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := keyMsg
			req.Message = args[0]
			_, err := fmt.Fprintln(out, cache.Key(req))
			return err
		},
	}
	cacheKeyCmd.Flags().StringVar(&keyMsg.UserID, "user", "", "User ID")
	cacheKeyCmd.Flags().StringArrayVar(&keyMsg.Context, "context", nil, "Earlier conversation turn (repeatable, oldest first)")

	rootCmd.AddCommand(extractCmd, analyzeCmd, previewCmd, cacheKeyCmd)
	return rootCmd
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd(os.Stdout, buildService).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if k := domain.KindOf(err); k != domain.KindInternal {
			fmt.Fprintf(os.Stderr, "Kind: %s\n", k)
		}
		os.Exit(1)
	}
}
