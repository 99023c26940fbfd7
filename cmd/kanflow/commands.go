package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/evanschultz/kanflow/internal/adapters/server"
	"github.com/evanschultz/kanflow/internal/adapters/server/common"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/domain"
	"github.com/spf13/cobra"
)

// defaultReportWindowDays bounds the daily section of a report when no range is given.
const defaultReportWindowDays = 30

func (c *cli) pathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "export_dir: %s\n", paths.ExportDir)
			return nil
		},
	}
}

func (c *cli) importCmd() *cobra.Command {
	var inPath, source string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a dataset snapshot JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			return c.withRuntime("import", func(env *runtimeEnv) error {
				content, err := os.ReadFile(inPath)
				if err != nil {
					return fmt.Errorf("read import file: %w", err)
				}
				var snap app.Snapshot
				if err := json.Unmarshal(content, &snap); err != nil {
					return fmt.Errorf("decode import json: %w", err)
				}
				if strings.TrimSpace(source) == "" {
					source = filepath.Base(inPath)
				}
				batch, err := env.svc.ImportSnapshot(cmd.Context(), snap, source)
				if err != nil {
					return err
				}
				env.logger.Info("snapshot imported", "batch_id", batch.ID, "source", batch.Source, "items", batch.ItemCount, "statuses", len(snap.Statuses), "boards", len(snap.Boards))
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d items as batch %s\n", batch.ItemCount, batch.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot path")
	cmd.Flags().StringVar(&source, "source", "", "label recorded with the import batch (default: file name)")
	return cmd
}

func (c *cli) exportCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the stored dataset as snapshot JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("export", func(env *runtimeEnv) error {
				snap, err := env.svc.ExportSnapshot(cmd.Context())
				if err != nil {
					return err
				}
				return writeJSONTo(cmd.OutOrStdout(), outPath, snap)
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func (c *cli) metricsCmd() *cobra.Command {
	var (
		asOf   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show per-item start, stop, cycle time and age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("metrics", func(env *runtimeEnv) error {
				result, err := common.NewAppServiceAdapter(env.svc).ItemMetrics(cmd.Context(), common.ItemMetricsRequest{AsOf: asOf})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONTo(cmd.OutOrStdout(), "-", result)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderMetricsTable(result))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "measure age as of this date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func (c *cli) dailyCmd() *cobra.Command {
	var (
		from, to string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Show active and completed items per day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("daily", func(env *runtimeEnv) error {
				result, err := common.NewAppServiceAdapter(env.svc).DailySnapshots(cmd.Context(), common.DailySnapshotsRequest{From: from, To: to})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONTo(cmd.OutOrStdout(), "-", result)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderDailyTable(result))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD, default 30 days before --to)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func (c *cli) stateCmd() *cobra.Command {
	var (
		date   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "state KEY",
		Short: "Classify one item as blocked, stalled or neither",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime("state", func(env *runtimeEnv) error {
				view, err := common.NewAppServiceAdapter(env.svc).ItemState(cmd.Context(), common.ItemStateRequest{Key: args[0], Date: date})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSONTo(cmd.OutOrStdout(), "-", view)
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderItemState(view))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "date to classify (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func (c *cli) qualityCmd() *cobra.Command {
	var (
		category string
		render   bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "quality",
		Short: "List data-quality problems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("quality", func(env *runtimeEnv) error {
				result, err := common.NewAppServiceAdapter(env.svc).QualityReport(cmd.Context(), common.QualityReportRequest{Category: category})
				if err != nil {
					return err
				}
				env.logger.Info("quality scan complete", "problems", len(result.Problems), "category", result.Category)
				switch {
				case asJSON:
					return writeJSONTo(cmd.OutOrStdout(), "-", result)
				case render:
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderQualityMarkdown(qualityMarkdown(result), 100))
				default:
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderQualityTable(result))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "limit output to one problem category")
	cmd.Flags().BoolVar(&render, "render", false, "render a styled markdown report")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}

func (c *cli) reportCmd() *cobra.Command {
	var from, to, asOf, outPath string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write metrics, daily snapshots and quality findings as one JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("report", func(env *runtimeEnv) error {
				today := env.svc.Today()
				end, err := dateFlag("to", to, today)
				if err != nil {
					return err
				}
				start, err := dateFlag("from", from, end.AddDate(0, 0, -(defaultReportWindowDays-1)))
				if err != nil {
					return err
				}
				measured, err := dateFlag("as-of", asOf, today)
				if err != nil {
					return err
				}
				report, err := env.svc.Report(cmd.Context(), start, end, measured)
				if err != nil {
					return err
				}
				for _, failure := range report.Failures {
					env.logger.Warn("item excluded from report", "key", failure.Key, "reason", failure.Reason)
				}
				env.logger.Info("report built", "board", report.Board.Name, "items", len(report.Items), "days", len(report.Daily), "problems", len(report.Quality))
				return writeJSONTo(cmd.OutOrStdout(), outPath, report)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first daily date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last daily date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&asOf, "as-of", "", "measure age as of this date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func (c *cli) importsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "imports",
		Short: "List recorded import batches, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("imports", func(env *runtimeEnv) error {
				batches, err := env.svc.ListImports(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), renderImportsTable(batches))
				return nil
			})
		},
	}
}

func (c *cli) serveCmd() *cobra.Command {
	var bind, apiEndpoint, mcpEndpoint string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the REST API and MCP tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime("serve", func(env *runtimeEnv) error {
				cfg := server.Config{
					HTTPBind:      firstNonEmpty(bind, env.cfg.Server.HTTPBind),
					APIEndpoint:   firstNonEmpty(apiEndpoint, env.cfg.Server.APIEndpoint),
					MCPEndpoint:   firstNonEmpty(mcpEndpoint, env.cfg.Server.MCPEndpoint),
					ServerName:    "kanflow",
					ServerVersion: version,
				}
				env.logger.Info("serve listening", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return server.Run(cmd.Context(), cfg, server.Dependencies{
					Metrics: common.NewAppServiceAdapter(env.svc),
					Ready:   env.repo.Ping,
				})
			})
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&apiEndpoint, "api-endpoint", "", "REST API base path (default from config)")
	cmd.Flags().StringVar(&mcpEndpoint, "mcp-endpoint", "", "MCP endpoint path (default from config)")
	return cmd
}

// dateFlag parses one YYYY-MM-DD flag value, returning fallback when it is empty.
func dateFlag(name, raw string, fallback time.Time) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	date, err := domain.ParseDate(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD, got %q", name, raw)
	}
	return date, nil
}

// writeJSONTo writes payload as indented JSON to stdout ("-" or empty) or a file.
func writeJSONTo(stdout io.Writer, outPath string, payload any) error {
	encoded, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	encoded = append(encoded, '\n')

	outPath = strings.TrimSpace(outPath)
	if outPath == "" || outPath == "-" {
		_, err = stdout.Write(encoded)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
		return fmt.Errorf("write output file: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
