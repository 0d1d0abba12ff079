package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"timefreedom/internal/lead"
	"timefreedom/internal/pipeline"
	"timefreedom/internal/roi"
	"timefreedom/internal/server"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			recovered, err := a.store.RecoverInterrupted(ctx, time.Now())
			if err != nil {
				a.log.Warn("interrupted run recovery failed", slog.Any("error", err))
			} else if len(recovered) > 0 {
				a.log.Info("recovered interrupted runs", slog.Int("count", len(recovered)))
			}

			opts := []server.Option{server.WithNotifier(a.dispatcher), server.WithRunStore(a.store)}
			if a.uploader != nil {
				opts = append(opts, server.WithUploader(a.uploader))
			}
			srv := server.New(server.Config{
				Port:           a.cfg.Server.Port,
				RequestTimeout: a.cfg.RequestTimeout(),
				RateLimitRPS:   a.cfg.Server.RateLimitRPS,
				RateLimitBurst: a.cfg.Server.RateLimitBurst,
			}, a.orchestrator, a.log, opts...)

			err = srv.ListenAndServe(ctx)
			a.log.Info("waiting for background deliveries")
			a.dispatcher.Wait()
			a.log.Info("side channel totals", slog.Any("services", a.dispatcher.Stats().Snapshot()))
			return err
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		leadPath string
		deliver  bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a report for a lead JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(leadPath)
			if err != nil {
				return fmt.Errorf("read lead: %w", err)
			}
			var l lead.Lead
			if err := json.Unmarshal(raw, &l); err != nil {
				return fmt.Errorf("parse lead: %w", err)
			}
			l = lead.Normalize(l, time.Now())
			if err := lead.Validate(l); err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.orchestrator.Run(ctx, pipeline.NewCorrelationID(), l)
			if err != nil {
				return err
			}

			if deliver {
				if _, err := a.dispatcher.Deliver(ctx, notifyJob(out, l)); err != nil {
					a.log.Warn("delivery incomplete", slog.Any("error", err))
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"correlationId": out.CorrelationID,
				"repaired":      out.Repaired,
				"validation":    out.Final,
				"data":          out.Result,
			})
		},
	}
	cmd.Flags().StringVar(&leadPath, "lead", "", "path to a lead JSON file")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "also run CRM sync, upload and email")
	_ = cmd.MarkFlagRequired("lead")
	return cmd
}

func roiCmd() *cobra.Command {
	var (
		revenue string
		hours   roi.TaskHours
	)
	cmd := &cobra.Command{
		Use:   "roi",
		Short: "Project the value of delegated hours",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := roi.Calculate(hours, revenue)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Hourly rate\t%s\n", roi.FormatCurrency(c.HourlyRate))
			fmt.Fprintf(w, "Hours delegated per week\t%s\n", roi.FormatHours(c.WeeklyHoursDelegated))
			fmt.Fprintf(w, "Annual hours unlocked\t%s\n", roi.FormatHours(c.AnnualHoursUnlocked))
			fmt.Fprintf(w, "Annual revenue unlocked\t%s\n", roi.FormatCurrency(c.AnnualRevenueUnlocked))
			fmt.Fprintf(w, "EA investment\t%s\n", roi.FormatCurrency(c.EAInvestment))
			fmt.Fprintf(w, "Net return\t%s\n", roi.FormatCurrency(c.NetReturn))
			fmt.Fprintf(w, "ROI\t%s\n", roi.FormatMultiplier(c.ROIMultiplier))
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&revenue, "revenue", "", `revenue bracket, e.g. "$500k to $1M"`)
	cmd.Flags().Float64Var(&hours.Email, "email", 0, "weekly hours of email handed off")
	cmd.Flags().Float64Var(&hours.PersonalLife, "personal", 0, "weekly hours of personal errands handed off")
	cmd.Flags().Float64Var(&hours.Calendar, "calendar", 0, "weekly hours of calendar work handed off")
	cmd.Flags().Float64Var(&hours.BusinessProcesses, "business", 0, "weekly hours of business processes handed off")
	return cmd
}

func runsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			a, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			runs, err := a.store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CORRELATION ID\tSTATE\tLEAD\tREPAIRED\tSTARTED")
			for _, r := range runs {
				state := r.State
				if r.ErrorKind != "" {
					state += " (" + r.ErrorKind + ")"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
					r.CorrelationID, state, r.LeadEmail, r.Repaired, r.StartedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	return cmd
}
