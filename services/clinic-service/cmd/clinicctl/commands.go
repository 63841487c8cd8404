package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/md-rashed-zaman/clinicops/libs/grpcx"
	"github.com/md-rashed-zaman/clinicops/services/clinic-service/internal/reconcile"
)

func withTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 5 * time.Minute
	}
	return context.WithTimeout(cmd.Context(), d)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the clinic schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, time.Minute)
			defer cancel()
			sess, err := openSession(ctx, cmd, false)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.store.Migrate(ctx); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

type diagnoseOutput struct {
	Total    int                 `json:"total"`
	Problems []reconcile.Finding `json:"problems"`
}

func diagnoseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "List settled appointments whose supply expense is missing or wrong",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd, 0)
			defer cancel()
			sess, err := openSession(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			findings, err := sess.engine.Diagnose(ctx, sess.settings.CompanyID)
			if err != nil {
				return err
			}
			if findings == nil {
				findings = []reconcile.Finding{}
			}
			return writeJSON(cmd.OutOrStdout(), diagnoseOutput{Total: len(findings), Problems: findings})
		},
	}
}

func backfillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Create or correct supply expenses for settled appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			ctx, cancel := withTimeout(cmd, 0)
			defer cancel()
			sess, err := openSession(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.engine.Backfill(ctx, sess.settings.CompanyID, force)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if res.Failed > 0 {
				return fmt.Errorf("%d appointment(s) failed", res.Failed)
			}
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "Rewrite supply expenses even when they look correct")
	return cmd
}

func regenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Delete every supply expense of the company and rebuild them",
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes {
				return errors.New("regenerate deletes all supply expenses; pass --yes to confirm")
			}
			ctx, cancel := withTimeout(cmd, 0)
			defer cancel()
			sess, err := openSession(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer sess.Close()

			res, err := sess.engine.Regenerate(ctx, sess.settings.CompanyID)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().Bool("yes", false, "Confirm the destructive rebuild")
	return cmd
}

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the clinic-service gRPC health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			service, _ := cmd.Flags().GetString("service")

			conn, err := grpcx.Dial(s.GRPCAddr, grpcx.DialOptions{})
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := withTimeout(cmd, 5*time.Second)
			defer cancel()
			status, err := grpcx.CheckHealth(ctx, conn, service)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service %q is %s", service, status)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "gRPC address (env GRPC_ADDR)")
	cmd.Flags().String("service", "clinic-service", "Health service name")
	return cmd
}
