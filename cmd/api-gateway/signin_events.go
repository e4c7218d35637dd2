package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/upb/sso-gateway/config"
	"github.com/upb/sso-gateway/models"
	"github.com/upb/sso-gateway/repositories"
	"github.com/upb/sso-gateway/repositories/postgres"
)

// eventStoreOpener opens the sign-in audit store and returns a closer for it
type eventStoreOpener func(ctx context.Context) (repositories.SignInEventRepository, func() error, error)

// openSignInEvents connects to the audit database named by AUDIT_DATABASE_URL
func openSignInEvents(ctx context.Context) (repositories.SignInEventRepository, func() error, error) {
	cfg, err := config.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AuditDatabase == nil {
		return nil, nil, errors.New("AUDIT_DATABASE_URL is not set: sign-in auditing is disabled")
	}

	logger, err := initLogger()
	if err != nil {
		return nil, nil, err
	}

	db, err := postgres.NewDB(cfg.AuditDatabase, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to audit database: %w", err)
	}
	return postgres.NewSignInEventRepository(db, logger), db.Close, nil
}

func newSignInEventsCmd(open eventStoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signin-events",
		Short: "Inspect the sign-in audit trail",
	}
	cmd.AddCommand(
		newSignInEventsListCmd(open),
		newSignInEventsShowCmd(open),
		newSignInEventsRejectedCmd(open),
	)
	return cmd
}

func newSignInEventsListCmd(open eventStoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sign-in events for a user or a request",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			requestID, _ := cmd.Flags().GetString("request")
			limit, _ := cmd.Flags().GetInt("limit")
			offset, _ := cmd.Flags().GetInt("offset")

			if (userID == "") == (requestID == "") {
				return errors.New("exactly one of --user or --request is required")
			}
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}

			repo, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			var events []*models.SignInEvent
			if userID != "" {
				events, err = repo.GetByUserID(cmd.Context(), userID, limit, offset)
			} else {
				events, err = repo.GetByRequestID(cmd.Context(), requestID)
			}
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Time", "Action", "Outcome", "Stage", "User", "Code", "Request"})
			for _, e := range events {
				t.AppendRow(table.Row{
					e.Timestamp.Format(time.RFC3339),
					e.Action,
					e.Outcome,
					e.Stage,
					e.UserID,
					e.ErrorCode,
					e.RequestID,
				})
			}
			t.SetStyle(table.StyleLight)
			t.Render()

			fmt.Fprintf(cmd.OutOrStdout(), "%d event(s)\n", len(events))
			return nil
		},
	}
	cmd.Flags().StringP("user", "u", "", "user id (oid) to list events for")
	cmd.Flags().StringP("request", "r", "", "request id to list events for")
	cmd.Flags().IntP("limit", "n", 25, "maximum number of events with --user")
	cmd.Flags().Int("offset", 0, "number of events to skip with --user")
	return cmd
}

func newSignInEventsShowCmd(open eventStoreOpener) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Show one sign-in event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q: %w", args[0], err)
			}

			repo, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			e, err := repo.GetByID(cmd.Context(), id)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendRows([]table.Row{
				{"ID", e.ID.String()},
				{"Time", e.Timestamp.Format(time.RFC3339)},
				{"Action", e.Action},
				{"Outcome", e.Outcome},
				{"Stage", e.Stage},
				{"Reason", e.Reason},
				{"Code", e.ErrorCode},
				{"User", e.UserID},
				{"Email", e.Email},
				{"Tenant", e.TenantID},
				{"Session", e.SessionID},
				{"Source", e.Source},
				{"IP address", e.IPAddress},
				{"User agent", e.UserAgent},
				{"Request", e.RequestID},
			})
			if len(e.Details) > 0 {
				t.AppendRow(table.Row{"Details", string(e.Details)})
			}
			t.SetStyle(table.StyleLight)
			t.Render()
			return nil
		},
	}
}

func newSignInEventsRejectedCmd(open eventStoreOpener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rejected",
		Short: "Count rejected sign-ins over a recent window",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, _ := cmd.Flags().GetDuration("since")
			if window <= 0 {
				return fmt.Errorf("since must be positive, got %s", window)
			}

			repo, closeStore, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = closeStore() }()

			since := time.Now().Add(-window).UTC()
			count, err := repo.CountRejectedSince(cmd.Context(), since)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d rejected sign-in(s) since %s\n", count, since.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().Duration("since", 24*time.Hour, "window to count rejections over")
	return cmd
}
