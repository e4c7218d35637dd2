package main

import (
	"bytes"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/sso-gateway/repositories"
	"github.com/upb/sso-gateway/repositories/postgres"
	"go.uber.org/zap"
)

var eventColumns = []string{
	"id", "action", "outcome", "stage", "reason", "error_code", "user_id", "email",
	"tenant_id", "session_id", "source", "details", "ip_address", "user_agent", "request_id", "timestamp",
}

// mockStore returns an opener backed by sqlmock and records whether it was closed
func mockStore(t *testing.T) (eventStoreOpener, sqlmock.Sqlmock, *bool) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	closed := false
	open := func(ctx context.Context) (repositories.SignInEventRepository, func() error, error) {
		repo := postgres.NewSignInEventRepository(postgres.Wrap(db, zap.NewNop()), zap.NewNop())
		return repo, func() error { closed = true; return nil }, nil
	}
	return open, mock, &closed
}

func runEventsCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSignInEventsList(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("by user", func(t *testing.T) {
		open, mock, closed := mockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE user_id = $1")).
			WithArgs("u1", 10, 0).
			WillReturnRows(sqlmock.NewRows(eventColumns).
				AddRow(uuid.New().String(), "validate_sso", "rejected", "claims_extracted", "domain", "POLICY_DENIED",
					"u1", "a@fabrikam.com", "T1", "", "", nil, "10.0.0.7", "curl/8", "req-1", ts).
				AddRow(uuid.New().String(), "validate_sso", "succeeded", "responded", "", "",
					"u1", "a@contoso.com", "T1", "s1", "web", nil, "10.0.0.7", "curl/8", "req-0", ts.Add(-time.Hour)))

		out, err := runEventsCommand(t, newSignInEventsCmd(open), "list", "--user", "u1", "-n", "10")
		require.NoError(t, err)

		assert.Contains(t, out, "POLICY_DENIED")
		assert.Contains(t, out, "req-1")
		assert.Contains(t, out, "2026-03-01T12:00:00Z")
		assert.Contains(t, out, "2 event(s)")
		assert.True(t, *closed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("by request", func(t *testing.T) {
		open, mock, _ := mockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE request_id = $1")).
			WithArgs("req-9").
			WillReturnRows(sqlmock.NewRows(eventColumns))

		out, err := runEventsCommand(t, newSignInEventsCmd(open), "list", "--request", "req-9")
		require.NoError(t, err)
		assert.Contains(t, out, "0 event(s)")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	flagErrors := []struct {
		name string
		args []string
		want string
	}{
		{"neither filter", []string{"list"}, "exactly one of --user or --request"},
		{"both filters", []string{"list", "--user", "u1", "--request", "r1"}, "exactly one of --user or --request"},
		{"bad limit", []string{"list", "--user", "u1", "--limit", "0"}, "limit must be positive"},
	}
	for _, tt := range flagErrors {
		t.Run(tt.name, func(t *testing.T) {
			open, mock, _ := mockStore(t)

			_, err := runEventsCommand(t, newSignInEventsCmd(open), tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSignInEventsShow(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		open, mock, _ := mockStore(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(eventColumns).AddRow(
				id.String(), "logout", "succeeded", "responded", "", "", "u1", "a@contoso.com",
				"T1", "s1", "", []byte(`{"note":"x"}`), "10.0.0.7", "curl/8", "req-1",
				time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)))

		out, err := runEventsCommand(t, newSignInEventsCmd(open), "show", id.String())
		require.NoError(t, err)
		assert.Contains(t, out, id.String())
		assert.Contains(t, out, "a@contoso.com")
		assert.Contains(t, out, `{"note":"x"}`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		open, mock, _ := mockStore(t)
		id := uuid.New()
		mock.ExpectQuery(regexp.QuoteMeta("WHERE id = $1")).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows(eventColumns))

		_, err := runEventsCommand(t, newSignInEventsCmd(open), "show", id.String())
		assert.ErrorIs(t, err, postgres.ErrSignInEventNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		open, mock, _ := mockStore(t)

		_, err := runEventsCommand(t, newSignInEventsCmd(open), "show", "not-a-uuid")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid event id")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSignInEventsRejected(t *testing.T) {
	open, mock, _ := mockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sign_in_events")).
		WithArgs("rejected", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	out, err := runEventsCommand(t, newSignInEventsCmd(open), "rejected", "--since", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "3 rejected sign-in(s) since")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignInEventsRequiresAuditDatabase(t *testing.T) {
	setGatewayEnv(t)
	t.Setenv("AUDIT_DATABASE_URL", "")

	_, err := runCommand(t, "signin-events", "rejected")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIT_DATABASE_URL is not set")
}
