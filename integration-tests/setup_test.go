package integration_tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/clinchat/backend/pkg/model"
)

// schema mirrors the production migrations closely enough for repository
// round-trips. Kept in one place so every integration test sees the same
// tables.
const schema = `
CREATE TABLE users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	deleted_at TIMESTAMPTZ
);

CREATE TABLE provider_assignments (
	id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL REFERENCES users(id),
	patient_id TEXT NOT NULL REFERENCES users(id),
	assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	assigned_by TEXT NOT NULL DEFAULT '',
	UNIQUE (provider_id, patient_id)
);

CREATE TABLE chat_windows (
	id TEXT PRIMARY KEY,
	patient_id TEXT NOT NULL REFERENCES users(id),
	provider_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	visible BOOLEAN NOT NULL DEFAULT TRUE,
	status TEXT NOT NULL,
	report_config JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE system_prompts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	content TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE model_endpoints (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	provider TEXT NOT NULL,
	model_identifier TEXT NOT NULL,
	api_endpoint TEXT NOT NULL DEFAULT '',
	config TEXT NOT NULL DEFAULT '',
	available BOOLEAN NOT NULL DEFAULT FALSE,
	last_availability_check TIMESTAMPTZ,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE chat_templates (
	id TEXT PRIMARY KEY,
	window_id TEXT NOT NULL REFERENCES chat_windows(id) ON DELETE CASCADE,
	title TEXT NOT NULL,
	purpose TEXT NOT NULL DEFAULT '',
	model_id TEXT NOT NULL,
	system_prompt_id TEXT REFERENCES system_prompts(id),
	custom_system_prompt TEXT NOT NULL DEFAULT '',
	max_messages INTEGER,
	order_index INTEGER NOT NULL DEFAULT 0,
	visible BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE conversations (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL REFERENCES users(id),
	title TEXT NOT NULL DEFAULT '',
	model_id TEXT NOT NULL,
	system_prompt_content TEXT NOT NULL DEFAULT '',
	window_id TEXT REFERENCES chat_windows(id) ON DELETE CASCADE,
	template_id TEXT,
	visible BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE messages (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	response_time DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE saved_selections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL REFERENCES users(id),
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	selection_text TEXT NOT NULL,
	message_ids JSONB,
	note TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE reports (
	id TEXT PRIMARY KEY,
	window_id TEXT NOT NULL REFERENCES chat_windows(id),
	patient_id TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	report_type TEXT NOT NULL,
	report_data JSONB NOT NULL,
	file_path TEXT NOT NULL DEFAULT '',
	generated_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE provider_settings (
	id TEXT PRIMARY KEY,
	provider_id TEXT NOT NULL REFERENCES users(id),
	patient_id TEXT REFERENCES users(id),
	allowed_model_ids JSONB,
	time_window_start TEXT NOT NULL DEFAULT '',
	time_window_end TEXT NOT NULL DEFAULT '',
	max_messages_per_day INTEGER,
	custom_instructions TEXT NOT NULL DEFAULT '',
	UNIQUE NULLS NOT DISTINCT (provider_id, patient_id)
);

CREATE TABLE audit_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id TEXT NOT NULL,
	operation_type TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL,
	ip_address TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	additional_data JSONB
);
`

// setupTestDatabase starts a throwaway postgres container and applies the
// schema. The container is torn down with the test.
func setupTestDatabase(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("clinchat_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "postgres container should start")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "should connect to the test database")
	t.Cleanup(pool.Close)

	require.NoError(t, pool.Ping(ctx))

	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err, "schema should apply cleanly")

	return pool
}

// createUser inserts a user row and returns it
func createUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role model.Role) *model.User {
	t.Helper()

	user := &model.User{
		ID:     uuid.New().String(),
		Role:   role,
		Active: true,
	}
	_, err := pool.Exec(ctx,
		`INSERT INTO users (id, username, email, role) VALUES ($1, $2, $3, $4)`,
		user.ID, string(role)+"-"+user.ID[:8], user.ID[:8]+"@example.com", user.Role,
	)
	require.NoError(t, err)
	return user
}

// assignPatient links a patient to a provider
func assignPatient(t *testing.T, ctx context.Context, pool *pgxpool.Pool, providerID, patientID string) {
	t.Helper()

	_, err := pool.Exec(ctx,
		`INSERT INTO provider_assignments (id, provider_id, patient_id) VALUES ($1, $2, $3)`,
		uuid.New().String(), providerID, patientID,
	)
	require.NoError(t, err)
}
