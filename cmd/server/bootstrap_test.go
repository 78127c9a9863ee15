package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/escalaapp/escala/internal/app"
)

func TestBootstrapRuntimeSQLite(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "sqlite" // empty path opens an in-memory database
	cfg.Auth.JWT.Secret = "bootstrap-secret"
	cfg.Invites.AuditRetention = 30
	cfg.Monitoring.Health.Enabled = true

	log := zap.NewNop()
	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	require.NotNil(t, stack.DB)
	require.NotNil(t, stack.Store)
	require.NotNil(t, stack.RateStore)
	require.NotNil(t, stack.Router)
	require.Nil(t, stack.Redis)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	stack.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestEnsureSecretsPresent(t *testing.T) {
	require.Error(t, ensureSecretsPresent(nil))

	cfg := &app.Config{}
	require.Error(t, ensureSecretsPresent(cfg))

	cfg.Auth.JWT.Secret = "  configured-secret  "
	require.NoError(t, ensureSecretsPresent(cfg))
	require.Equal(t, "configured-secret", cfg.Auth.JWT.Secret)
}

func TestConvertDatabaseConfig(t *testing.T) {
	cfg := &app.Config{}
	cfg.Database.Driver = "PostgreSQL"
	cfg.Database.Postgres.Host = " db.internal "
	cfg.Database.Postgres.Port = 5433
	cfg.Database.Postgres.Database = "escala"
	cfg.Database.Postgres.Username = "svc"
	cfg.Database.Postgres.Password = "pw"

	dbCfg := convertDatabaseConfig(cfg)
	require.Equal(t, "postgres", dbCfg.Driver)
	require.Equal(t, "db.internal", dbCfg.Host)
	require.Equal(t, 5433, dbCfg.Port)
	require.Equal(t, "escala", dbCfg.Name)

	cfg = &app.Config{}
	dbCfg = convertDatabaseConfig(cfg)
	require.Equal(t, "sqlite", dbCfg.Driver)
}
