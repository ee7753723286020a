package cli

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/reimburse/httpapi"
	"github.com/xraph/reimburse/internal/config"
	"github.com/xraph/reimburse/types"
)

const (
	testOwner = "0x0000000000000000000000000000000000000abc"
	testAlice = "0xa11ce00000000000000000000000000000000001"
)

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reimburse.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	for _, driver := range []string{"memory", "sqlite"} {
		s, err := openStore(ctx, config.StoreConfig{Driver: driver, DSN: ":memory:"})
		if err != nil {
			t.Fatalf("%s: %v", driver, err)
		}
		if err := s.Migrate(ctx); err != nil {
			t.Errorf("%s: migrate: %v", driver, err)
		}
		if err := s.Close(); err != nil {
			t.Errorf("%s: close: %v", driver, err)
		}
	}

	if _, err := openStore(ctx, config.StoreConfig{Driver: "redis"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestBuildLedger(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Ledger.Owner = testOwner
	cfg.Ledger.Verifiers = []string{testAlice}

	s, err := openStore(ctx, config.StoreConfig{Driver: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := buildLedger(cfg, s, log, prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()

	owner, err := l.Owner(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if owner != types.MustParseAccount(testOwner) {
		t.Errorf("owner: got %s, want %s", owner, testOwner)
	}
	fee, _ := l.ClaimProcessingFee(ctx)
	if fee != 1_000 {
		t.Errorf("fee: got %d, want 1000", fee)
	}
	// audit + metrics
	if got := l.Plugins().Count(); got != 2 {
		t.Errorf("plugins: got %d, want 2", got)
	}

	cfg.Ledger.Owner = ""
	if _, err := buildLedger(cfg, s, log, prometheus.NewRegistry()); err == nil {
		t.Error("expected error without owner")
	}
}

func TestTokenCommand(t *testing.T) {
	path := writeConfig(t, `
[auth]
jwt_secret = "cli-secret"
issuer = "reimburse"
`)

	token := strings.TrimSpace(run(t, "--config", path, "token", testAlice))

	auth := httpapi.Auth{Secret: "cli-secret", Issuer: "reimburse"}
	got, err := auth.ParseToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got != types.MustParseAccount(testAlice) {
		t.Errorf("subject: got %s, want %s", got, testAlice)
	}
}

func TestMigrateCommand(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "reimburse.db")
	path := writeConfig(t, `
[store]
driver = "sqlite"
dsn = "`+dsn+`"
`)

	out := run(t, "--config", path, "migrate")
	if !strings.Contains(out, "sqlite store is up to date") {
		t.Errorf("output: got %q", out)
	}
	if _, err := os.Stat(dsn); err != nil {
		t.Errorf("database file: %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out := run(t, "version")
	if !strings.HasPrefix(out, "reimburse dev ") {
		t.Errorf("output: got %q", out)
	}
}
