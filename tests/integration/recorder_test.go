package integration_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/krakenstream/internal/historical"
	"github.com/coachpo/krakenstream/internal/schema"
)

var (
	testPool    *pgxpool.Pool
	pgContainer testcontainers.Container
	setupErr    error
)

func TestMain(m *testing.M) {
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "krakenstream"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}
	pgContainer = container

	setupErr = initialiseDatabase(ctx)
	exitCode := 0
	if setupErr != nil {
		fmt.Fprintf(os.Stderr, "recorder integration tests skipped: %v\n", setupErr)
	} else {
		exitCode = m.Run()
	}

	if testPool != nil {
		testPool.Close()
	}
	if pgContainer != nil {
		_ = pgContainer.Terminate(ctx)
	}
	os.Exit(exitCode)
}

func initialiseDatabase(ctx context.Context) error {
	host, err := pgContainer.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/krakenstream?sslmode=disable", host, port.Port())

	if err := historical.ApplyMigrations(ctx, dsn, nil); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect pool: %w", err)
	}
	testPool = pool
	return nil
}

func requirePool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if setupErr != nil || testPool == nil {
		t.Skip("postgres container unavailable")
	}
	return testPool
}

func TestRecordTradePersistsOneRowPerPrint(t *testing.T) {
	pool := requirePool(t)
	recorder := historical.NewRecorder(pool)
	ctx := context.Background()

	msg := schema.TradeMessage{
		Symbol: "BTC/USD",
		Trades: []schema.TradeRecord{
			{Symbol: "BTC/USD", Side: schema.TradeSideBuy, Price: decimal.NewFromInt(50000), Qty: decimal.NewFromInt(1), Timestamp: time.Now()},
			{Symbol: "BTC/USD", Side: schema.TradeSideSell, Price: decimal.NewFromInt(50010), Qty: decimal.NewFromInt(2), Timestamp: time.Now()},
		},
	}
	if err := recorder.RecordTrade(ctx, msg); err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, "SELECT count(*) FROM trade_events WHERE symbol = $1", "BTC/USD").Scan(&count); err != nil {
		t.Fatalf("count query: %v", err)
	}
	if count < 2 {
		t.Fatalf("expected at least 2 persisted rows, got %d", count)
	}
}

func TestRecordBookPersistsSnapshotFlag(t *testing.T) {
	pool := requirePool(t)
	recorder := historical.NewRecorder(pool)
	ctx := context.Background()

	msg := schema.BookMessage{
		Symbol:    "ETH/USD",
		Snapshot:  true,
		Asks:      []schema.BookLevel{{Price: decimal.NewFromInt(3000), Qty: decimal.NewFromInt(5)}},
		Bids:      []schema.BookLevel{{Price: decimal.NewFromInt(2999), Qty: decimal.NewFromInt(4)}},
		Timestamp: time.Now(),
	}
	if err := recorder.RecordBook(ctx, msg); err != nil {
		t.Fatalf("RecordBook: %v", err)
	}

	var snapshot bool
	if err := pool.QueryRow(ctx, "SELECT snapshot FROM book_events WHERE symbol = $1 ORDER BY id DESC LIMIT 1", "ETH/USD").Scan(&snapshot); err != nil {
		t.Fatalf("snapshot query: %v", err)
	}
	if !snapshot {
		t.Fatal("expected the persisted row to carry snapshot=true")
	}
}
