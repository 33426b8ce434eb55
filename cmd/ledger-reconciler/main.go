// The ledger reconciler replays spooled audit rows into the Google Sheets
// ledger once it recovers. Run it alongside the API server whenever the SQS
// spool is enabled.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Anushkasethi/pharmacy-booking/cmd/mainconfig"
	appconfig "github.com/Anushkasethi/pharmacy-booking/internal/config"
	"github.com/Anushkasethi/pharmacy-booking/internal/ledger"
	"github.com/Anushkasethi/pharmacy-booking/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.LedgerSpoolQueueURL == "" {
		logger.Error("LEDGER_SPOOL_QUEUE_URL is required")
		os.Exit(1)
	}
	if cfg.SpreadsheetID == "" || cfg.GoogleCredentialsFile == "" {
		logger.Error("SPREADSHEET_ID and SERVICE_ACCOUNT_FILE are required")
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(cfg.GoogleCredentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		logger.Error("sheets service", "error", err)
		os.Exit(1)
	}
	primary := ledger.NewSheets(svc, cfg.SpreadsheetID, cfg.LedgerSheetRange, loc)

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("aws config", "error", err)
		os.Exit(1)
	}
	spool := ledger.NewSQSSpool(sqs.NewFromConfig(awsCfg), cfg.LedgerSpoolQueueURL)

	reconciler := ledger.NewReconciler(primary, spool, logger)
	logger.Info("ledger reconciler started", "queue", cfg.LedgerSpoolQueueURL)

	if err := reconciler.Run(ctx, 30*time.Second); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("reconciler stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("ledger reconciler stopped")
}
