package main

import (
	"encoding/json"
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/cibics/tracking-backend/internal/config"
	"github.com/cibics/tracking-backend/internal/database"
	"github.com/cibics/tracking-backend/internal/services"
)

// importFile mirrors the import API payload: the header row plus data rows.
type importFile struct {
	Columns []string             `json:"columns"`
	Rows    []services.ImportRow `json:"rows"`
}

func main() {
	var (
		filePath = flag.String("file", "", "Path to the JSON import file")
		preview  = flag.Bool("preview", false, "Classify rows without writing anything")
		limit    = flag.Int("limit", 200, "Maximum preview rows to print")
	)
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if *filePath == "" {
		logger.Fatal("Usage: import-records -file <path> [-preview] [-limit N]")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		logger.Fatalf("Failed to read import file: %v", err)
	}

	var payload importFile
	if err := json.Unmarshal(data, &payload); err != nil {
		logger.Fatalf("Failed to parse import file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	stageService := services.NewStageService(db, logger)
	if err := stageService.EnsureDefaultStages(nil); err != nil {
		logger.Fatalf("Failed to ensure default stages: %v", err)
	}
	importService := services.NewImportService(db, stageService, cfg.Bootstrap, logger)

	if *preview {
		result, err := importService.Preview(payload.Columns, payload.Rows, *limit)
		if err != nil {
			logger.Fatalf("Preview failed: %v", err)
		}
		output, _ := json.MarshalIndent(result, "", "  ")
		os.Stdout.Write(output)
		os.Stdout.Write([]byte("\n"))
		return
	}

	// CLI imports run unattributed; audit entries carry a null actor.
	report, err := importService.Import(payload.Columns, payload.Rows, nil)
	if err != nil {
		logger.Fatalf("Import failed: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"batch_id":          report.BatchID,
		"total_rows":        report.TotalRows,
		"duplicate_rows":    report.DuplicateRows,
		"created":           report.Created,
		"assignees_created": report.AssigneesCreated,
	}).Info("Import complete")
}
