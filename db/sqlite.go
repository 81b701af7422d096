package db

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrations embed.FS

var database *sql.DB

var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens the SQLite database at path and applies pending migrations. A
// handle from an earlier call is closed once the new one is usable.
func InitDB(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := migrateUp(path); err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	conn, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return err
	}
	if database != nil {
		database.Close()
	}
	database = conn
	return nil
}

func migrateUp(path string) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, "sqlite3://"+path)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

func Initialized() bool {
	return database != nil
}

type PredictionRecord struct {
	ID           string             `json:"id"`
	Features     map[string]float64 `json:"features"`
	Prediction   int                `json:"prediction"`
	Probability  float64            `json:"probability"`
	RiskLevel    string             `json:"risk_level"`
	Confidence   string             `json:"confidence"`
	ModelVersion string             `json:"model_version"`
	CreatedAt    time.Time          `json:"created_at"`
}

func SavePrediction(ctx context.Context, rec PredictionRecord) error {
	if database == nil {
		return ErrNotInitialized
	}
	if rec.ID == "" {
		return errors.New("prediction id required")
	}
	features, err := json.Marshal(rec.Features)
	if err != nil {
		return err
	}
	_, err = database.ExecContext(ctx, `
        INSERT OR REPLACE INTO predictions (
            id, features, prediction, probability, risk_level, confidence, model_version, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(features), rec.Prediction, rec.Probability,
		rec.RiskLevel, rec.Confidence, rec.ModelVersion, rec.CreatedAt.UTC())
	return err
}

// QueryPredictions returns the most recent predictions first.
func QueryPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.QueryContext(ctx, `
        SELECT id, features, prediction, probability, risk_level, confidence, model_version, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var features string
		if err := rows.Scan(&rec.ID, &features, &rec.Prediction, &rec.Probability,
			&rec.RiskLevel, &rec.Confidence, &rec.ModelVersion, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &rec.Features); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Version    string    `json:"version"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1Score    float64   `json:"f1_score"`
	AUC        float64   `json:"auc"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

func SaveTrainingLog(ctx context.Context, log TrainingLog) error {
	if database == nil {
		return ErrNotInitialized
	}
	_, err := database.ExecContext(ctx, `
        INSERT INTO training_log (
            model_name, version, accuracy, precision, recall, f1_score, auc, data_points, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Version, log.Accuracy, log.Precision, log.Recall,
		log.F1Score, log.AUC, log.DataPoints, log.TrainedAt.UTC())
	return err
}

func LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if database == nil {
		return nil, ErrNotInitialized
	}
	rows, err := database.QueryContext(ctx, `
        SELECT model_name, version, accuracy, precision, recall, f1_score, auc, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Version, &log.Accuracy, &log.Precision, &log.Recall,
			&log.F1Score, &log.AUC, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
