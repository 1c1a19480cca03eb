package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"venue-telemetry/internal/models"
)

// ReadingRepository 原始读数仓库（sensor_readings，只追加）
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository 创建读数仓库
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

const readingColumns = 7

// InsertReadings 单条多值 INSERT 写入一批读数
func (r *ReadingRepository) InsertReadings(ctx context.Context, readings []models.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO sensor_readings (sensor_id, reading_type, value, unit, quality_score, metadata, reading_timestamp) VALUES `)

	args := make([]interface{}, 0, len(readings)*readingColumns)
	for i, rd := range readings {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * readingColumns
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			rd.SensorID,
			rd.ReadingType,
			rd.Value,
			rd.Unit,
			rd.QualityScore,
			jsonOrEmpty(rd.Metadata),
			rd.ReadingTimestamp,
		)
	}

	if _, err := r.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert sensor readings: %w", err)
	}

	r.logger.Debug("Inserted sensor readings",
		zap.String("sensor_id", readings[0].SensorID),
		zap.Int("count", len(readings)),
	)
	return nil
}
