package logging

import (
	"context"
	"fmt"
	"time"

	"github.com/8by8-org/challenge-api/internal/models"
	"gorm.io/gorm"
)

// PurgeSystemLogs deletes system_logs rows older than retention and
// reports how many were removed.
func PurgeSystemLogs(ctx context.Context, db *gorm.DB, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("purge system logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}
