package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/entomobackend/annotation"
)

// VerificationReport summarises how much of an upload a user has reviewed.
type VerificationReport struct {
	UploadID string         `json:"uploadId"`
	Total    int            `json:"total"`
	Verified int            `json:"verified"`
	Rate     float64        `json:"rate"`
	ByStatus map[string]int `json:"byStatus"`
	ByLabel  map[string]int `json:"byLabel"`
}

// GetVerificationReport counts the live detections of an upload by status
// and label. Rate is Verified/Total, or 0 for an upload without detections.
func GetVerificationReport(ctx context.Context, db *sql.DB, uploadID uint) (VerificationReport, error) {
	report := VerificationReport{
		UploadID: fmt.Sprint(uploadID),
		ByStatus: map[string]int{},
		ByLabel:  map[string]int{},
	}

	byStatus, err := countGrouped(ctx, db, uploadID, "status")
	if err != nil {
		return VerificationReport{}, err
	}
	for status, n := range byStatus {
		report.ByStatus[status] = n
		report.Total += n
		if annotation.Status(status).IsVerified() {
			report.Verified += n
		}
	}

	report.ByLabel, err = countGrouped(ctx, db, uploadID, "label")
	if err != nil {
		return VerificationReport{}, err
	}

	if report.Total > 0 {
		report.Rate = float64(report.Verified) / float64(report.Total)
	}
	return report, nil
}

func countGrouped(ctx context.Context, db *sql.DB, uploadID uint, column string) (map[string]int, error) {
	queryBuilder := psql.Select(column, "COUNT(*)").
		From("detections").
		Where(sq.Eq{"upload_id": uploadID, "deleted_at": nil}).
		GroupBy(column)

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for %s counts: %w", column, err)
	}

	rows, err := db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s counts for upload %d: %w", column, uploadID, err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s counts: %w", column, err)
	}
	return counts, nil
}
