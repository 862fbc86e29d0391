package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/madaris/dq/internal/issue/domain"
	registrydomain "github.com/madaris/dq/internal/registry/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, issue *domain.DQIssue) error {
	return db.WithContext(ctx).Create(issue).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.DQIssue, error) {
	var issue domain.DQIssue
	err := db.WithContext(ctx).First(&issue, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &issue, nil
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, issue *domain.DQIssue) error {
	return db.WithContext(ctx).Save(issue).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.DQIssue, int64, error) {
	stmt := db.WithContext(ctx).Model(&domain.DQIssue{})
	if filter.EntityType != "" {
		stmt = stmt.Where("entity_type = ?", filter.EntityType)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}

	var total int64
	if err := stmt.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var issues []domain.DQIssue
	err := stmt.
		Order("severity_rank desc, created_at desc, id desc").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&issues).Error
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (r *repo) CountOpen(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Where("status = ?", domain.StatusOpen).
		Count(&count).Error
	return count, err
}

func (r *repo) CountOpenBySeverity(ctx context.Context, db *gorm.DB, severity domain.Severity) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Where("status = ? AND severity = ?", domain.StatusOpen, severity).
		Count(&count).Error
	return count, err
}

func (r *repo) HasOpen(ctx context.Context, db *gorm.DB, entityType registrydomain.EntityType, entityID snowflake.ID, issueType string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Where("entity_type = ? AND entity_id = ? AND issue_type = ? AND status = ?",
			entityType, entityID, issueType, domain.StatusOpen).
		Count(&count).Error
	return count > 0, err
}

func (r *repo) Statistics(ctx context.Context, db *gorm.DB) (domain.Statistics, error) {
	stats := domain.Statistics{
		ByType:     map[string]int64{},
		BySeverity: map[string]int64{},
		ByEntity:   map[string]int64{},
	}

	type statusCount struct {
		Status domain.Status
		Count  int64
	}
	var byStatus []statusCount
	if err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Select("status, count(*) as count").Group("status").Scan(&byStatus).Error; err != nil {
		return stats, err
	}
	for _, row := range byStatus {
		stats.TotalIssues += row.Count
		switch row.Status {
		case domain.StatusOpen:
			stats.OpenIssues = row.Count
		case domain.StatusResolved:
			stats.ResolvedIssues = row.Count
		case domain.StatusDismissed:
			stats.DismissedIssues = row.Count
		}
	}
	if stats.TotalIssues > 0 {
		stats.ResolutionRate = float64(stats.ResolvedIssues+stats.DismissedIssues) / float64(stats.TotalIssues)
	}

	type keyCount struct {
		Key   string
		Count int64
	}

	var byType []keyCount
	if err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Select("issue_type as key, count(*) as count").Group("issue_type").Scan(&byType).Error; err != nil {
		return stats, err
	}
	for _, row := range byType {
		stats.ByType[row.Key] = row.Count
	}

	var bySeverity []keyCount
	if err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Select("severity as key, count(*) as count").Group("severity").Scan(&bySeverity).Error; err != nil {
		return stats, err
	}
	for _, row := range bySeverity {
		stats.BySeverity[row.Key] = row.Count
	}

	var byEntity []keyCount
	if err := db.WithContext(ctx).Model(&domain.DQIssue{}).
		Select("entity_type as key, count(*) as count").Group("entity_type").Scan(&byEntity).Error; err != nil {
		return stats, err
	}
	for _, row := range byEntity {
		stats.ByEntity[row.Key] = row.Count
	}

	return stats, nil
}
