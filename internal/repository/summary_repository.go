package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jizhuanti-go/internal/model"
)

// SummaryRepository 接口定义了章节摘要的持久化操作。
type SummaryRepository interface {
	Find(userID, chapter string) (*model.ChapterSummary, error)
	Upsert(summary *model.ChapterSummary) error
}

// summaryRepository 是 SummaryRepository 接口的 GORM 实现。
type summaryRepository struct {
	db *gorm.DB
}

// NewSummaryRepository 创建一个新的 SummaryRepository 实例。
func NewSummaryRepository(db *gorm.DB) SummaryRepository {
	return &summaryRepository{db: db}
}

// Find 查找某用户某章节的摘要；尚未创建时返回 nil。
func (r *summaryRepository) Find(userID, chapter string) (*model.ChapterSummary, error) {
	var summary model.ChapterSummary
	err := r.db.Where("user_id = ? AND chapter = ?", userID, chapter).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// Upsert 按 (user_id, chapter) 写入或覆盖摘要。
// 依赖数据库的冲突语义做 last-write-wins，不加应用层锁。
func (r *summaryRepository) Upsert(summary *model.ChapterSummary) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter"}},
		DoUpdates: clause.AssignmentColumns([]string{"key_themes", "key_people", "key_events", "emotional_tone"}),
	}).Create(summary).Error
}
