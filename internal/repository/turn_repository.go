// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"jizhuanti-go/internal/model"
)

// TurnRepository 接口定义了访谈轮次数据的持久化操作。
type TurnRepository interface {
	Create(turn *model.ConversationTurn) error
	FindBySession(userID, chapter, sessionID string) ([]model.ConversationTurn, error)
	FindByRound(userID, chapter, sessionID string, round int) (*model.ConversationTurn, error)
	FindLatestUnanswered(userID, chapter, sessionID string) (*model.ConversationTurn, error)
	UpdateAnswer(turnID uint, answer string) error
	FindAnswered(userID, chapter string) ([]model.ConversationTurn, error)
	CountAnswered(userID, chapter string) (int64, error)
}

// turnRepository 是 TurnRepository 接口的 GORM 实现。
type turnRepository struct {
	db *gorm.DB
}

// NewTurnRepository 创建一个新的 TurnRepository 实例。
func NewTurnRepository(db *gorm.DB) TurnRepository {
	return &turnRepository{db: db}
}

// Create 插入一条新的轮次记录。
// (user, chapter, session, round) 存在唯一索引；并发重试写同一轮时按
// last-write-wins 覆盖而不是报冲突。
func (r *turnRepository) Create(turn *model.ConversationTurn) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter"}, {Name: "session_id"}, {Name: "round_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"question", "answer"}),
	}).Create(turn).Error
}

// FindBySession 按轮次升序返回一个会话的全部轮次。
func (r *turnRepository) FindBySession(userID, chapter, sessionID string) ([]model.ConversationTurn, error) {
	var turns []model.ConversationTurn
	err := r.db.
		Where("user_id = ? AND chapter = ? AND session_id = ?", userID, chapter, sessionID).
		Order("round_number ASC").
		Find(&turns).Error
	return turns, err
}

// FindByRound 按精确轮次号查找一条轮次记录；不存在时返回 nil。
func (r *turnRepository) FindByRound(userID, chapter, sessionID string, round int) (*model.ConversationTurn, error) {
	var turn model.ConversationTurn
	err := r.db.
		Where("user_id = ? AND chapter = ? AND session_id = ? AND round_number = ?", userID, chapter, sessionID, round).
		First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &turn, nil
}

// FindLatestUnanswered 返回会话中轮次号最大的未回答记录；不存在时返回 nil。
// 客户端携带的轮次号可能因重试而过期，这里是对账的兜底查询。
func (r *turnRepository) FindLatestUnanswered(userID, chapter, sessionID string) (*model.ConversationTurn, error) {
	var turn model.ConversationTurn
	err := r.db.
		Where("user_id = ? AND chapter = ? AND session_id = ? AND answer = ''", userID, chapter, sessionID).
		Order("round_number DESC").
		First(&turn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &turn, nil
}

// UpdateAnswer 写入某一轮的用户回答。
func (r *turnRepository) UpdateAnswer(turnID uint, answer string) error {
	return r.db.Model(&model.ConversationTurn{}).
		Where("id = ?", turnID).
		Update("answer", answer).Error
}

// FindAnswered 返回某用户全部已回答的轮次，chapter 为空时跨章节返回。
// 结果按章节、轮次升序，供传记合成按时间线组织素材。
func (r *turnRepository) FindAnswered(userID, chapter string) ([]model.ConversationTurn, error) {
	db := r.db.Where("user_id = ? AND question <> '' AND answer <> ''", userID)
	if chapter != "" {
		db = db.Where("chapter = ?", chapter)
	}
	var turns []model.ConversationTurn
	err := db.Order("chapter ASC, round_number ASC").Find(&turns).Error
	return turns, err
}

// CountAnswered 统计某用户在某章节已回答的轮次数。
func (r *turnRepository) CountAnswered(userID, chapter string) (int64, error) {
	var count int64
	err := r.db.Model(&model.ConversationTurn{}).
		Where("user_id = ? AND chapter = ? AND question <> '' AND answer <> ''", userID, chapter).
		Count(&count).Error
	return count, err
}
