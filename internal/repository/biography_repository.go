package repository

import (
	"gorm.io/gorm"

	"jizhuanti-go/internal/model"
)

// BiographyRepository 接口定义了传记记录的持久化操作。
// 传记是不可变产物：只插入与查询，重新生成即新增记录。
type BiographyRepository interface {
	Create(biography *model.Biography) error
	FindByUser(userID string) ([]model.Biography, error)
}

// biographyRepository 是 BiographyRepository 接口的 GORM 实现。
type biographyRepository struct {
	db *gorm.DB
}

// NewBiographyRepository 创建一个新的 BiographyRepository 实例。
func NewBiographyRepository(db *gorm.DB) BiographyRepository {
	return &biographyRepository{db: db}
}

// Create 插入一条新的传记记录。
func (r *biographyRepository) Create(biography *model.Biography) error {
	return r.db.Create(biography).Error
}

// FindByUser 按创建时间倒序返回某用户的全部传记。
func (r *biographyRepository) FindByUser(userID string) ([]model.Biography, error) {
	var biographies []model.Biography
	err := r.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&biographies).Error
	return biographies, err
}
