package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Hotel представляет отель (владелец номенклатуры бара, периодов и персонала)
type Hotel struct {
	ID       string `json:"id" gorm:"type:uuid;primaryKey"`
	Name     string `json:"name" gorm:"type:varchar(255);not null"`
	Timezone string `json:"timezone" gorm:"type:varchar(64);default:'UTC'"`
	// Политика утверждения: каждая активная позиция должна быть посчитана (ноль допустим)
	RequireFullCount bool           `json:"require_full_count" gorm:"default:true"`
	IsActive         bool           `json:"is_active" gorm:"default:true"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt        gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName указывает имя таблицы
func (Hotel) TableName() string {
	return "hotels"
}

// BeforeCreate генерирует UUID
func (h *Hotel) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}
