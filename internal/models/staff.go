package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Staff представляет сотрудника отеля
type Staff struct {
	ID          string         `gorm:"type:uuid;primaryKey" json:"id"`
	HotelID     string         `gorm:"type:uuid;not null;index" json:"hotel_id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	RoleName    string         `gorm:"type:varchar(100);not null;default:'bartender';index" json:"role_name"`
	IsSuperuser bool           `gorm:"default:false" json:"is_superuser"`
	IsManager   bool           `gorm:"default:false" json:"is_manager"`
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName возвращает имя таблицы
func (Staff) TableName() string {
	return "staff"
}

// BeforeCreate генерирует UUID
func (s *Staff) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// CanGrantReopen может ли сотрудник выдавать право переоткрытия периодов
func (s *Staff) CanGrantReopen() bool {
	return s.IsActive && (s.IsSuperuser || s.IsManager)
}
