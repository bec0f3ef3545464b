package repository

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/camden-git/foscambackend/models"
)

// AlertTypeRepository implements AlertTypeRepositoryInterface using GORM
type AlertTypeRepository struct {
	DB *gorm.DB
}

func NewAlertTypeRepository(db *gorm.DB) *AlertTypeRepository {
	return &AlertTypeRepository{DB: db}
}

// ListAll returns the seeded catalog ordered by priority (highest
// first), then name.
func (r *AlertTypeRepository) ListAll() ([]models.AlertType, error) {
	var types []models.AlertType
	if err := r.DB.Order("priority DESC, name ASC").Find(&types).Error; err != nil {
		return nil, fmt.Errorf("failed to list alert types: %w", err)
	}
	return types, nil
}

func (r *AlertTypeRepository) GetByName(name string) (*models.AlertType, error) {
	var alertType models.AlertType
	if err := r.DB.Where("name = ?", name).First(&alertType).Error; err != nil {
		return nil, err
	}
	return &alertType, nil
}
