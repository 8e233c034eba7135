package database

import (
	"time"

	"github.com/mikepea/succession/pkg/succession/auth"
	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Seed creates the bootstrap admin and, when enabled, the demo roles and
// plans. It is safe to run repeatedly.
func Seed(db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	if err := ensureAdminExists(db, cfg, log); err != nil {
		return err
	}
	if cfg.SeedDemoData {
		return seedDemoData(db, log)
	}
	return nil
}

// ensureAdminExists creates the configured admin user if no admin exists
func ensureAdminExists(db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	adminRole := "admin"
	if len(cfg.Access.AdminRoles) > 0 {
		adminRole = cfg.Access.AdminRoles[0]
	}

	var count int64
	if err := db.Model(&models.User{}).Where("role IN ?", cfg.Access.AdminRoles).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil // Admin already exists
	}

	hashedPassword, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := models.User{
		Name:         cfg.AdminName,
		Email:        auth.NormalizeEmail(cfg.AdminEmail),
		PasswordHash: hashedPassword,
		Role:         adminRole,
		Department:   cfg.AdminDepartment,
		Status:       models.UserStatusActive,
		GlobalScope:  true,
		ApprovedAt:   &now,
	}
	if err := db.Create(&admin).Error; err != nil {
		return err
	}

	log.Info("created default admin user",
		zap.String("email", admin.Email),
		zap.String("department", admin.Department),
	)
	return nil
}

func seedDemoData(db *gorm.DB, log *zap.Logger) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Role{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		roles := []models.Role{
			{Title: "HR Director", Name: "HR Director", Department: "HR", BusinessLine: "Core Business", Criticality: models.CriticalityHigh},
			{Title: "Finance Manager", Name: "Finance Manager", Department: "Finance", BusinessLine: "Core Business", Criticality: models.CriticalityHigh},
			{Title: "Operations Lead", Name: "Operations Lead", Department: "Operations", BusinessLine: "Core Business", Criticality: models.CriticalityMedium},
			{Title: "Technology Manager", Name: "Technology Manager", Department: "Technology", BusinessLine: "Core Business", Criticality: models.CriticalityHigh},
			{Title: "Sales Director", Name: "Sales Director", Department: "Sales", BusinessLine: "Core Business", Criticality: models.CriticalityMedium},
		}
		if err := tx.Create(&roles).Error; err != nil {
			return err
		}

		if err := tx.Model(&models.SuccessionPlan{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		plans := []models.SuccessionPlan{
			{RoleID: roles[0].ID, IncumbentName: "John Smith", IncumbentEmployeeID: "EMP001", IncumbentTenure: 36, ReadinessLevel: models.ReadinessReadyNow},
			{RoleID: roles[1].ID, IncumbentName: "Sarah Johnson", IncumbentEmployeeID: "EMP002", IncumbentTenure: 24, ReadinessLevel: models.ReadinessOneToTwo},
		}
		if err := tx.Create(&plans).Error; err != nil {
			return err
		}

		log.Info("seeded demo data",
			zap.Int("roles", len(roles)),
			zap.Int("plans", len(plans)),
		)
		return nil
	})
}
