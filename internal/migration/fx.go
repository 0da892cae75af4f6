package migration

import (
	"strings"

	"github.com/smallbiznis/payhook/internal/config"
	subscriptiondomain "github.com/smallbiznis/payhook/internal/subscription/domain"
	userdomain "github.com/smallbiznis/payhook/internal/user/domain"
	webhookdomain "github.com/smallbiznis/payhook/internal/webhook/domain"
	"github.com/smallbiznis/payhook/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			return nil
		}
		log = log.Named("migration")

		if strings.EqualFold(strings.TrimSpace(cfg.DBType), db.TypePostgres) {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			status, err := RunMigrations(sqlDB)
			if err != nil {
				return err
			}
			log.Info("postgres schema ready",
				zap.Uint("from_version", status.From),
				zap.Uint("version", status.To),
				zap.Bool("applied", status.Applied()),
			)
			return nil
		}

		if err := AutoMigrate(conn); err != nil {
			return err
		}
		log.Info("schema auto-migrated", zap.String("type", cfg.DBType))
		return nil
	}),
)

// AutoMigrate builds the schema from the gorm models for databases the
// embedded SQL does not target.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&userdomain.User{},
		&webhookdomain.NormalizedEvent{},
		&subscriptiondomain.SubscriptionRecord{},
	)
}
