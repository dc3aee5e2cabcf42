package models

import (
	"context"
	"fmt"
	"time"

	"github.com/Vintral/culling-realm/utils"
	"github.com/rs/zerolog/log"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var db *gorm.DB
var Tracer trace.Tracer = otel.Tracer("realm-models")

func SetTracerProvider(t trace.TracerProvider) {
	log.Info().Msg("SetTracerProvider")
	Tracer = t.Tracer("realm-models")
}

func dialector(cfg *utils.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "mysql":
		dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?charset=utf8mb4&parseTime=True&loc=UTC"
		return mysql.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)
		return postgres.Open(dsn), nil
	}

	return nil, fmt.Errorf("models: unsupported db driver %q", cfg.DBDriver)
}

func Database(cfg *utils.Config, retry bool) (*gorm.DB, error) {
	// Use cached value if we can
	if db != nil {
		return db, nil
	}

	_, sp := Tracer.Start(context.Background(), "setup-database")
	defer sp.End()

	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	dbase, err := gorm.Open(dial, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		if retry {
			return nil, fmt.Errorf("models: connect to %s @ %s:%s: %w", cfg.DBDriver, cfg.DBHost, cfg.DBPort, err)
		}

		log.Warn().Err(err).Str("host", cfg.DBHost).Msg("Database not reachable, retrying")
		time.Sleep(3 * time.Second)
		return Database(cfg, true)
	}

	if err := dbase.Use(otelgorm.NewPlugin()); err != nil {
		return nil, err
	}

	sql, err := dbase.DB()
	if err != nil {
		return nil, err
	}

	sql.SetMaxOpenConns(10)
	sql.SetMaxIdleConns(3)
	sql.SetConnMaxIdleTime(5 * time.Minute)

	// Cache this to re-use next time
	db = dbase

	return dbase, nil
}

func Close() error {
	if db == nil {
		return nil
	}

	sql, err := db.DB()
	if err != nil {
		return err
	}

	db = nil
	return sql.Close()
}

func RunMigrations(ctx context.Context, dbase *gorm.DB) error {
	ctx, sp := Tracer.Start(ctx, "run-migrations")
	defer sp.End()

	if err := dbase.WithContext(ctx).AutoMigrate(
		&PlayerStats{},
		&Account{},
		&Transaction{},
		&Weapon{},
		&AttackLog{},
		&Reconciliation{},
	); err != nil {
		return fmt.Errorf("models: migrate: %w", err)
	}

	log.Info().Msg("Ran Migrations")
	return nil
}

func DropTables(ctx context.Context, dbase *gorm.DB) error {
	ctx, sp := Tracer.Start(ctx, "drop-tables")
	defer sp.End()

	if err := dbase.WithContext(ctx).Migrator().DropTable(
		&Reconciliation{},
		&AttackLog{},
		&Weapon{},
		&Transaction{},
		&Account{},
		&PlayerStats{},
	); err != nil {
		return fmt.Errorf("models: drop tables: %w", err)
	}

	log.Warn().Msg("Dropped Tables")
	return nil
}
