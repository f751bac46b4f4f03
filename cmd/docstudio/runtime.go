package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/MarcoPoloResearchLab/docstudio/internal/config"
	"github.com/MarcoPoloResearchLab/docstudio/internal/database"
	"github.com/MarcoPoloResearchLab/docstudio/internal/gateway"
	"github.com/MarcoPoloResearchLab/docstudio/internal/logging"
	"github.com/MarcoPoloResearchLab/docstudio/internal/session"
	"github.com/MarcoPoloResearchLab/docstudio/internal/workspace"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// runtime is the wired application for one command invocation.
type runtime struct {
	config config.AppConfig
	logger *zap.Logger
	app    *workspace.App
	close  func()
}

func (c *cli) openRuntime(observer workspace.Observer) (*runtime, error) {
	appConfig, err := config.Load(c.viper)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	sessions, err := session.NewSQLiteStore(session.SQLiteStoreConfig{Database: db, Logger: logger})
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, err
	}

	client, err := gateway.NewClient(gateway.Config{
		BaseURL:   appConfig.APIBaseURL,
		Sessions:  sessions,
		Timeout:   appConfig.HTTPTimeout,
		RateLimit: appConfig.RateLimit,
		RateBurst: appConfig.RateBurst,
		Logger:    logger,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, err
	}

	app, err := workspace.NewApp(workspace.AppConfig{
		Gateway:  client,
		Sessions: sessions,
		Logger:   logger,
		Observer: observer,
	})
	if err != nil {
		_ = sqlDB.Close()
		_ = logger.Sync()
		return nil, err
	}

	return &runtime{
		config: appConfig,
		logger: logger,
		app:    app,
		close: func() {
			if err := sqlDB.Close(); err != nil {
				logger.Warn("failed to close database", zap.Error(err))
			}
			_ = logger.Sync()
		},
	}, nil
}

// withRuntime runs action against a freshly wired application and prints its result.
func (c *cli) withRuntime(ctx context.Context, action func(ctx context.Context, rt *runtime) (any, error)) error {
	rt, err := c.openRuntime(nil)
	if err != nil {
		return err
	}
	defer rt.close()

	result, err := action(ctx, rt)
	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			return fmt.Errorf("%w (run docstudio login)", err)
		}
		return err
	}
	if result == nil {
		return nil
	}
	return writeOutput(c.stdout, rt.config.OutputFormat, result)
}

func writeOutput(writer io.Writer, format string, value any) error {
	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return err
		}
		return encoder.Close()
	default:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(value)
	}
}
