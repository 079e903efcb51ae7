package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/db"
	"beautyhub-controlplane/pkg/featureflags"
	"beautyhub-controlplane/pkg/gen"
	"beautyhub-controlplane/pkg/hashistack/secretmanager"
	"beautyhub-controlplane/pkg/health"
	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/pkg/minio"
	"beautyhub-controlplane/pkg/otelcol"
	"beautyhub-controlplane/pkg/profiling"
	"beautyhub-controlplane/pkg/redis"
	"beautyhub-controlplane/pkg/sequence"
	"beautyhub-controlplane/pkg/server"
	"beautyhub-controlplane/pkg/task"
	"beautyhub-controlplane/services/activity"
	"beautyhub-controlplane/services/billing"
	"beautyhub-controlplane/services/connect"
	"beautyhub-controlplane/services/content"
	"beautyhub-controlplane/services/document"
	"beautyhub-controlplane/services/notification"
	"beautyhub-controlplane/services/plan"
	"beautyhub-controlplane/services/provisioning"
	"beautyhub-controlplane/services/tenant"
	"beautyhub-controlplane/services/webhook"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		gen.Module,
		featureflags.Module,
		minio.Client,
		plan.Module,
		tenant.Module,
		activity.Module,
		notification.Module,
		document.Module,
		content.Module,
		billing.Module,
		provisioning.Module,
		connect.Module,
		webhook.Module,
		health.Module,
		server.ProvideHTTPServer,
		fx.Invoke(migrate),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	if cfg.IsProduction() {
		return fxevent.NopLogger
	}
	return &fxevent.ZapLogger{Logger: logger}
})

func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}

func migrate(database *gorm.DB) error {
	return db.Migrate(database,
		&tenant.Tenant{},
		&tenant.Location{},
		&tenant.Administrator{},
		&activity.Entry{},
		&billing.Invoice{},
		&provisioning.Record{},
		&provisioning.Contract{},
		&connect.Reservation{},
		&connect.GiftCard{},
		&content.Site{},
		&content.Page{},
		&content.Offering{},
	)
}
