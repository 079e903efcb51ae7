package main

import (
	"log"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"beautyhub-controlplane/pkg/config"
	"beautyhub-controlplane/pkg/hashistack/secretmanager"
	"beautyhub-controlplane/pkg/logger"
	"beautyhub-controlplane/pkg/otelcol"
	"beautyhub-controlplane/pkg/profiling"
	"beautyhub-controlplane/pkg/task"
	"beautyhub-controlplane/services/notification"
)

// The worker drains the mail queue filled by the webhook service when
// MAIL.DELIVERY is "queue".
func main() {
	opts := []fx.Option{
		secretmanager.Module,
		configModule(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		task.Server,
		notification.Worker,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func configModule() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return config.RemoteModule
	}
	return config.Module
}
