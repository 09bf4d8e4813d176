// Command customer-batch prints the customers of a city, one chunk at a time.
//
// Usage:
//
//	customer-batch [-job name] [-restart] [-schedule cron] [--] key=value|-key=value ...
//
// A -key=value argument is a non-identifying job parameter and may appear before or
// after the flags, unless key names a flag. Arguments after -- are always job parameters.
//
// Exit codes: 0 COMPLETED, 1 FAILED or not started, 2 STOPPED.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "embed"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm/sqlite"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"

	"github.com/tigerroll/chunkbatch/example/customer/internal/app"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// DBProviderMap maps the names accepted in DB_ADAPTORS to their provider modules.
var DBProviderMap = map[string]fx.Option{
	"sqlite":   sqlite.Module,
	"mysql":    mysql.Module,
	"postgres": postgres.Module,
}

// getDBProviderOptions selects the DB providers listed in DB_ADAPTORS, comma separated.
// Postgres, MySQL and SQLite are used when it is not set.
func getDBProviderOptions() []fx.Option {
	adaptors := os.Getenv("DB_ADAPTORS")
	if adaptors == "" {
		adaptors = "postgres,mysql,sqlite"
	}

	options := make([]fx.Option, 0)
	for _, adaptorName := range strings.Split(adaptors, ",") {
		adaptorName = strings.TrimSpace(adaptorName)
		if adaptorName == "" {
			continue
		}
		if module, ok := DBProviderMap[adaptorName]; ok {
			options = append(options, module)
			logger.Debugf("DB Provider '%s' selected and registered.", adaptorName)
		} else {
			logger.Warnf("DB Provider '%s' is configured but not recognized/supported. Skipping.", adaptorName)
		}
	}
	return options
}

func main() {
	os.Exit(run())
}

func run() int {
	cl, err := parseCommandLine(os.Args[1:], os.Stderr)
	if err != nil {
		return app.ExitFailed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Warnf("Received signal '%v'. Attempting to stop the job...", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}
	cfg, err := app.LoadConfig(envFilePath, embeddedConfig)
	if err != nil {
		logger.Errorf("Failed to load configuration: %v", err)
		return app.ExitFailed
	}

	result := app.RunApplication(ctx, cfg, app.Request{
		JobName:  cl.JobName,
		Params:   cl.Params,
		Restart:  cl.Restart,
		Schedule: cl.Schedule,
	}, getDBProviderOptions())
	return result.ExitCode
}
