// Package mysql provides the GORM DBProvider for MySQL databases.
package mysql

import (
	"fmt"
	"net/url"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

const dbType = "mysql"

func init() {
	gormadapter.RegisterDialector(dbType, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn, err := ConnectionString(cfg)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	})
}

// ConnectionString builds the DSN with the driver's own formatter so that
// credentials are escaped. Times are parsed into time.Time. Multi-statement
// scripts are allowed for schema migrations.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	driverCfg := gomysql.NewConfig()
	driverCfg.User = c.User
	driverCfg.Passwd = c.Password
	driverCfg.Net = "tcp"
	driverCfg.Addr = fmt.Sprintf("%s:%d", c.Host, port)
	driverCfg.DBName = c.Database
	driverCfg.ParseTime = true
	driverCfg.MultiStatements = true

	if c.Params != "" {
		values, err := url.ParseQuery(c.Params)
		if err != nil {
			return "", fmt.Errorf("invalid mysql params %q: %w", c.Params, err)
		}
		driverCfg.Params = make(map[string]string, len(values))
		for k := range values {
			driverCfg.Params[k] = values.Get(k)
		}
	}
	return driverCfg.FormatDSN(), nil
}

// MySQLDBProvider implements database.DBProvider for MySQL.
type MySQLDBProvider struct {
	*gormadapter.BaseProvider
}

// NewProvider creates the MySQL DBProvider.
func NewProvider(cfg *config.Config) *MySQLDBProvider {
	return &MySQLDBProvider{BaseProvider: gormadapter.NewBaseProvider(cfg, dbType)}
}

// Module contributes the MySQL DBProvider to the db_providers group.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewProvider,
			fx.As(new(database.DBProvider)),
			fx.ResultTags(`group:"`+database.DBProviderGroup+`"`),
		),
	),
)
