package gorm

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
)

// TableNamer represents a struct that has a TableName() string method.
type TableNamer interface {
	TableName() string
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()

// applyTableName applies the table name of model, or of its slice element type, to db.
func applyTableName(db *gorm.DB, model interface{}) *gorm.DB {
	if namer, ok := model.(TableNamer); ok {
		return db.Table(namer.TableName())
	}

	t := reflect.TypeOf(model)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t != nil && (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) {
		elem := t.Elem()
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if reflect.PointerTo(elem).Implements(tableNamerType) {
			if namer, ok := reflect.New(elem).Interface().(TableNamer); ok {
				return db.Table(namer.TableName())
			}
		}
	}

	// Let GORM infer the table from the model.
	return db.Model(model)
}

// isTableNotExistError matches the "missing table" errors of the supported databases.
func isTableNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return (strings.Contains(msg, "relation \"") && strings.Contains(msg, "\" does not exist")) || // PostgreSQL
		(strings.Contains(msg, "Error 1146") && strings.Contains(msg, "doesn't exist")) || // MySQL
		strings.Contains(msg, "no such table:") // SQLite
}

// gormExecutor implements database.DBExecutor on a *gorm.DB, which is either a
// connection pool or an open transaction.
type gormExecutor struct {
	db *gorm.DB
	// inTx suppresses GORM's implicit per-statement transaction handling.
	inTx bool
}

func (e gormExecutor) session(ctx context.Context) *gorm.DB {
	db := e.db.WithContext(ctx)
	if !e.inTx {
		db = db.Session(&gorm.Session{SkipDefaultTransaction: true})
	}
	return db
}

// ExecuteUpdate implements database.DBExecutor.
// UPDATE writes every column of model; query adds conditions such as the expected version.
func (e gormExecutor) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	var result *gorm.DB
	switch operation {
	case "CREATE":
		result = db.Create(model)
	case "UPDATE":
		db = db.Model(model).Select("*")
		if len(query) > 0 {
			db = db.Where(query)
		}
		result = db.Updates(model)
	case "DELETE":
		if len(query) > 0 {
			db = db.Where(query)
		}
		result = db.Delete(model)
	default:
		return 0, fmt.Errorf("unsupported update operation: %s", operation)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteUpsert implements database.DBExecutor.
func (e gormExecutor) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	db := e.session(ctx)
	if tableName != "" {
		db = db.Table(tableName)
	}

	columns := make([]clause.Column, 0, len(conflictColumns))
	for _, col := range conflictColumns {
		columns = append(columns, clause.Column{Name: col})
	}
	onConflict := clause.OnConflict{Columns: columns}
	if len(updateColumns) > 0 {
		onConflict.DoUpdates = clause.AssignmentColumns(updateColumns)
	} else {
		onConflict.DoNothing = true
	}

	result := db.Clauses(onConflict).Create(model)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ExecuteQuery implements database.DBExecutor.
// Find does not report ErrRecordNotFound, so callers check for an empty target.
func (e gormExecutor) ExecuteQuery(ctx context.Context, target interface{}, query map[string]interface{}) error {
	db := applyTableName(e.session(ctx), target)
	return db.Where(query).Find(target).Error
}

// ExecuteQueryAdvanced implements database.DBExecutor.
func (e gormExecutor) ExecuteQueryAdvanced(ctx context.Context, target interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := applyTableName(e.session(ctx), target)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

// ExecuteQueryPage implements database.PageQueryExecutor.
func (e gormExecutor) ExecuteQueryPage(ctx context.Context, target interface{}, query database.Query, offset, limit int) error {
	db := e.fromQuery(ctx, target, query)
	if query.OrderBy != "" {
		db = db.Order(query.OrderBy)
	}
	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(target).Error
}

// CountQuery implements database.PageQueryExecutor.
func (e gormExecutor) CountQuery(ctx context.Context, model interface{}, query database.Query) (int64, error) {
	var count int64
	if err := e.fromQuery(ctx, model, query).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (e gormExecutor) fromQuery(ctx context.Context, model interface{}, query database.Query) *gorm.DB {
	db := e.session(ctx)
	if query.Table != "" {
		db = db.Table(query.Table)
	} else {
		db = applyTableName(db, model)
	}
	if query.Where != "" {
		db = db.Where(query.Where, query.Args...)
	}
	return db
}

// Count implements database.DBExecutor.
func (e gormExecutor) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	db := applyTableName(e.session(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	var count int64
	if err := db.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Pluck implements database.DBExecutor. Values are distinct.
func (e gormExecutor) Pluck(ctx context.Context, model interface{}, column string, target interface{}, query map[string]interface{}) error {
	db := applyTableName(e.session(ctx), model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	return db.Distinct(column).Order(column).Pluck(column, target).Error
}
