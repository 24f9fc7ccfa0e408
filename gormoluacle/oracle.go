// Package gormoluacle is a gorm dialector for Oracle over the oluacle
// database/sql driver.
package gormoluacle

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/callbacks"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/migrator"
	"gorm.io/gorm/schema"

	"github.com/oluacle/oluacle"
)

// DriverName is the default database/sql driver used by Open.
const DriverName = oluacle.DriverName

type Dialector struct {
	DriverName string
	DSN        string
	Conn       gorm.ConnPool
}

type Config struct {
	DriverName string
	DSN        string
	Conn       gorm.ConnPool
}

// Open returns a dialector that opens dsn through the oluacle driver.
func Open(dsn string) gorm.Dialector {
	return &Dialector{DSN: dsn}
}

func New(config Config) gorm.Dialector {
	return &Dialector{DSN: config.DSN, DriverName: config.DriverName, Conn: config.Conn}
}

func (dialector Dialector) Name() string {
	return "oracle"
}

func (dialector Dialector) Initialize(db *gorm.DB) (err error) {
	if dialector.DriverName == "" {
		dialector.DriverName = DriverName
	}

	if dialector.Conn != nil {
		db.ConnPool = dialector.Conn
	} else {
		conn, err := sql.Open(dialector.DriverName, dialector.DSN)
		if err != nil {
			return err
		}
		db.ConnPool = conn
	}

	// no ON CONFLICT and no RETURNING
	callbacks.RegisterDefaultCallbacks(db, &callbacks.Config{
		CreateClauses: []string{"INSERT", "VALUES"},
	})

	for k, v := range dialector.ClauseBuilders() {
		if _, ok := db.ClauseBuilders[k]; !ok {
			db.ClauseBuilders[k] = v
		}
	}
	return
}

func (dialector Dialector) ClauseBuilders() map[string]clause.ClauseBuilder {
	return map[string]clause.ClauseBuilder{
		"LIMIT": func(c clause.Clause, builder clause.Builder) {
			if limit, ok := c.Expression.(clause.Limit); ok {
				if limit.Offset > 0 {
					builder.WriteString("OFFSET ")
					builder.WriteString(strconv.Itoa(limit.Offset))
					builder.WriteString(" ROWS")
				}
				if limit.Limit != nil && *limit.Limit >= 0 {
					if limit.Offset > 0 {
						builder.WriteByte(' ')
					}
					builder.WriteString("FETCH NEXT ")
					builder.WriteString(strconv.Itoa(*limit.Limit))
					builder.WriteString(" ROWS ONLY")
				}
			}
		},
	}
}

func (dialector Dialector) DefaultValueOf(field *schema.Field) clause.Expression {
	return clause.Expr{SQL: "DEFAULT"}
}

func (dialector Dialector) Migrator(db *gorm.DB) gorm.Migrator {
	return Migrator{migrator.Migrator{Config: migrator.Config{
		DB:                          db,
		Dialector:                   dialector,
		CreateIndexAfterCreateTable: true,
	}}}
}

// BindVarTo writes :1, :2, ... in the order gorm appends statement vars.
func (dialector Dialector) BindVarTo(writer clause.Writer, stmt *gorm.Statement, v interface{}) {
	writer.WriteByte(':')
	writer.WriteString(strconv.Itoa(len(stmt.Vars)))
}

// QuoteTo double-quotes each dot-separated part of str.
func (dialector Dialector) QuoteTo(writer clause.Writer, str string) {
	for i, part := range strings.Split(str, ".") {
		if i > 0 {
			writer.WriteByte('.')
		}
		part = strings.Trim(part, `"`)
		writer.WriteByte('"')
		writer.WriteString(strings.ReplaceAll(part, `"`, `""`))
		writer.WriteByte('"')
	}
}

var numericPlaceholder = regexp.MustCompile(`:(\d+)`)

func (dialector Dialector) Explain(sql string, vars ...interface{}) string {
	return logger.ExplainSQL(sql, numericPlaceholder, `'`, vars...)
}

func (dialector Dialector) DataTypeOf(field *schema.Field) string {
	switch field.DataType {
	case schema.Bool:
		return "NUMBER(1)"
	case schema.Int, schema.Uint:
		t := "NUMBER(19)"
		if field.Size > 0 && field.Size <= 32 {
			t = "NUMBER(10)"
		}
		if field.AutoIncrement {
			return t + " GENERATED BY DEFAULT AS IDENTITY"
		}
		return t
	case schema.Float:
		return "BINARY_DOUBLE"
	case schema.String:
		size := field.Size
		if size == 0 {
			size = 255
			if field.PrimaryKey || field.HasDefaultValue {
				size = 191
			}
		}
		if size > 4000 {
			return "CLOB"
		}
		return "VARCHAR2(" + strconv.Itoa(size) + ")"
	case schema.Time:
		// Distinguish between schema.Time and tag time
		if val, ok := field.TagSettings["TYPE"]; ok {
			return val
		}
		return "DATE"
	case schema.Bytes:
		return "BLOB"
	}

	return string(field.DataType)
}

func (dialector Dialector) SavePoint(tx *gorm.DB, name string) error {
	return tx.Exec("SAVEPOINT " + name).Error
}

func (dialector Dialector) RollbackTo(tx *gorm.DB, name string) error {
	return tx.Exec("ROLLBACK TO SAVEPOINT " + name).Error
}
