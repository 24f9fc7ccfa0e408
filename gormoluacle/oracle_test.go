package gormoluacle

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/oluacle/oluacle"
	"github.com/oluacle/oluacle/internal/ocifake"
	"github.com/oluacle/oluacle/oci"
)

type User struct {
	ID    uint
	Name  string
	Score float64
	Admin bool
}

func open(t *testing.T, f *ocifake.API) *gorm.DB {
	t.Helper()
	connector, err := oluacle.NewConnector(oluacle.NewEnvironment(f), "scott/tiger@orcl")
	require.NoError(t, err)
	sqlDB := sql.OpenDB(connector)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(New(Config{Conn: sqlDB}), &gorm.Config{
		DisableAutomaticPing: true,
		Logger:               logger.Discard,
	})
	require.NoError(t, err)
	return db
}

func TestDryRunSQL(t *testing.T) {
	db := open(t, ocifake.New()).Session(&gorm.Session{DryRun: true})

	stmt := db.Where("name = ?", "ada").Limit(10).Offset(5).Find(&[]User{}).Statement
	require.Equal(t, `SELECT * FROM "users" WHERE name = :1 OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY`, stmt.SQL.String())
	require.Equal(t, []interface{}{"ada"}, stmt.Vars)

	stmt = db.Limit(3).Find(&[]User{}).Statement
	require.Equal(t, `SELECT * FROM "users" FETCH NEXT 3 ROWS ONLY`, stmt.SQL.String())

	stmt = db.Create(&User{Name: "ada", Score: 1.5}).Statement
	require.Equal(t, `INSERT INTO "users" ("name","score","admin") VALUES (:1,:2,:3)`, stmt.SQL.String())

	stmt = db.Model(&User{ID: 7}).Update("score", 2.5).Statement
	require.Equal(t, `UPDATE "users" SET "score"=:1 WHERE "id" = :2`, stmt.SQL.String())
}

func TestQuoteAndExplain(t *testing.T) {
	d := Dialector{}
	var b = &stringWriter{}
	d.QuoteTo(b, `scott.users`)
	require.Equal(t, `"scott"."users"`, b.String())

	require.Equal(t, `SELECT * FROM t WHERE a = 'x' AND b = 2`, d.Explain("SELECT * FROM t WHERE a = :1 AND b = :2", "x", 2))
}

func TestDataTypeOf(t *testing.T) {
	s, err := schema.Parse(&User{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	d := Dialector{}
	require.Equal(t, "NUMBER(19) GENERATED BY DEFAULT AS IDENTITY", d.DataTypeOf(s.LookUpField("ID")))
	require.Equal(t, "VARCHAR2(255)", d.DataTypeOf(s.LookUpField("Name")))
	require.Equal(t, "BINARY_DOUBLE", d.DataTypeOf(s.LookUpField("Score")))
	require.Equal(t, "NUMBER(1)", d.DataTypeOf(s.LookUpField("Admin")))
}

func TestRawScanThroughDriver(t *testing.T) {
	f := ocifake.New()
	f.Script(`SELECT "name","score","admin" FROM "users" WHERE id = :1`, ocifake.Script{
		Columns: []ocifake.Column{
			{Name: "name", Type: oci.SQLT_CHR, Size: 40},
			{Name: "score", Type: oci.SQLT_NUM, Size: 22},
			{Name: "admin", Type: oci.SQLT_NUM, Size: 22},
		},
		Query: func(params map[string]any) [][]any {
			if params["1"] == int64(7) {
				return [][]any{{"ada", 9.5, 1}}
			}
			return nil
		},
	})
	db := open(t, f)

	var u User
	err := db.Raw(`SELECT "name","score","admin" FROM "users" WHERE id = ?`, 7).Scan(&u).Error
	require.NoError(t, err)
	require.Equal(t, "ada", u.Name)
	require.Equal(t, 9.5, u.Score)
	// NUMBER(1) comes back as an integer and scans into bool
	require.True(t, u.Admin)
}

func TestMigratorHasTable(t *testing.T) {
	f := ocifake.New()
	f.Script("SELECT COUNT(*) FROM USER_TABLES WHERE TABLE_NAME = :1", ocifake.Script{
		Columns: []ocifake.Column{{Name: "COUNT(*)", Type: oci.SQLT_NUM, Size: 22}},
		Query: func(params map[string]any) [][]any {
			if params["1"] == "USERS" {
				return [][]any{{1}}
			}
			return [][]any{{0}}
		},
	})
	db := open(t, f)
	require.True(t, db.Migrator().HasTable("USERS"))
	require.False(t, db.Migrator().HasTable("ORDERS"))
}

type stringWriter struct{ buf []byte }

func (w *stringWriter) WriteByte(c byte) error {
	w.buf = append(w.buf, c)
	return nil
}

func (w *stringWriter) WriteString(s string) (int, error) {
	w.buf = append(w.buf, s...)
	return len(s), nil
}

func (w *stringWriter) String() string { return string(w.buf) }
