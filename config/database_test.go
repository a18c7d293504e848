package config

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"
)

func TestDSN(t *testing.T) {
	pg := AppConfig{DBDriver: "postgres", DBHost: "db", DBPort: "5432", DBUser: "u", DBPassword: "p", DBName: "bbs", DBSSLMode: "disable"}
	assert.Equal(t, "host=db user=u password=p dbname=bbs port=5432 sslmode=disable TimeZone=UTC", DSN(pg))

	my := AppConfig{DBDriver: "mysql", DBHost: "db", DBPort: "3306", DBUser: "root", DBPassword: "p", DBName: "bbs"}
	assert.Contains(t, DSN(my), "root:p@tcp(db:3306)/bbs?")
	assert.Contains(t, DSN(my), "multiStatements=true")

	uri := AppConfig{DBDriver: "postgres", DatabaseURI: "postgres://x"}
	assert.Equal(t, "postgres://x", DSN(uri))
}

func TestToGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Info, toGormLogLevel("debug"))
	assert.Equal(t, logger.Warn, toGormLogLevel(""))
	assert.Equal(t, logger.Error, toGormLogLevel("error"))
	assert.Equal(t, logger.Silent, toGormLogLevel("silent"))
}

func TestMigrationsEmbeddedForBothDrivers(t *testing.T) {
	for _, driver := range []string{"postgres", "mysql"} {
		ups, err := fs.Glob(migrationsFS, "migrations/"+driver+"/*.up.sql")
		require.NoError(t, err)
		downs, err := fs.Glob(migrationsFS, "migrations/"+driver+"/*.down.sql")
		require.NoError(t, err)
		assert.Len(t, ups, 2, driver)
		assert.Len(t, downs, len(ups), driver)
	}
}
