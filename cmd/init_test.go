package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestInitCommand(t *testing.T) {
	resetCommandState(t)

	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("SOLAR_ATTENDANCE_STORE", "database")
	t.Setenv("SOLAR_DATABASE_TYPE", "sqlite")
	t.Setenv("SOLAR_DATABASE", dbPath)
	t.Setenv("SOLAR_DATABASE_LOG_LEVEL", "ERROR")

	currentOut := rootCmd.OutOrStdout()
	currentErr := rootCmd.OutOrStderr()
	t.Cleanup(
		func() {
			rootCmd.SetOut(currentOut)
			rootCmd.SetErr(currentErr)
		},
	)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)

	rootCmd.SetArgs([]string{"init"})
	require.NoError(t, rootCmd.Execute())

	_, err := os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")

	output := out.String()
	t.Logf("output: %s", output)
	assert.Contains(t, output, "Opening database attendance store")
	assert.Contains(t, output, "Attendance table has 1 rows")
	assert.Contains(t, output, "Initialization complete")

	db, err := gorm.Open(sqlite.Open(dbPath))
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	var header struct {
		TimeLeft     string
		TimeReturned string
		Date         string
	}
	err = db.Table("attendance").Where("row_num = ?", 1).Take(&header).Error
	require.NoError(t, err)
	assert.Equal(t, "Time Left", header.TimeLeft)
	assert.Equal(t, "Time Returned", header.TimeReturned)
	assert.Equal(t, "Date", header.Date)
}
