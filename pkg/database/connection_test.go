package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func TestNewInMemory(t *testing.T) {
	db, err := NewInMemory()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(&probe{}))
	require.NoError(t, db.Create(&probe{Name: "ok"}).Error)

	var got probe
	require.NoError(t, db.First(&got).Error)
	assert.Equal(t, "ok", got.Name)
	assert.NoError(t, db.HealthCheck())
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := NewConnection("mysql", "whatever", false)
	assert.Error(t, err)
}
