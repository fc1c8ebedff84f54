package shapefile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanField(t *testing.T) {
	assert.Equal(t, "France", cleanField("France\x00\x00\x00"))
	assert.Equal(t, "-99", cleanField("  -99 "))
	assert.Equal(t, "", cleanField("\x00"))
}

func TestReadCountries_MissingFile(t *testing.T) {
	_, err := ReadCountries(filepath.Join(t.TempDir(), "missing.shp"))
	assert.Error(t, err)
}
