package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/flexcan-go/flexcan/pkg/driver"
	"github.com/stretchr/testify/assert"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "can.ini")
	assert.Nil(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
[can]
baudrate = 250000
mode = loopback
filter_id = 0x100
filter_mask = 0x7FF
filter_id2 = 0x200
filter_mask2 = 0x7FF
`)
	config, err := LoadConfig(path)
	assert.Nil(t, err)
	assert.EqualValues(t, 250_000, config.Baudrate)
	assert.Equal(t, driver.ModeLoopback, config.Mode)
	assert.EqualValues(t, 0x100, config.FilterID)
	assert.EqualValues(t, 0x7FF, config.FilterMask)
	assert.False(t, config.FilterExtended)
	assert.EqualValues(t, 0x200, config.FilterID2)
	assert.EqualValues(t, 0x7FF, config.FilterMask2)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, "[can]\n")
	config, err := LoadConfig(path)
	assert.Nil(t, err)
	assert.EqualValues(t, 500_000, config.Baudrate)
	assert.Equal(t, driver.ModeNormal, config.Mode)
	assert.Zero(t, config.FilterID2)
}

func TestLoadConfigBadMode(t *testing.T) {
	path := writeConfigFile(t, "[can]\nmode = turbo\n")
	_, err := LoadConfig(path)
	assert.NotNil(t, err)
}

func TestLoadConfigBadIdentifier(t *testing.T) {
	path := writeConfigFile(t, "[can]\nfilter_id = banana\n")
	_, err := LoadConfig(path)
	assert.NotNil(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	assert.NotNil(t, err)
}
