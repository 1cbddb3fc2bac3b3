package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer logger.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	assert.Error(t, SetLevel("chatty"))
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestSetupLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	require.NoError(t, SetupLogger(path))

	LogWarning("disk %s nearly full", "sda1")
	LogImageProcessed("/photos/a.jpg", false, "truncated")
	CloseLogger()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "disk sda1 nearly full")
	assert.Contains(t, string(data), "/photos/a.jpg")
	assert.Contains(t, string(data), "truncated")
}
