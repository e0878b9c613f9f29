package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetString(t *testing.T) {
	t.Setenv("CALL_TEST_STRING", "value")

	assert.Equal(t, "value", GetString("CALL_TEST_STRING", "default"))
	assert.Equal(t, "default", GetString("CALL_TEST_MISSING", "default"))
}

func TestGetStringFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	t.Setenv("CALL_TEST_SECRET", "from-env")
	t.Setenv("CALL_TEST_SECRET_FILE", path)

	assert.Equal(t, "from-file", GetStringFromFile("CALL_TEST_SECRET", ""))

	t.Setenv("CALL_TEST_SECRET_FILE", filepath.Join(t.TempDir(), "missing"))
	assert.Equal(t, "from-env", GetStringFromFile("CALL_TEST_SECRET", ""))
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("CALL_TEST_INT", "42")
	t.Setenv("CALL_TEST_BAD_INT", "forty-two")
	t.Setenv("CALL_TEST_BOOL", "true")
	t.Setenv("CALL_TEST_DURATION", "1500ms")
	t.Setenv("CALL_TEST_LOWER", "  Memory ")

	assert.Equal(t, 42, GetInt("CALL_TEST_INT", 1))
	assert.Equal(t, 1, GetInt("CALL_TEST_BAD_INT", 1))
	assert.True(t, GetBool("CALL_TEST_BOOL", false))
	assert.False(t, GetBool("CALL_TEST_MISSING", false))
	assert.Equal(t, 1500*time.Millisecond, GetDuration("CALL_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetDuration("CALL_TEST_MISSING", time.Second))
	assert.Equal(t, "memory", GetLower("CALL_TEST_LOWER", ""))
}
