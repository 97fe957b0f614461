package log

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fastjson"
)

type testEvent struct {
	id uint64
}

func (e testEvent) MarshalEvent(ev *zerolog.Event) {
	ev.Uint64("course_id", e.id).Msg("Test event.")
}

func TestModuleLoggerFields(t *testing.T) {
	buf := new(bytes.Buffer)
	SetWriter("test", buf)
	defer RemoveWriter("test")

	logger := TX("enroll")
	Info(&logger, testEvent{id: 7})

	v, err := fastjson.ParseBytes(bytes.TrimSpace(buf.Bytes()))
	require.NoError(t, err)

	assert.Equal(t, ModuleTX, string(v.GetStringBytes(KeyModule)))
	assert.Equal(t, "enroll", string(v.GetStringBytes(KeyEvent)))
	assert.EqualValues(t, 7, v.GetUint64("course_id"))
	assert.Equal(t, "Test event.", string(v.GetStringBytes("message")))
}

func TestSetLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	SetWriter("test", buf)
	defer RemoveWriter("test")

	SetLevel("warn")
	defer SetLevel("debug")

	logger := Cache("invalidate")
	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger = Cache("invalidate")
	logger.Warn().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestFileWriter(t *testing.T) {
	dir, err := ioutil.TempDir("", "academy-log")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "academy.log")
	w := NewFileWriter(FileConfig{Path: path})

	SetWriter(LoggerFile, w)
	logger := Store()
	logger.Info().Msg("written to file")
	RemoveWriter(LoggerFile)

	require.NoError(t, w.Close())

	contents, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "written to file")
}
