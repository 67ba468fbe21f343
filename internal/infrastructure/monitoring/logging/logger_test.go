package logging

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newTestLogger(t *testing.T) (*zapLogger, *zaptest.Buffer) {
	t.Helper()
	buf := &zaptest.Buffer{}
	level := zap.NewAtomicLevelAt(zapcore.DebugLevel)
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	z := zap.New(zapcore.NewCore(encoder, buf, level))
	return &zapLogger{z: z, level: level}, buf
}

func TestNewLogger_Formats(t *testing.T) {
	for _, format := range []string{"json", "console", ""} {
		l, err := NewLogger(LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NoError(t, err, format)
		assert.NotNil(t, l)
	}
}

func TestNewLogger_BadOutputPath(t *testing.T) {
	l, err := NewLogger(LogConfig{OutputPaths: []string{"/nonexistent-dir/x/y/z.log"}})
	assert.Error(t, err)
	assert.Nil(t, l)
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"info":    zapcore.InfoLevel,
		"bogus":   zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, parseLevel(in), in)
	}
}

func TestZapLogger_WritesLevelsAndFields(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Debug("debug msg", MolID(7))
	l.Info("info msg", Shell(2))
	l.Warn("warn msg", Stage("canonize"))
	l.Error("error msg", Err(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"molid":7`)
	assert.Contains(t, out, `"shell":2`)
	assert.Contains(t, out, `"stage":"canonize"`)
	assert.Contains(t, out, `"error":"boom"`)
}

func TestZapLogger_TypedFields(t *testing.T) {
	l, buf := newTestLogger(t)

	l.Info("fields",
		String("s", "v"),
		Int64("i64", 64),
		Float64("f", 0.25),
		Bool("b", true),
		Duration("d", time.Second),
		Any("ids", []int{1, 2}),
	)

	out := buf.String()
	assert.Contains(t, out, `"s":"v"`)
	assert.Contains(t, out, `"i64":64`)
	assert.Contains(t, out, `"f":0.25`)
	assert.Contains(t, out, `"b":true`)
	assert.Contains(t, out, `"ids":[1,2]`)
}

func TestZapLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewLoggerFromCore(core).Named("builder").With(String("run", "abc"))

	l.Info("started")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "builder", entry.LoggerName)
	assert.Equal(t, "abc", entry.ContextMap()["run"])
}

func TestZapLogger_SetLevel(t *testing.T) {
	l, buf := newTestLogger(t)
	child := l.Named("child")

	l.SetLevel("error")
	child.Info("hidden")
	assert.Empty(t, buf.String())

	l.SetLevel("debug")
	child.Info("shown")
	assert.Contains(t, buf.String(), "shown")

	var setter LevelSetter = l
	assert.NotNil(t, setter)
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "<nil>", Err(nil).Value)
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("msg")
		l.Info("msg")
		l.Warn("msg")
		l.Error("msg")
	})
	assert.Equal(t, l, l.With(String("k", "v")))
	assert.Equal(t, l, l.Named("x"))
	assert.NoError(t, l.Sync())
}

func TestDefault(t *testing.T) {
	orig := Default()
	t.Cleanup(func() { SetDefault(orig) })

	l, _ := newTestLogger(t)
	SetDefault(l)
	assert.Equal(t, Logger(l), Default())

	SetDefault(nil)
	assert.Equal(t, Logger(l), Default(), "nil must not replace the default")

	assert.Equal(t, Logger(l), OrDefault(nil))
	nop := NewNopLogger()
	assert.Equal(t, nop, OrDefault(nop))
}
