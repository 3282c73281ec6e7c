package logging

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zerolog.Level
		wantErr bool
	}{
		{"", zerolog.InfoLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"off", zerolog.Disabled, false},
		{"chatty", zerolog.InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewWritesConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	file := filepath.Join(t.TempDir(), "logs", "snapbot.log")

	logger, err := New(Config{Level: "info", File: file, NoColor: true}, &buf)
	require.NoError(t, err)

	logger.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.FileExists(t, file)
}

func TestZerologSinkTagsSiteAndAccount(t *testing.T) {
	var buf bytes.Buffer
	sink := NewZerologSink(zerolog.New(&buf), "twitter", "alice")

	sink.Log("Logged in successfully.")

	out := buf.String()
	assert.Contains(t, out, `"site":"twitter"`)
	assert.Contains(t, out, `"account":"alice"`)
	assert.Contains(t, out, "Logged in successfully.")
}

func TestRecorderConcurrentAndOrdered(t *testing.T) {
	rec := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Log("x")
		}()
	}
	wg.Wait()
	assert.Len(t, rec.Messages(), 50)

	rec2 := NewRecorder()
	Multi(rec2, nil, Discard).Log("first")
	rec2.Log("second")
	assert.Equal(t, 0, rec2.Index("first"))
	assert.Equal(t, 1, rec2.Index("second"))
	assert.Equal(t, -1, rec2.Index("third"))
}
