package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestOtpMessage(t *testing.T) {
	msg, err := OtpMessage("jane@example.com", "042913", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", msg.To)
	assert.Contains(t, msg.HTML, "042913")
	assert.Contains(t, msg.HTML, "5 minutes")
}

func TestVerificationMessage_EscapesName(t *testing.T) {
	msg, err := VerificationMessage("jane@example.com", "<b>Jane</b>", "http://localhost:3000/verify-email/abc", 24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, msg.HTML, `href="http://localhost:3000/verify-email/abc"`)
	assert.Contains(t, msg.HTML, "&lt;b&gt;Jane&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "24 hours")
}

func TestDropMailer_WritesCodeToFileNotLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dir := filepath.Join(t.TempDir(), "mail")
	m, err := NewDropMailer(dir, zap.New(core))
	require.NoError(t, err)

	msg, err := OtpMessage("jane@example.com", "042913", 5*time.Minute)
	require.NoError(t, err)
	require.NoError(t, m.Send(context.Background(), msg))
	require.NoError(t, m.Send(context.Background(), msg))

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 2, "one file per message")

	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(data), "042913")
	assert.Contains(t, string(data), "To: jane@example.com")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "****@example.com", fields["to"])
	assert.Equal(t, msg.Subject, fields["subject"])
	for _, v := range fields {
		assert.NotContains(t, v, "042913")
	}
}
