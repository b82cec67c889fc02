package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, port int) {
	t.Helper()
	content := fmt.Sprintf(`
http_port: %d
telegram_bot_token: "test-token"
telegram_chat_id: 42
`, port)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600))
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

// fakeTelegram serves empty getUpdates batches so the listener idles.
func fakeTelegram(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(t.TempDir(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestNewLoadsConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, 8642)

	d, err := New(dir, "1.2.3")
	require.NoError(t, err)

	assert.Equal(t, "1.2.3", d.Version())
	assert.Equal(t, dir, d.Dir())
	assert.Equal(t, "test-token", d.Config().TelegramBotToken)
	assert.Equal(t, int64(42), d.Config().TelegramChatID)
}

func TestPIDFileLifecycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, 8642)

	d, err := New(dir, "test")
	require.NoError(t, err)

	require.NoError(t, d.writePIDFile())
	data, err := os.ReadFile(d.pidFilePath())
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("%d\n", os.Getpid()), string(data))

	d.removePIDFile()
	_, err = os.Stat(d.pidFilePath())
	assert.True(t, os.IsNotExist(err))
}

func TestCheckAndCleanStale(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, 8642)

	d, err := New(dir, "test")
	require.NoError(t, err)

	// No PID file.
	require.NoError(t, d.checkAndCleanStale())

	// Garbage PID file gets removed.
	require.NoError(t, os.WriteFile(d.pidFilePath(), []byte("not-a-pid\n"), 0644))
	require.NoError(t, d.checkAndCleanStale())
	_, err = os.Stat(d.pidFilePath())
	assert.True(t, os.IsNotExist(err))

	// Dead process gets cleaned up. PID max on Linux defaults to well
	// below this value.
	require.NoError(t, os.WriteFile(d.pidFilePath(), []byte("4194999\n"), 0644))
	require.NoError(t, d.checkAndCleanStale())
	_, err = os.Stat(d.pidFilePath())
	assert.True(t, os.IsNotExist(err))

	// A live process (this one) blocks startup.
	require.NoError(t, d.writePIDFile())
	err = d.checkAndCleanStale()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRunAndShutdown(t *testing.T) {
	dir := t.TempDir()
	port := freePort(t)
	writeConfig(t, dir, port)

	d, err := New(dir, "test")
	require.NoError(t, err)
	d.client.SetBaseURL(fakeTelegram(t).URL)

	done := make(chan error, 1)
	go func() { done <- d.Run(context.Background()) }()

	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForHealthy(t, baseURL)

	resp, err := http.Get(baseURL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(baseURL+"/shutdown", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	_, err = os.Stat(d.pidFilePath())
	assert.True(t, os.IsNotExist(err), "PID file removed on shutdown")
}

func TestRunRefusesSecondInstance(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, 8642)

	d, err := New(dir, "test")
	require.NoError(t, err)
	require.NoError(t, d.writePIDFile())

	err = d.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func waitForHealthy(t *testing.T, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(baseURL + "/health")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("server never became healthy")
}
