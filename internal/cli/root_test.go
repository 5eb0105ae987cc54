package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/livesync/internal/session"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "livesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"run", "login", "logout", "version"}, names)

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "configs/livesync.yaml", flag.DefValue)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--env-file", "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "livesync dev"), "output = %q", out)
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("missing file is ignored", func(t *testing.T) {
		assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env")))
	})

	t.Run("values are exported", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("LIVESYNC_TEST_URL=wss://push.example.com/ws\n"), 0o600))
		t.Setenv("LIVESYNC_TEST_URL", "")
		os.Unsetenv("LIVESYNC_TEST_URL")

		require.NoError(t, loadEnvFile(path))
		assert.Equal(t, "wss://push.example.com/ws", os.Getenv("LIVESYNC_TEST_URL"))
	})
}

func TestConfigFromEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LIVESYNC_PUSH_URL=wss://push.example.com/ws\n"), 0o600))
	t.Setenv("LIVESYNC_PUSH_URL", "")
	os.Unsetenv("LIVESYNC_PUSH_URL")

	cfgPath := writeConfig(t, "channel:\n  url: ${LIVESYNC_PUSH_URL}\napi:\n  base_url: https://api.example.com\n")

	opts := &RootOptions{ConfigPath: cfgPath, EnvFile: envPath}
	require.NoError(t, loadEnvFile(opts.EnvFile))
	cfg, err := loadConfig(opts)
	require.NoError(t, err)
	assert.Equal(t, "wss://push.example.com/ws", cfg.Channel.URL)
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com\n")

	_, err := execute(t, "run", "--config", path, "--env-file", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel.url is required")
}

func TestLoginCommand_RequiresCredentials(t *testing.T) {
	t.Setenv(PasswordEnv, "")

	_, err := execute(t, "login", "--env-file", "", "--email", "ada@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--password")
}

func TestLoginCommand_PersistsSession(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/auth/login/":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "hunter2" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"detail":"bad credentials"}`))
				return
			}
			w.Write([]byte(`{"access":"a1","refresh":"r1"}`))
		case "/auth/me/":
			if r.Header.Get("Authorization") != "Bearer a1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"id":"u1","email":"ada@example.com","name":"Ada"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer api.Close()

	sessionPath := filepath.Join(t.TempDir(), "session.json")
	cfgPath := writeConfig(t, "channel:\n  url: wss://push.example.com/ws\napi:\n  base_url: "+api.URL+
		"\nsession:\n  store: file\n  path: "+sessionPath+"\n")
	t.Setenv(PasswordEnv, "hunter2")

	out, err := execute(t, "login", "--config", cfgPath, "--env-file", "", "--email", "ada@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "signed in as Ada")

	snap, err := session.NewFileStore(sessionPath).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "a1", snap.Credentials.AccessToken)
	require.NotNil(t, snap.User)
	assert.Equal(t, "u1", snap.User.ID)

	out, err = execute(t, "logout", "--config", cfgPath, "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "signed out")

	snap, err = session.NewFileStore(sessionPath).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestNewApp_WiresMemoryStores(t *testing.T) {
	cfgPath := writeConfig(t, `
channel:
  url: ws://127.0.0.1:1/ws
api:
  base_url: http://127.0.0.1:1
session:
  store: memory
`)
	cfg, err := loadConfig(&RootOptions{ConfigPath: cfgPath})
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, slog.Default())
	require.NoError(t, err)
	defer a.close()

	assert.NotNil(t, a.dashboard)
	assert.NotNil(t, a.notifications)
	assert.NotNil(t, a.activities)
	assert.Equal(t, "disconnected", string(a.conn.State()))
}
