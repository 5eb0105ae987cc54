package database

import (
	"net"
	"net/url"
	"strconv"

	"github.com/rickgao/livesync/internal/config"
)

// ApplicationName is reported to the server as application_name.
const ApplicationName = "livesync"

// BuildConnString renders cfg as a postgres:// URL. A zero port or empty
// ssl mode falls back to the config defaults.
func BuildConnString(cfg config.DBConfig) string {
	port := cfg.Port
	if port == 0 {
		port = config.DefaultDBPort
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = config.DefaultDBSSLMode
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", ApplicationName)

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:     "/" + cfg.Name,
		RawQuery: q.Encode(),
	}
	return u.String()
}
