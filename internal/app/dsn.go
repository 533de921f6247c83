package app

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type dsnInfo struct {
	DatabaseType    string
	DatabaseHost    string
	DatabasePort    int
	DatabaseUser    string
	DatabaseName    string
	DatabaseSSLMode string
	DatabasePath    string
	PasswordSet     bool
}

func parseDSN(dsn string) (dsnInfo, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return dsnInfo{}, fmt.Errorf("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") {
		pathPart := trimmed[len("file:"):]
		pathPart, _, _ = strings.Cut(pathPart, "?")
		return dsnInfo{
			DatabaseType: "sqlite",
			DatabasePath: strings.TrimSpace(pathPart),
		}, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return dsnInfo{}, fmt.Errorf("parse dsn: %w", errParse)
	}

	switch strings.ToLower(strings.TrimSpace(u.Scheme)) {
	case "postgres", "postgresql":
		port := 5432
		if rawPort := strings.TrimSpace(u.Port()); rawPort != "" {
			parsedPort, errPort := strconv.Atoi(rawPort)
			if errPort != nil {
				return dsnInfo{}, fmt.Errorf("parse port: %w", errPort)
			}
			port = parsedPort
		}

		username := ""
		passwordSet := false
		if u.User != nil {
			username = strings.TrimSpace(u.User.Username())
			_, passwordSet = u.User.Password()
		}

		sslMode := strings.TrimSpace(u.Query().Get("sslmode"))
		if sslMode == "" {
			sslMode = "disable"
		}

		return dsnInfo{
			DatabaseType:    "postgres",
			DatabaseHost:    strings.TrimSpace(u.Hostname()),
			DatabasePort:    port,
			DatabaseUser:    username,
			DatabaseName:    strings.TrimSpace(strings.TrimPrefix(u.Path, "/")),
			DatabaseSSLMode: sslMode,
			PasswordSet:     passwordSet,
		}, nil
	default:
		return dsnInfo{}, fmt.Errorf("unsupported dsn scheme")
	}
}

// DescribeDSN renders a DSN for logs without credentials.
func DescribeDSN(dsn string) string {
	info, err := parseDSN(dsn)
	if err != nil {
		return "database=unknown"
	}
	if info.DatabaseType == "sqlite" {
		return "database=sqlite path=" + info.DatabasePath
	}
	return fmt.Sprintf("database=postgres host=%s port=%d user=%s name=%s sslmode=%s",
		info.DatabaseHost, info.DatabasePort, info.DatabaseUser, info.DatabaseName, info.DatabaseSSLMode)
}
