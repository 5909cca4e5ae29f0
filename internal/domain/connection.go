package domain

import "time"

// Connection is a stored target-database connection. The password is
// encrypted at rest and never leaves the store in clear text except to
// build a DSN.
type Connection struct {
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Database  string    `json:"database"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	SSLMode   string    `json:"ssl_mode"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidSSLMode reports whether mode is a libpq-recognized sslmode value.
func ValidSSLMode(mode string) bool {
	switch mode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
		return true
	}
	return false
}
