package warehouse

// Config holds Snowflake configuration for the third-party analytics data.
type Config struct {
	ConnectionString string `yaml:"connection_string"`
	Account          string `yaml:"account"`
	User             string `yaml:"user"`
	Password         string `yaml:"password"`
	Database         string `yaml:"database"`
	Schema           string `yaml:"schema"`
	Warehouse        string `yaml:"warehouse"`
	Table            string `yaml:"table"`
	Enabled          bool   `yaml:"enabled"`
}

// ParseConnectionString extracts components from an ODBC-style connection
// string as exported by the analytics vendor's console.
// Format: scheme=https;ACCOUNT=xxx;HOST=yyy;port=443;USER=zzz;PASSWORD=www;DB=aaa.bbb;
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)

	var current string
	for _, c := range connStr {
		if c == ';' {
			if idx := indexOfChar(current, '='); idx > 0 {
				parts[current[:idx]] = current[idx+1:]
			}
			current = ""
		} else {
			current += string(c)
		}
	}
	// Last part without trailing semicolon
	if current != "" {
		if idx := indexOfChar(current, '='); idx > 0 {
			parts[current[:idx]] = current[idx+1:]
		}
	}

	// DB may carry database.schema
	db := parts["DB"]
	var database, schema string
	if idx := indexOfChar(db, '.'); idx > 0 {
		database = db[:idx]
		schema = db[idx+1:]
	} else {
		database = db
	}

	return Config{
		Account:  parts["ACCOUNT"],
		User:     parts["USER"],
		Password: parts["PASSWORD"],
		Database: database,
		Schema:   schema,
	}
}

// resolve fills the connection fields from ConnectionString when it is set.
// Explicitly configured fields win over parsed ones, so a yaml file can
// override single components of a vendor-exported string.
func (c Config) resolve() Config {
	if c.ConnectionString == "" {
		return c
	}
	parsed := ParseConnectionString(c.ConnectionString)
	if c.Account == "" {
		c.Account = parsed.Account
	}
	if c.User == "" {
		c.User = parsed.User
	}
	if c.Password == "" {
		c.Password = parsed.Password
	}
	if c.Database == "" {
		c.Database = parsed.Database
	}
	if c.Schema == "" {
		c.Schema = parsed.Schema
	}
	return c
}

func indexOfChar(s string, c rune) int {
	for i, r := range s {
		if r == c {
			return i
		}
	}
	return -1
}

// DailySessions is the analytics tool's session count for one day.
type DailySessions struct {
	Date     string `json:"date"`
	Sessions int64  `json:"sessions"`
}

// VisitorSessions is the analytics tool's session count for one visitor.
type VisitorSessions struct {
	VisitorID string `json:"visitor_id"`
	Sessions  int64  `json:"sessions"`
}
