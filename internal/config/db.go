package config

// Supported gorm engines.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
)

// DB holds the database configuration settings.
type DB struct {
	// GormEngine selects the gorm driver: mysql, postgres or sqlite.
	GormEngine string
	Extras     string
	Host       string
	Port       int
	User       string
	Password   string
	Name       string
	// Path is the sqlite database file, ":memory:" for a throwaway database.
	Path string
}
