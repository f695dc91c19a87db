package storage

import "os"

// Mode selects the storage backend
type Mode string

const (
	ModeDynamoLocal Mode = "dynamodb-local"
	ModeDynamoAWS   Mode = "dynamodb"
	ModePostgres    Mode = "postgres"
	ModeNone        Mode = "none"
)

// Config holds storage configuration
type Config struct {
	Mode        Mode
	Endpoint    string // dynamodb-local only
	Region      string
	CallsTable  string
	AgentsTable string
	ShiftsTable string
	StatsTable  string
	DatabaseURL string // postgres only
}

// LoadConfig loads storage config from environment
func LoadConfig() Config {
	mode := Mode(getEnv("STORE_MODE", "none"))
	switch mode {
	case ModeDynamoLocal, ModeDynamoAWS, ModePostgres:
	default:
		mode = ModeNone
	}

	return Config{
		Mode:        mode,
		Endpoint:    getEnv("DYNAMO_ENDPOINT", "http://localhost:8000"),
		Region:      getEnv("DYNAMO_REGION", "eu-central-1"),
		CallsTable:  getEnv("DYNAMO_CALLS_TABLE", "pbxlive-calls"),
		AgentsTable: getEnv("DYNAMO_AGENTS_TABLE", "pbxlive-agents"),
		ShiftsTable: getEnv("DYNAMO_SHIFTS_TABLE", "pbxlive-shifts"),
		StatsTable:  getEnv("DYNAMO_QUEUE_STATS_TABLE", "pbxlive-queue-stats"),
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/pbxlive?sslmode=disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
