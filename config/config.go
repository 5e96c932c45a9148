package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// efetchMaxIDs ist die größte ID-Liste, die E-utilities in einer EFetch-Anfrage annimmt.
const efetchMaxIDs = 10000

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	HTTPPort        string `envconfig:"HTTP_PORT" default:"5000"`
	CORSAllowOrigin string `envconfig:"CORS_ALLOW_ORIGIN" default:"*"`

	PubMedBaseURL           string        `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey            string        `envconfig:"PUBMED_API_KEY"`
	PubMedTool              string        `envconfig:"PUBMED_TOOL" default:"PubMedSearcher"`
	PubMedRequestsPerSecond float64       `envconfig:"PUBMED_REQUESTS_PER_SECOND" default:"0"`
	PubMedSearchPageSize    int           `envconfig:"PUBMED_SEARCH_PAGE_SIZE" default:"5000"`
	PubMedBatchSize         int           `envconfig:"PUBMED_BATCH_SIZE" default:"500"`
	PubMedMaxRetries        int           `envconfig:"PUBMED_MAX_RETRIES" default:"4"`
	PubMedRetryBaseDelay    time.Duration `envconfig:"PUBMED_RETRY_BASE_DELAY" default:"500ms"`
	PubMedRequestTimeout    time.Duration `envconfig:"PUBMED_REQUEST_TIMEOUT" default:"60s"`

	// Abgeschlossene Jobs werden nach Ablauf der Retention aus dem Speicher entfernt.
	JobRetention     time.Duration `envconfig:"JOB_RETENTION" default:"1h"`
	JobSweepSchedule string        `envconfig:"JOB_SWEEP_SCHEDULE" default:"@every 1m"`

	// Optionale Suchhistorie in PostgreSQL; leerer DB_HOST deaktiviert sie.
	DBHost     string `envconfig:"DB_HOST"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME"`

	// Optionaler S3-Spiegel für fertige Artefakte; leerer Bucket deaktiviert ihn.
	ArtifactS3Bucket string `envconfig:"ARTIFACT_S3_BUCKET"`
	ArtifactS3URL    string `envconfig:"ARTIFACT_S3_URL"`
	ArtifactS3Region string `envconfig:"ARTIFACT_S3_REGION" default:"us-east-1"`
	ArtifactS3Key    string `envconfig:"ARTIFACT_S3_KEY"`
	ArtifactS3Secret string `envconfig:"ARTIFACT_S3_SECRET"`
	ArtifactS3Prefix string `envconfig:"ARTIFACT_S3_PREFIX" default:"loader"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// HistoryEnabled meldet, ob die Suchhistorie in die Datenbank geschrieben wird.
func (c *Config) HistoryEnabled() bool {
	return c.DBHost != ""
}

// ArchiveEnabled meldet, ob fertige Artefakte nach S3 gespiegelt werden.
func (c *Config) ArchiveEnabled() bool {
	return c.ArtifactS3Bucket != ""
}

// RequestsPerSecond liefert das effektive Rate-Limit für E-utilities.
// NCBI erlaubt 3 Anfragen pro Sekunde, mit API-Key 10.
func (c *Config) RequestsPerSecond() float64 {
	if c.PubMedRequestsPerSecond > 0 {
		return c.PubMedRequestsPerSecond
	}
	if c.PubMedAPIKey != "" {
		return 10
	}
	return 3
}

// Validate prüft Werte, die envconfig nicht prüfen kann.
func (c *Config) Validate() error {
	if c.PubMedBatchSize <= 0 || c.PubMedBatchSize > efetchMaxIDs {
		return fmt.Errorf("PUBMED_BATCH_SIZE must be between 1 and %d, got %d", efetchMaxIDs, c.PubMedBatchSize)
	}
	if c.PubMedSearchPageSize <= 0 || c.PubMedSearchPageSize > efetchMaxIDs {
		return fmt.Errorf("PUBMED_SEARCH_PAGE_SIZE must be between 1 and %d, got %d", efetchMaxIDs, c.PubMedSearchPageSize)
	}
	if c.PubMedMaxRetries < 0 {
		return fmt.Errorf("PUBMED_MAX_RETRIES must not be negative, got %d", c.PubMedMaxRetries)
	}
	if c.JobRetention <= 0 {
		return fmt.Errorf("JOB_RETENTION must be positive, got %s", c.JobRetention)
	}
	return nil
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
