package config

import (
	"fmt"
	"time"

	"github.com/OFFIS-RIT/soapkg/internal/util"
	"github.com/OFFIS-RIT/soapkg/pkg/ai"
	"github.com/OFFIS-RIT/soapkg/pkg/extract"
	"github.com/OFFIS-RIT/soapkg/pkg/graph"

	"github.com/go-playground/validator"
)

// AI adapters.
const (
	AdapterOpenAI = "openai"
	AdapterOllama = "ollama"
	AdapterNone   = "none"
)

// Snapshot backends.
const (
	BackendFile   = "file"
	BackendS3     = "s3"
	BackendSQLite = "sqlite"
)

// Config is the runtime configuration of the pipeline, read from the
// environment.
type Config struct {
	Debug   bool
	LogFile string

	AIAdapter           string `validate:"oneof=openai ollama none"`
	AIModel             string
	AIURL               string `validate:"omitempty,url"`
	AIKey               string
	AIRequestsPerMinute int           `validate:"gte=0"`
	AIBurst             int           `validate:"gte=0"`
	AIMaxWait           time.Duration `validate:"gte=0"`
	AITimeout           time.Duration `validate:"gt=0"`
	AIRetries           int           `validate:"gte=0,lte=10"`
	AIMaxTokens         int           `validate:"gte=0"`
	AIParallelRequests  int           `validate:"gte=1"`
	TokenEncoding       string

	ParallelDocuments       int     `validate:"gte=1"`
	MaxTextLength           int     `validate:"gte=1"`
	WindowTokens            int     `validate:"gte=1"`
	ChunkTokens             int     `validate:"gte=0"`
	MaxEntities             int     `validate:"gte=1"`
	MaxEntityPairs          int     `validate:"gte=1"`
	MinConfidence           float64 `validate:"gte=0,lte=1"`
	CheckpointInterval      int     `validate:"gte=0"`
	DisableCoOccurrence     bool
	DisableSectionDetection bool

	SnapshotBackend string `validate:"oneof=file s3 sqlite"`
	SnapshotPath    string
	S3Region        string
	S3Endpoint      string `validate:"omitempty,url"`
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3Key           string
}

// Load reads the configuration from the environment and validates it.
// Call util.LoadEnv first to pick up a .env file.
func Load() (Config, error) {
	cfg := FromEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv reads the configuration from the environment without validating
// it, for callers that apply overrides first.
func FromEnv() Config {
	return Config{
		Debug:   util.GetEnvBool("DEBUG", false),
		LogFile: util.GetEnv("LOG_FILE"),

		AIAdapter:           util.GetEnvString("AI_ADAPTER", AdapterNone),
		AIModel:             util.GetEnv("AI_CHAT_EXTRACT_MODEL"),
		AIURL:               util.GetEnv("AI_CHAT_URL"),
		AIKey:               util.GetEnv("AI_CHAT_KEY"),
		AIRequestsPerMinute: util.GetEnvInt("AI_REQUESTS_PER_MINUTE", 60),
		AIBurst:             util.GetEnvInt("AI_BURST", 1),
		AIMaxWait:           util.GetEnvDuration("AI_MAX_WAIT", 2*time.Minute),
		AITimeout:           util.GetEnvDuration("AI_TIMEOUT", 60*time.Second),
		AIRetries:           util.GetEnvInt("AI_RETRIES", 1),
		AIMaxTokens:         util.GetEnvInt("AI_MAX_TOKENS", extract.DefaultMaxTokens),
		AIParallelRequests:  util.GetEnvInt("AI_PARALLEL_REQ", 4),
		TokenEncoding:       util.GetEnvString("AI_TOKEN_ENCODING", ai.DefaultEncoding),

		ParallelDocuments:       util.GetEnvInt("PARALLEL_DOCUMENTS", graph.DefaultParallelDocuments),
		MaxTextLength:           util.GetEnvInt("MAX_TEXT_LENGTH", extract.DefaultMaxTextLength),
		WindowTokens:            util.GetEnvInt("WINDOW_TOKENS", extract.DefaultWindowTokens),
		ChunkTokens:             util.GetEnvInt("CHUNK_TOKENS", graph.DefaultChunkTokens),
		MaxEntities:             util.GetEnvInt("MAX_ENTITIES", extract.DefaultMaxEntities),
		MaxEntityPairs:          util.GetEnvInt("MAX_ENTITY_PAIRS", extract.DefaultMaxEntityPairs),
		MinConfidence:           util.GetEnvNumeric("MIN_CONFIDENCE", graph.DefaultMinConfidence),
		CheckpointInterval:      util.GetEnvInt("CHECKPOINT_INTERVAL", 0),
		DisableCoOccurrence:     util.GetEnvBool("DISABLE_COOCCURRENCE", false),
		DisableSectionDetection: util.GetEnvBool("DISABLE_SECTION_DETECTION", false),

		SnapshotBackend: util.GetEnvString("SNAPSHOT_BACKEND", BackendFile),
		SnapshotPath:    util.GetEnvString("SNAPSHOT_PATH", "soap-kg.snap"),
		S3Region:        util.GetEnvString("AWS_REGION", "us-east-1"),
		S3Endpoint:      util.GetEnv("AWS_ENDPOINT"),
		S3AccessKey:     util.GetEnv("AWS_ACCESS_KEY"),
		S3SecretKey:     util.GetEnv("AWS_SECRET_KEY"),
		S3Bucket:        util.GetEnv("AWS_BUCKET"),
		S3Key:           util.GetEnvString("AWS_SNAPSHOT_KEY", "soap-kg/graph.snap"),
	}
}

// Validate checks field ranges and the settings each adapter and backend
// needs.
func (c Config) Validate() error {
	v := validator.New()
	v.RegisterStructValidation(validateDependencies, Config{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func validateDependencies(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)

	if c.AIAdapter != AdapterNone && c.AIModel == "" {
		sl.ReportError(c.AIModel, "AIModel", "AIModel", "required_with_adapter", c.AIAdapter)
	}
	if c.AIAdapter == AdapterOpenAI && c.AIKey == "" {
		sl.ReportError(c.AIKey, "AIKey", "AIKey", "required_with_adapter", c.AIAdapter)
	}

	switch c.SnapshotBackend {
	case BackendS3:
		if c.S3Bucket == "" {
			sl.ReportError(c.S3Bucket, "S3Bucket", "S3Bucket", "required_with_backend", c.SnapshotBackend)
		}
		if c.S3Key == "" {
			sl.ReportError(c.S3Key, "S3Key", "S3Key", "required_with_backend", c.SnapshotBackend)
		}
	case BackendFile, BackendSQLite:
		if c.SnapshotPath == "" {
			sl.ReportError(c.SnapshotPath, "SnapshotPath", "SnapshotPath", "required_with_backend", c.SnapshotBackend)
		}
	}
}
