package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/pgendreau/aavegotchi-ptd/pkg/amount"
	"github.com/pgendreau/aavegotchi-ptd/pkg/source"
)

// Environment variable names for claimgen configuration
const (
	EnvConfigFile     = "CLAIMGEN_CONFIG"
	EnvInput          = "CLAIMGEN_INPUT"
	EnvInputFormat    = "CLAIMGEN_INPUT_FORMAT"
	EnvAddressColumn  = "CLAIMGEN_ADDRESS_COLUMN"
	EnvAmountColumn   = "CLAIMGEN_AMOUNT_COLUMN"
	EnvUnit           = "CLAIMGEN_UNIT"
	EnvDecimals       = "CLAIMGEN_DECIMALS"
	EnvWorkers        = "CLAIMGEN_WORKERS"
	EnvOutput         = "CLAIMGEN_OUTPUT"
	EnvAuditOutput    = "CLAIMGEN_AUDIT_OUTPUT"
	EnvRoundID        = "CLAIMGEN_ROUND_ID"
	EnvStoreType      = "CLAIMGEN_STORE_TYPE"
	EnvBadgerPath     = "CLAIMGEN_BADGER_PATH"
	EnvRedisAddress   = "CLAIMGEN_REDIS_ADDRESS"
	EnvRedisPassword  = "CLAIMGEN_REDIS_PASSWORD"
	EnvRedisDB        = "CLAIMGEN_REDIS_DB"
	EnvRedisKeyPrefix = "CLAIMGEN_REDIS_KEY_PREFIX"
	EnvAWSRegion      = "CLAIMGEN_AWS_REGION"
	EnvVerbose        = "CLAIMGEN_VERBOSE"
	EnvLogFile        = "CLAIMGEN_LOG_FILE"
)

// S3Scheme prefixes document outputs that are uploaded instead of written to disk.
const S3Scheme = "s3://"

// maxDecimals keeps 10^decimals inside the uint256 range.
const maxDecimals = 77

type StoreType string

func (s StoreType) String() string {
	return string(s)
}

const (
	StoreTypeNone   StoreType = "none"
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

func ParseStoreType(s string) (StoreType, error) {
	switch StoreType(strings.ToLower(strings.TrimSpace(s))) {
	case "", StoreTypeNone:
		return StoreTypeNone, nil
	case StoreTypeMemory:
		return StoreTypeMemory, nil
	case StoreTypeBadger:
		return StoreTypeBadger, nil
	case StoreTypeRedis:
		return StoreTypeRedis, nil
	default:
		return "", fmt.Errorf("unsupported store type %q: expected none, memory, badger or redis", s)
	}
}

type InputConfig struct {
	Path          string `json:"path" yaml:"path"`
	Format        string `json:"format" yaml:"format"`
	AddressColumn string `json:"addressColumn" yaml:"addressColumn"`
	AmountColumn  string `json:"amountColumn" yaml:"amountColumn"`
}

type OutputConfig struct {
	// Document is a file path or an s3://bucket/key URI
	Document string `json:"document" yaml:"document"`
	Audit    string `json:"audit" yaml:"audit"`
}

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type StoreConfig struct {
	Type       StoreType   `json:"type" yaml:"type"`
	BadgerPath string      `json:"badgerPath" yaml:"badgerPath"`
	Redis      RedisConfig `json:"redis" yaml:"redis"`
}

type LogConfig struct {
	Debug      bool   `json:"debug" yaml:"debug"`
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups" yaml:"maxBackups"`
}

// ClaimGenConfig is the complete configuration of a claimgen run
type ClaimGenConfig struct {
	Input    InputConfig  `json:"input" yaml:"input"`
	Unit     string       `json:"unit" yaml:"unit"`
	Decimals uint8        `json:"decimals" yaml:"decimals"`
	Workers  int          `json:"workers" yaml:"workers"`
	Output   OutputConfig `json:"output" yaml:"output"`
	RoundID  string       `json:"roundId" yaml:"roundId"`
	Store    StoreConfig  `json:"store" yaml:"store"`

	AWSRegion string    `json:"awsRegion" yaml:"awsRegion"`
	Log       LogConfig `json:"log" yaml:"log"`
}

func NewDefaultConfig() *ClaimGenConfig {
	return &ClaimGenConfig{
		Input: InputConfig{
			Format:        source.FormatAuto.String(),
			AddressColumn: source.DefaultAddressColumn,
			AmountColumn:  source.DefaultAmountColumn,
		},
		Unit:     amount.UnitMinor.String(),
		Decimals: amount.DefaultDecimals,
		Workers:  1,
		Store: StoreConfig{
			Type: StoreTypeNone,
		},
	}
}

// Load reads a YAML config file over the defaults, so keys missing from the file
// keep their default value. An empty path yields the defaults.
func Load(path string) (*ClaimGenConfig, error) {
	cfg := NewDefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", path)
		}
	}
	return cfg, nil
}

// Validate checks the settings shared by every command.
func (c *ClaimGenConfig) Validate() error {
	allErrors := c.validate()
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (c *ClaimGenConfig) validate() field.ErrorList {
	var allErrors field.ErrorList

	if _, err := source.ParseFormat(c.Input.Format); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("input", "format"), c.Input.Format,
			[]string{source.FormatAuto.String(), source.FormatCSV.String(), source.FormatJSON.String()}))
	}
	if strings.TrimSpace(c.Input.AddressColumn) == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("input", "addressColumn"), "address column is required"))
	}
	if strings.TrimSpace(c.Input.AmountColumn) == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("input", "amountColumn"), "amount column is required"))
	}
	if _, err := amount.ParseUnit(c.Unit); err != nil {
		allErrors = append(allErrors, field.Invalid(field.NewPath("unit"), c.Unit, err.Error()))
	}
	if c.Decimals > maxDecimals {
		allErrors = append(allErrors, field.Invalid(field.NewPath("decimals"), c.Decimals,
			fmt.Sprintf("must be at most %d", maxDecimals)))
	}
	if c.Workers < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("workers"), c.Workers, "must be at least 1"))
	}
	if c.Output.Document != "" && IsS3URI(c.Output.Document) {
		if _, _, err := ParseS3URI(c.Output.Document); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("output", "document"), c.Output.Document, err.Error()))
		}
	}
	if c.Output.Audit != "" && IsS3URI(c.Output.Audit) {
		allErrors = append(allErrors, field.Invalid(field.NewPath("output", "audit"), c.Output.Audit,
			"audit sidecar must be a local file"))
	}

	storePath := field.NewPath("store")
	storeType, err := ParseStoreType(c.Store.Type.String())
	if err != nil {
		allErrors = append(allErrors, field.NotSupported(storePath.Child("type"), c.Store.Type.String(),
			[]string{StoreTypeNone.String(), StoreTypeMemory.String(), StoreTypeBadger.String(), StoreTypeRedis.String()}))
	}
	switch storeType {
	case StoreTypeBadger:
		if c.Store.BadgerPath == "" {
			allErrors = append(allErrors, field.Required(storePath.Child("badgerPath"), "badgerPath is required for the badger store"))
		}
	case StoreTypeRedis:
		if c.Store.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(storePath.Child("redis", "address"), "address is required for the redis store"))
		}
		if c.Store.Redis.DB < 0 {
			allErrors = append(allErrors, field.Invalid(storePath.Child("redis", "db"), c.Store.Redis.DB, "must not be negative"))
		}
	}
	return allErrors
}

// ValidateGenerate additionally requires an input table and a document output.
func (c *ClaimGenConfig) ValidateGenerate() error {
	var allErrors field.ErrorList
	if c.Input.Path == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("input", "path"), "input path is required"))
	}
	if c.Output.Document == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("output", "document"), "document output is required"))
	}
	allErrors = append(allErrors, c.validate()...)
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func IsS3URI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), S3Scheme)
}

// ParseS3URI splits s3://bucket/key into its bucket and key.
func ParseS3URI(s string) (bucket, key string, err error) {
	u, err := url.Parse(s)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 uri %q: %w", s, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("invalid s3 uri %q: scheme must be s3", s)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri %q: expected s3://bucket/key", s)
	}
	return u.Host, key, nil
}
