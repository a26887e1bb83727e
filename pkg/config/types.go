package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent recall configuration stored as config.toml
// in the .recall/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Storage     StorageConfig     `toml:"storage"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Completion  CompletionConfig  `toml:"completion"`
	Chat        ChatConfig        `toml:"chat"`
	Memory      MemoryConfig      `toml:"memory"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Auth        AuthConfig        `toml:"auth"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Worker      WorkerConfig      `toml:"worker"`
	MCP         MCPConfig         `toml:"mcp"`
}

// StorageConfig selects the message store driver.
type StorageConfig struct {
	// Driver is one of "memory", "sqlite", "postgres" or "mongo".
	Driver        string `toml:"driver,omitempty"`
	SQLitePath    string `toml:"sqlite_path,omitempty"`
	PostgresDSN   string `toml:"postgres_dsn,omitempty"`
	MongoURI      string `toml:"mongo_uri,omitempty"`
	MongoDatabase string `toml:"mongo_database,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running API
// server (recall chat, recall memory). APITarget is a full URL.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
	Token     string `toml:"token,omitempty"`
}

// CompletionConfig holds the upstream LLM provider settings.
type CompletionConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	Model    string `toml:"model,omitempty"`

	// Temperature is nil when unset so that an explicit 0 survives defaults.
	Temperature *float64 `toml:"temperature,omitempty"`
	APIKey      string   `toml:"api_key,omitempty"`

	// ImageHosts is a comma separated list of hosts the ollama provider may
	// download image attachments from.
	ImageHosts string `toml:"image_hosts,omitempty"`
}

// ChatConfig holds orchestration settings.
type ChatConfig struct {
	MaxContextMessages uint   `toml:"max_context_messages,omitempty"`
	SystemPromptFile   string `toml:"system_prompt_file,omitempty"`
}

// MemoryConfig holds memory layer settings.
type MemoryConfig struct {
	// Provider is one of "local", "mem0", "vectorstore" or "none".
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	Provider string `toml:"provider,omitempty"`
	Target   string `toml:"target,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	SigningMethod string `toml:"signing_method,omitempty"`
	Secret        string `toml:"secret,omitempty"`
	PublicKeyFile string `toml:"public_key_file,omitempty"`
	Issuer        string `toml:"issuer,omitempty"`
	Audience      string `toml:"audience,omitempty"`
}

// EventStreamConfig configures the turn event publisher.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`

	// Brokers is a comma separated list of host:port pairs.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// WorkerConfig sizes the background worker pool.
type WorkerConfig struct {
	Workers   uint `toml:"workers,omitempty"`
	QueueSize uint `toml:"queue_size,omitempty"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `toml:"enabled,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error

	// secret values are masked by "recall config list".
	secret bool
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func secretKey(field func(c *Config) *string) configKeyInfo {
	info := stringKey(field)
	info.secret = true
	return info
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver":         stringKey(func(c *Config) *string { return &c.Storage.Driver }),
	"storage.sqlite_path":    stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":   secretKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"storage.mongo_uri":      secretKey(func(c *Config) *string { return &c.Storage.MongoURI }),
	"storage.mongo_database": stringKey(func(c *Config) *string { return &c.Storage.MongoDatabase }),

	"api.listen": stringKey(func(c *Config) *string { return &c.API.Listen }),

	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"client.token":      secretKey(func(c *Config) *string { return &c.Client.Token }),

	"completion.provider": stringKey(func(c *Config) *string { return &c.Completion.Provider }),
	"completion.target":   stringKey(func(c *Config) *string { return &c.Completion.Target }),
	"completion.model":    stringKey(func(c *Config) *string { return &c.Completion.Model }),
	"completion.temperature": {
		get: func(c *Config) string {
			if c.Completion.Temperature == nil {
				return ""
			}
			return strconv.FormatFloat(*c.Completion.Temperature, 'g', -1, 64)
		},
		set: func(c *Config, v string) error {
			if v == "" {
				c.Completion.Temperature = nil
				return nil
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for completion.temperature: %w", err)
			}
			if f < 0 || f > 2 {
				return fmt.Errorf("invalid value for completion.temperature: %v is outside [0, 2]", f)
			}
			c.Completion.Temperature = &f
			return nil
		},
	},
	"completion.api_key":     secretKey(func(c *Config) *string { return &c.Completion.APIKey }),
	"completion.image_hosts": stringKey(func(c *Config) *string { return &c.Completion.ImageHosts }),

	"chat.max_context_messages": uintKey("chat.max_context_messages", func(c *Config) *uint { return &c.Chat.MaxContextMessages }),
	"chat.system_prompt_file":   stringKey(func(c *Config) *string { return &c.Chat.SystemPromptFile }),

	"memory.provider": stringKey(func(c *Config) *string { return &c.Memory.Provider }),
	"memory.target":   stringKey(func(c *Config) *string { return &c.Memory.Target }),
	"memory.api_key":  secretKey(func(c *Config) *string { return &c.Memory.APIKey }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":   stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.api_key":  secretKey(func(c *Config) *string { return &c.VectorStore.APIKey }),

	"embedding.provider":   stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":     stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":      stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"auth.signing_method":  stringKey(func(c *Config) *string { return &c.Auth.SigningMethod }),
	"auth.secret":          secretKey(func(c *Config) *string { return &c.Auth.Secret }),
	"auth.public_key_file": stringKey(func(c *Config) *string { return &c.Auth.PublicKeyFile }),
	"auth.issuer":          stringKey(func(c *Config) *string { return &c.Auth.Issuer }),
	"auth.audience":        stringKey(func(c *Config) *string { return &c.Auth.Audience }),

	"eventstream.provider": stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":  stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":    stringKey(func(c *Config) *string { return &c.EventStream.Topic }),

	"worker.workers":    uintKey("worker.workers", func(c *Config) *uint { return &c.Worker.Workers }),
	"worker.queue_size": uintKey("worker.queue_size", func(c *Config) *uint { return &c.Worker.QueueSize }),

	"mcp.enabled": {
		get: func(c *Config) string { return strconv.FormatBool(c.MCP.Enabled) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for mcp.enabled: %w", err)
			}
			c.MCP.Enabled = b
			return nil
		},
	},
}
