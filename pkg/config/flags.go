package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --api-target
// on both "recall chat" and "recall memory").
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag (e.g. "l"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "api.listen").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagListen             = "listen"
	FlagStorageDriver      = "storage-driver"
	FlagSQLite             = "sqlite"
	FlagPostgresDSN        = "postgres-dsn"
	FlagMongoURI           = "mongo-uri"
	FlagMongoDatabase      = "mongo-database"
	FlagProvider           = "provider"
	FlagUpstream           = "upstream"
	FlagModel              = "model"
	FlagImageHosts         = "image-hosts"
	FlagMaxContext         = "max-context-messages"
	FlagSystemPromptFile   = "system-prompt-file"
	FlagMemoryProvider     = "memory-provider"
	FlagMemoryTarget       = "memory-target"
	FlagVectorStoreProv    = "vector-store-provider"
	FlagVectorStoreTgt     = "vector-store-target"
	FlagEmbeddingProv      = "embedding-provider"
	FlagEmbeddingTgt       = "embedding-target"
	FlagEmbeddingModel     = "embedding-model"
	FlagEmbeddingDims      = "embedding-dimensions"
	FlagEventStreamProv    = "eventstream-provider"
	FlagEventStreamBrokers = "eventstream-brokers"
	FlagEventStreamTopic   = "eventstream-topic"
	FlagWorkers            = "workers"
	FlagQueueSize          = "queue-size"
	FlagMCP                = "mcp"
	FlagAPITarget          = "api-target"
	FlagToken              = "token"
)

// ServeFlags is the registry used by "recall serve".
var ServeFlags = FlagSet{
	FlagListen:             {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:      {Name: "storage-driver", ViperKey: "storage.driver", Description: "Message store driver (memory, sqlite, postgres, mongo)"},
	FlagSQLite:             {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite database (default: <config dir>/recall.db)"},
	FlagPostgresDSN:        {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagMongoURI:           {Name: "mongo-uri", ViperKey: "storage.mongo_uri", Description: "MongoDB connection URI"},
	FlagMongoDatabase:      {Name: "mongo-database", ViperKey: "storage.mongo_database", Description: "MongoDB database name"},
	FlagProvider:           {Name: "provider", Shorthand: "p", ViperKey: "completion.provider", Description: "Completion provider (ollama, openai, groq)"},
	FlagUpstream:           {Name: "upstream", Shorthand: "u", ViperKey: "completion.target", Description: "Completion provider base URL"},
	FlagModel:              {Name: "model", Shorthand: "m", ViperKey: "completion.model", Description: "Completion model"},
	FlagImageHosts:         {Name: "image-hosts", ViperKey: "completion.image_hosts", Description: "Comma separated hosts ollama may download image attachments from"},
	FlagMaxContext:         {Name: "max-context-messages", ViperKey: "chat.max_context_messages", Description: "Number of history messages sent upstream"},
	FlagSystemPromptFile:   {Name: "system-prompt-file", ViperKey: "chat.system_prompt_file", Description: "File holding the base system prompt; reloaded on change"},
	FlagMemoryProvider:     {Name: "memory-provider", ViperKey: "memory.provider", Description: "Memory provider (local, mem0, vectorstore, none)"},
	FlagMemoryTarget:       {Name: "memory-target", ViperKey: "memory.target", Description: "Memory service URL (mem0)"},
	FlagVectorStoreProv:    {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite-vec, qdrant, chroma)"},
	FlagVectorStoreTgt:     {Name: "vector-store-target", ViperKey: "vector_store.target", Description: "Vector store URL or path"},
	FlagEmbeddingProv:      {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama)"},
	FlagEmbeddingTgt:       {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel:     {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model"},
	FlagEmbeddingDims:      {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensions"},
	FlagEventStreamProv:    {Name: "eventstream-provider", ViperKey: "eventstream.provider", Description: "Turn event publisher (nop, kafka)"},
	FlagEventStreamBrokers: {Name: "eventstream-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	FlagEventStreamTopic:   {Name: "eventstream-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for turn events"},
	FlagWorkers:            {Name: "workers", ViperKey: "worker.workers", Description: "Number of background workers"},
	FlagQueueSize:          {Name: "queue-size", ViperKey: "worker.queue_size", Description: "Background job queue capacity"},
	FlagMCP:                {Name: "mcp", ViperKey: "mcp.enabled", Description: "Serve MCP memory tools at /mcp"},
}

// ClientFlags is the registry used by commands that call a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api-target", Shorthand: "a", ViperKey: "client.api_target", Description: "Recall API server URL"},
	FlagToken:     {Name: "token", Shorthand: "t", ViperKey: "client.token", Description: "Bearer token for the API server"},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddBoolFlag registers a bool flag on cmd from the given FlagSet.
func AddBoolFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *bool) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultBool(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().BoolVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().BoolVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}

func defaultBool(viperKey string) bool {
	v := viper.New()
	setViperDefaults(v)
	return v.GetBool(viperKey)
}
