package config

const (
	defaultStorageDriver = "sqlite"
	defaultMongoDatabase = "recall"

	defaultAPIListen       = ":8080"
	defaultClientAPITarget = "http://localhost:8080"

	defaultCompletionProvider = "ollama"
	defaultOllamaTarget       = "http://localhost:11434"
	defaultCompletionModel    = "llama3.2"

	defaultMaxContextMessages = 20

	defaultMemoryProvider = "local"
	defaultVectorProvider = "sqlite-vec"

	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 768

	defaultSigningMethod = "HS256"
	defaultIssuer        = "recall"

	defaultEventStreamProvider = "nop"
	defaultEventStreamTopic    = "recall.turns"

	defaultWorkers   = 3
	defaultQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver:        defaultStorageDriver,
			MongoDatabase: defaultMongoDatabase,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Completion: CompletionConfig{
			Provider: defaultCompletionProvider,
			Target:   defaultOllamaTarget,
			Model:    defaultCompletionModel,
		},
		Chat: ChatConfig{
			MaxContextMessages: defaultMaxContextMessages,
		},
		Memory: MemoryConfig{
			Provider: defaultMemoryProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultCompletionProvider,
			Target:     defaultOllamaTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Auth: AuthConfig{
			SigningMethod: defaultSigningMethod,
			Issuer:        defaultIssuer,
		},
		EventStream: EventStreamConfig{
			Provider: defaultEventStreamProvider,
			Topic:    defaultEventStreamTopic,
		},
		Worker: WorkerConfig{
			Workers:   defaultWorkers,
			QueueSize: defaultQueueSize,
		},
	}
}
