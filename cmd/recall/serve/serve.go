// Package servecmder provides the serve command that runs the recall API server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/recall/api"
	"github.com/papercomputeco/recall/api/mcp"
	"github.com/papercomputeco/recall/cmd/recall/sqlitepath"
	"github.com/papercomputeco/recall/pkg/auth"
	"github.com/papercomputeco/recall/pkg/chat"
	completionutils "github.com/papercomputeco/recall/pkg/completion/utils"
	"github.com/papercomputeco/recall/pkg/config"
	"github.com/papercomputeco/recall/pkg/dotdir"
	"github.com/papercomputeco/recall/pkg/enrich"
	eventstreamutils "github.com/papercomputeco/recall/pkg/eventstream/utils"
	"github.com/papercomputeco/recall/pkg/logger"
	"github.com/papercomputeco/recall/pkg/memory"
	memoryutils "github.com/papercomputeco/recall/pkg/memory/utils"
	"github.com/papercomputeco/recall/pkg/prompt"
	"github.com/papercomputeco/recall/pkg/storage"
	storageutils "github.com/papercomputeco/recall/pkg/storage/utils"
	"github.com/papercomputeco/recall/pkg/worker"
)

const serveLongDesc string = `Run the recall API server.

The server stores conversations, streams completions from the configured
provider and commits each finished exchange to long-term memory in the
background.

Settings come from flags, RECALL_* environment variables, config.toml and
built-in defaults, in that order. Bearer tokens are checked against
auth.secret (HS256) or auth.public_key_file (RS256).

Examples:
  recall serve
  recall serve --provider openai --model gpt-4o-mini
  recall serve --storage-driver postgres --postgres-dsn postgres://localhost/recall
  RECALL_AUTH_SECRET=dev recall serve --mcp`

const serveShortDesc string = "Run the recall API server"

// jobTimeout bounds each background memory commit.
const jobTimeout = 30 * time.Second

type serveCommander struct {
	listen        string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	mongoURI      string
	mongoDatabase string

	provider           string
	upstream           string
	model              string
	imageHosts         string
	maxContextMessages uint
	systemPromptFile   string

	memoryProvider string
	memoryTarget   string
	vectorProvider string
	vectorTarget   string
	embeddingProv  string
	embeddingTgt   string
	embeddingModel string
	embeddingDims  uint

	eventStreamProvider string
	eventStreamBrokers  string
	eventStreamTopic    string

	workers   uint
	queueSize uint
	mcp       bool

	configDir string
	debug     bool
	viper     *viper.Viper
	logger    *slog.Logger

	// closers run in reverse order on shutdown.
	closers []func() error
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagMongoURI,
	config.FlagMongoDatabase,
	config.FlagProvider,
	config.FlagUpstream,
	config.FlagModel,
	config.FlagImageHosts,
	config.FlagMaxContext,
	config.FlagSystemPromptFile,
	config.FlagMemoryProvider,
	config.FlagMemoryTarget,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEventStreamProv,
	config.FlagEventStreamBrokers,
	config.FlagEventStreamTopic,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagMCP,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("could not initialize config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	fs := config.ServeFlags
	config.AddStringFlag(cmd, fs, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, fs, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, fs, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, fs, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, fs, config.FlagMongoURI, &cmder.mongoURI)
	config.AddStringFlag(cmd, fs, config.FlagMongoDatabase, &cmder.mongoDatabase)
	config.AddStringFlag(cmd, fs, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, fs, config.FlagUpstream, &cmder.upstream)
	config.AddStringFlag(cmd, fs, config.FlagModel, &cmder.model)
	config.AddStringFlag(cmd, fs, config.FlagImageHosts, &cmder.imageHosts)
	config.AddUintFlag(cmd, fs, config.FlagMaxContext, &cmder.maxContextMessages)
	config.AddStringFlag(cmd, fs, config.FlagSystemPromptFile, &cmder.systemPromptFile)
	config.AddStringFlag(cmd, fs, config.FlagMemoryProvider, &cmder.memoryProvider)
	config.AddStringFlag(cmd, fs, config.FlagMemoryTarget, &cmder.memoryTarget)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreProv, &cmder.vectorProvider)
	config.AddStringFlag(cmd, fs, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingProv, &cmder.embeddingProv)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingTgt, &cmder.embeddingTgt)
	config.AddStringFlag(cmd, fs, config.FlagEmbeddingModel, &cmder.embeddingModel)
	config.AddUintFlag(cmd, fs, config.FlagEmbeddingDims, &cmder.embeddingDims)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamProv, &cmder.eventStreamProvider)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamBrokers, &cmder.eventStreamBrokers)
	config.AddStringFlag(cmd, fs, config.FlagEventStreamTopic, &cmder.eventStreamTopic)
	config.AddUintFlag(cmd, fs, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, fs, config.FlagQueueSize, &cmder.queueSize)
	config.AddBoolFlag(cmd, fs, config.FlagMCP, &cmder.mcp)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	defer c.close()

	server, err := c.newServer(ctx)
	if err != nil {
		return err
	}

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return server.Shutdown()
	}
}

// newServer wires every component from the resolved settings. Resources
// opened along the way are registered with c.closers.
func (c *serveCommander) newServer(ctx context.Context) (*api.Server, error) {
	v := c.viper

	authenticator, err := c.newAuthenticator()
	if err != nil {
		return nil, err
	}

	store, err := c.newStore(ctx)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, store.Close)

	mem, err := c.newMemory(ctx)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, mem.Close)

	publisher, err := eventstreamutils.NewPublisher(&eventstreamutils.NewPublisherOpts{
		ProviderType: v.GetString("eventstream.provider"),
		Brokers:      splitList(v.GetString("eventstream.brokers")),
		Topic:        v.GetString("eventstream.topic"),
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event publisher: %w", err)
	}
	c.closers = append(c.closers, publisher.Close)

	pool, err := worker.NewPool(&worker.Config{
		Memory:     mem,
		Publisher:  publisher,
		NumWorkers: v.GetUint("worker.workers"),
		QueueSize:  v.GetUint("worker.queue_size"),
		JobTimeout: jobTimeout,
		Logger:     c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	// Drain pending commits before the memory backend and publisher close.
	c.closers = append(c.closers, func() error { pool.Close(); return nil })

	provider, err := completionutils.NewProvider(&completionutils.NewProviderOpts{
		ProviderType: v.GetString("completion.provider"),
		TargetURL:    v.GetString("completion.target"),
		APIKey:       v.GetString("completion.api_key"),
		ImageHosts:   splitList(v.GetString("completion.image_hosts")),
		Logger:       c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating completion provider: %w", err)
	}

	basePrompt, err := c.newPrompt()
	if err != nil {
		return nil, err
	}

	orchestratorConfig := chat.Config{
		Store:              store,
		Provider:           provider,
		Enricher:           enrich.New(mem, c.logger),
		Prompt:             basePrompt,
		Workers:            pool,
		Model:              v.GetString("completion.model"),
		MaxContextMessages: v.GetInt("chat.max_context_messages"),
		Logger:             c.logger,
	}
	if v.IsSet("completion.temperature") {
		t := v.GetFloat64("completion.temperature")
		orchestratorConfig.Temperature = &t
	}

	orchestrator, err := chat.NewOrchestrator(orchestratorConfig)
	if err != nil {
		return nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	apiConfig := api.Config{
		ListenAddr:   v.GetString("api.listen"),
		Store:        store,
		Orchestrator: orchestrator,
		Editor:       chat.NewEditor(orchestrator, c.logger),
		Memory:       mem,
		Auth:         authenticator,
		Logger:       c.logger,
	}

	if v.GetBool("mcp.enabled") {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Memory: mem,
			Logger: c.logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		apiConfig.MCPHandler = mcpServer.Handler()
		c.logger.Info("serving MCP memory tools", "path", "/mcp")
	}

	server, err := api.NewServer(apiConfig)
	if err != nil {
		return nil, fmt.Errorf("creating API server: %w", err)
	}

	c.logger.Info("recall configured",
		"provider", v.GetString("completion.provider"),
		"model", v.GetString("completion.model"),
		"memory", v.GetString("memory.provider"),
		"eventstream", v.GetString("eventstream.provider"),
	)

	return server, nil
}

func (c *serveCommander) newAuthenticator() (*auth.Validator, error) {
	v := c.viper

	authConfig := auth.Config{
		SigningMethod: v.GetString("auth.signing_method"),
		Secret:        v.GetString("auth.secret"),
		Issuer:        v.GetString("auth.issuer"),
		Audience:      v.GetString("auth.audience"),
	}

	if path := v.GetString("auth.public_key_file"); path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading auth public key: %w", err)
		}
		authConfig.PublicKey = string(pem)
	}

	validator, err := auth.NewValidator(authConfig)
	if err != nil {
		return nil, fmt.Errorf("configuring auth (set auth.secret or RECALL_AUTH_SECRET): %w", err)
	}
	return validator, nil
}

func (c *serveCommander) newStore(ctx context.Context) (storage.Driver, error) {
	v := c.viper

	opts := &storageutils.NewDriverOpts{
		DriverType:    v.GetString("storage.driver"),
		PostgresDSN:   v.GetString("storage.postgres_dsn"),
		MongoURI:      v.GetString("storage.mongo_uri"),
		MongoDatabase: v.GetString("storage.mongo_database"),
	}

	if opts.DriverType == "sqlite" || opts.DriverType == "" {
		configDir, err := c.resolveConfigDir()
		if err != nil {
			return nil, err
		}
		opts.SQLitePath, err = sqlitepath.ResolveSQLitePath(v.GetString("storage.sqlite_path"), configDir)
		if err != nil {
			return nil, err
		}
		c.logger.Info("using SQLite storage", "path", opts.SQLitePath)
	} else {
		c.logger.Info("using storage driver", "driver", opts.DriverType)
	}

	store, err := storageutils.NewDriver(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating message store: %w", err)
	}
	return store, nil
}

func (c *serveCommander) newMemory(ctx context.Context) (*memory.Adapter, error) {
	v := c.viper

	opts := &memoryutils.NewMemoryDriverOpts{
		ProviderType:       v.GetString("memory.provider"),
		TargetURL:          v.GetString("memory.target"),
		APIKey:             v.GetString("memory.api_key"),
		VectorProvider:     v.GetString("vector_store.provider"),
		VectorTarget:       v.GetString("vector_store.target"),
		VectorAPIKey:       v.GetString("vector_store.api_key"),
		EmbeddingProvider:  v.GetString("embedding.provider"),
		EmbeddingTarget:    v.GetString("embedding.target"),
		EmbeddingModel:     v.GetString("embedding.model"),
		EmbeddingDimension: v.GetUint("embedding.dimensions"),
		Logger:             c.logger,
	}

	if opts.ProviderType == "vectorstore" && opts.VectorTarget == "" && strings.HasPrefix(opts.VectorProvider, "sqlite") {
		configDir, err := c.resolveConfigDir()
		if err != nil {
			return nil, err
		}
		opts.VectorTarget, err = sqlitepath.ResolveVectorPath("", configDir)
		if err != nil {
			return nil, err
		}
	}

	driver, err := memoryutils.NewMemoryDriver(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("creating memory driver: %w", err)
	}
	if driver == nil {
		c.logger.Warn("long-term memory disabled")
	}

	return memory.NewAdapter(memory.Config{
		Driver: driver,
		Logger: c.logger,
	}), nil
}

func (c *serveCommander) newPrompt() (prompt.Source, error) {
	path := c.viper.GetString("chat.system_prompt_file")
	if path == "" {
		return prompt.Static(""), nil
	}

	f, err := prompt.NewFile(path, c.logger)
	if err != nil {
		return nil, fmt.Errorf("loading system prompt: %w", err)
	}
	c.closers = append(c.closers, f.Close)
	return f, nil
}

func (c *serveCommander) resolveConfigDir() (string, error) {
	target, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return target, nil
}

func (c *serveCommander) close() {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	c.closers = nil

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("shutdown", "error", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
