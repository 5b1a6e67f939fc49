package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/bookmd/api"
	"github.com/fyerfyer/bookmd/api/handler"
	"github.com/fyerfyer/bookmd/api/middleware"
	appconfig "github.com/fyerfyer/bookmd/config"
	"github.com/fyerfyer/bookmd/internal/cache"
	"github.com/fyerfyer/bookmd/internal/database"
	"github.com/fyerfyer/bookmd/internal/llm"
	"github.com/fyerfyer/bookmd/internal/repository"
	"github.com/fyerfyer/bookmd/internal/services"
	"github.com/fyerfyer/bookmd/pkg/storage"
	"github.com/fyerfyer/bookmd/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// 配置选项
type config struct {
	Port         int           // 服务端口
	Mode         string        // 运行模式 (debug/release)
	LogLevel     string        // 日志级别
	LogFile      string        // 日志文件路径，为空时只输出到标准输出
	ReadTimeout  time.Duration // 读取超时
	WriteTimeout time.Duration // 写入超时
	DataDir      string        // 数据目录路径
	ConfigFile   string        // 配置文件路径

	// 存储相关配置
	StorageType string // 存储类型 (local/minio)
	StoragePath string // 本地存储根路径

	// LLM相关配置
	LLMModel       string        // 模型名称
	LLMAPIKey      string        // API密钥
	LLMMaxTokens   int           // 最大生成token数量
	LLMTemperature float64       // 采样温度
	LLMTimeout     time.Duration // 单次模型调用超时

	// 流水线相关配置
	OutputBucket string // Markdown产物输出桶
	ChunkSize    int    // 每个分块包含的页数
	InputExt     string // 合法输入对象的扩展名

	// 缓存配置
	CacheEnabled  bool          // 是否启用转换结果缓存
	CacheType     string        // 缓存类型 (memory/redis)
	CacheTTL      time.Duration // 缓存条目存活时间
	CacheAddr     string        // 缓存Redis地址
	CachePassword string        // 缓存Redis密码
	CacheDB       int           // 缓存Redis数据库编号

	// 任务队列相关配置
	QueueEnabled     bool          // 是否启用任务队列
	RedisAddr        string        // Redis 地址
	RedisPassword    string        // Redis 密码
	RedisDB          int           // Redis 数据库编号
	QueueConcurrency int           // 任务队列处理并发数
	QueueRetryLimit  int           // 任务重试次数
	QueueRetryDelay  time.Duration // 任务重试延迟
}

func main() {
	// 加载.env文件（如果存在）
	_ = godotenv.Load()

	// 解析命令行参数
	cfg := parseFlags()

	// 加载配置文件(如果指定)
	var appConfig *appconfig.Config
	var err error
	if cfg.ConfigFile != "" {
		appConfig, err = appconfig.Load(cfg.ConfigFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file: %v, using command line args", err)
		} else {
			updateConfigFromFile(&cfg, appConfig)
		}
	}

	// 设置Gin模式
	gin.SetMode(cfg.Mode)

	// 初始化日志
	logger := setupLogger(cfg.LogLevel, cfg.LogFile)
	logger.Info("Starting bookmd pipeline service...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	// 创建对象存储服务
	objectStore, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}
	defer llmClient.Close()

	// 创建缓存服务
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.QueueEnabled {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 创建Markdown生成器
	generatorOpts := []llm.GeneratorOption{
		llm.WithGeneratorTimeout(cfg.LLMTimeout),
	}
	if cacheService != nil {
		generatorOpts = append(generatorOpts, llm.WithGeneratorCache(cacheService))
	} else {
		logger.Info("Transform result cache is disabled")
	}
	generator := llm.NewMarkdownGenerator(llmClient, generatorOpts...)

	// 初始化运行记录仓储
	repo := repository.NewRunRepository()

	// 初始化流水线服务
	pipeline := services.NewPipelineService(objectStore, generator,
		services.WithOutputBucket(cfg.OutputBucket),
		services.WithChunkSize(cfg.ChunkSize),
		services.WithInputExtension(cfg.InputExt),
		services.WithRunRepository(repo),
		services.WithPipelineLogger(logger),
	)

	// 启动队列Worker（如果启用）
	var worker *taskqueue.RedisWorker
	if queue != nil {
		worker = setupWorker(cfg, queue, pipeline, logger)
		go func() {
			if err := worker.Start(); err != nil {
				logger.Errorf("Task worker stopped with error: %v", err)
			}
		}()
		defer worker.Stop()
	}

	// 初始化API处理器
	eventHandler := handler.NewEventHandler(pipeline, queue)
	runHandler := handler.NewRunHandler(repo)

	// 设置路由
	r := api.SetupRouter(eventHandler, runHandler)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		logger.Infof("Server is running on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() config {
	cfg := config{}

	// 服务配置
	flag.IntVar(&cfg.Port, "port", 8080, "Server port")
	flag.StringVar(&cfg.Mode, "mode", "debug", "Run mode (debug/release)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path with rotation (empty for stdout only)")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", 30*time.Second, "Read timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", 30*time.Second, "Write timeout")

	// 存储配置
	flag.StringVar(&cfg.StorageType, "storage-type", "local", "Object storage type (local/minio)")
	flag.StringVar(&cfg.StoragePath, "storage", "./data/storage", "Local storage root path")

	// LLM配置
	flag.StringVar(&cfg.LLMModel, "llm-model", "gemini-1.5-pro", "LLM model name")
	flag.StringVar(&cfg.LLMAPIKey, "llm-key", "", "LLM API key")
	flag.IntVar(&cfg.LLMMaxTokens, "llm-max-tokens", 8192, "Max output tokens per model call")
	flag.Float64Var(&cfg.LLMTemperature, "llm-temperature", 0.2, "Sampling temperature")
	flag.DurationVar(&cfg.LLMTimeout, "llm-timeout", 2*time.Minute, "Timeout per model call")

	// 流水线配置
	flag.StringVar(&cfg.OutputBucket, "output-bucket", "bookmd-output", "Output bucket for markdown artifacts")
	flag.IntVar(&cfg.ChunkSize, "chunk-size", 10, "Pages per transformation chunk")
	flag.StringVar(&cfg.InputExt, "input-ext", ".json", "Input object name suffix filter")

	// 缓存配置
	flag.BoolVar(&cfg.CacheEnabled, "cache-enable", false, "Enable chunk transform result cache")
	flag.StringVar(&cfg.CacheType, "cache", "memory", "Cache type (memory/redis)")
	flag.DurationVar(&cfg.CacheTTL, "cache-ttl", 24*time.Hour, "Cache entry TTL")
	flag.StringVar(&cfg.CacheAddr, "cache-addr", "localhost:6379", "Redis address for the transform cache")
	flag.StringVar(&cfg.CachePassword, "cache-password", "", "Redis password for the transform cache")
	flag.IntVar(&cfg.CacheDB, "cache-db", 0, "Redis database number for the transform cache")

	// 数据目录配置
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "Data directory path")

	// 配置文件
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to config file")

	// 任务队列配置
	flag.BoolVar(&cfg.QueueEnabled, "queue", false, "Enable task queue")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Redis address for task queue")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.IntVar(&cfg.QueueConcurrency, "queue-concurrency", 4, "Task queue concurrency")
	flag.IntVar(&cfg.QueueRetryLimit, "queue-retry", 3, "Max retry attempts for failed tasks")
	flag.DurationVar(&cfg.QueueRetryDelay, "queue-retry-delay", time.Minute, "Delay between retry attempts")

	// 从环境变量获取密钥（优先级高于命令行参数）
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}

	flag.Parse()
	return cfg
}

// updateConfigFromFile 从配置文件更新命令行参数
func updateConfigFromFile(cfg *config, appConfig *appconfig.Config) {
	// 只更新未在命令行上明确设置的参数

	if flag.Lookup("storage-type").DefValue == cfg.StorageType {
		cfg.StorageType = appConfig.Storage.Type
	}
	if flag.Lookup("storage").DefValue == cfg.StoragePath {
		cfg.StoragePath = appConfig.Storage.Path
	}

	if flag.Lookup("llm-model").DefValue == cfg.LLMModel {
		cfg.LLMModel = appConfig.LLM.Model
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = appConfig.LLM.APIKey
	}
	if flag.Lookup("llm-max-tokens").DefValue == fmt.Sprint(cfg.LLMMaxTokens) {
		cfg.LLMMaxTokens = appConfig.LLM.MaxTokens
	}
	if flag.Lookup("llm-temperature").DefValue == fmt.Sprint(cfg.LLMTemperature) {
		cfg.LLMTemperature = float64(appConfig.LLM.Temperature)
	}
	if appConfig.LLM.Timeout > 0 {
		cfg.LLMTimeout = time.Duration(appConfig.LLM.Timeout) * time.Second
	}

	if flag.Lookup("output-bucket").DefValue == cfg.OutputBucket {
		cfg.OutputBucket = appConfig.Pipeline.OutputBucket
	}
	if flag.Lookup("chunk-size").DefValue == fmt.Sprint(cfg.ChunkSize) {
		cfg.ChunkSize = appConfig.Pipeline.ChunkSize
	}
	if flag.Lookup("input-ext").DefValue == cfg.InputExt && appConfig.Pipeline.InputExt != "" {
		cfg.InputExt = appConfig.Pipeline.InputExt
	}

	// 缓存配置
	if flag.Lookup("cache-enable").DefValue == fmt.Sprint(cfg.CacheEnabled) {
		cfg.CacheEnabled = appConfig.Cache.Enable
	}
	if flag.Lookup("cache").DefValue == cfg.CacheType {
		cfg.CacheType = appConfig.Cache.Type
	}
	if appConfig.Cache.TTL > 0 {
		cfg.CacheTTL = time.Duration(appConfig.Cache.TTL) * time.Second
	}
	if flag.Lookup("cache-addr").DefValue == cfg.CacheAddr && appConfig.Cache.Address != "" {
		cfg.CacheAddr = appConfig.Cache.Address
	}
	if cfg.CachePassword == "" {
		cfg.CachePassword = appConfig.Cache.Password
	}
	if flag.Lookup("cache-db").DefValue == fmt.Sprint(cfg.CacheDB) {
		cfg.CacheDB = appConfig.Cache.DB
	}

	// 任务队列配置
	if flag.Lookup("queue").DefValue == fmt.Sprint(cfg.QueueEnabled) {
		cfg.QueueEnabled = appConfig.Queue.Enable
	}
	if flag.Lookup("redis-addr").DefValue == cfg.RedisAddr {
		cfg.RedisAddr = appConfig.Queue.RedisAddr
	}
	if flag.Lookup("redis-password").DefValue == cfg.RedisPassword {
		cfg.RedisPassword = appConfig.Queue.RedisPassword
	}
	if flag.Lookup("redis-db").DefValue == fmt.Sprint(cfg.RedisDB) {
		cfg.RedisDB = appConfig.Queue.RedisDB
	}
	if flag.Lookup("queue-concurrency").DefValue == fmt.Sprint(cfg.QueueConcurrency) {
		cfg.QueueConcurrency = appConfig.Queue.Concurrency
	}
	if flag.Lookup("queue-retry").DefValue == fmt.Sprint(cfg.QueueRetryLimit) {
		cfg.QueueRetryLimit = appConfig.Queue.RetryLimit
	}
	if appConfig.Queue.RetryDelay > 0 {
		cfg.QueueRetryDelay = time.Duration(appConfig.Queue.RetryDelay) * time.Second
	}
}

// setupLogger 设置日志系统
func setupLogger(level string, logFile string) *logrus.Logger {
	logger := middleware.GetLogger()

	// 指定日志文件时同时输出到标准输出和轮转文件
	if logFile != "" {
		logger.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100, // 单文件最大100MB
			MaxBackups: 5,
			MaxAge:     30, // 保留30天
			Compress:   true,
		}))
	}

	// 设置日志级别
	switch level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	return logger
}

// setupStorage 设置对象存储服务
func setupStorage(cfg config) (storage.ObjectStore, error) {
	if cfg.StorageType == "minio" {
		return storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    os.Getenv("MINIO_USE_SSL") == "true",
		})
	}

	// 确保本地存储目录存在
	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	return storage.NewLocalStore(storage.LocalConfig{
		Path: cfg.StoragePath,
	})
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	return llm.NewClient("gemini",
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(cfg.LLMMaxTokens),
		llm.WithTemperature(float32(cfg.LLMTemperature)),
		llm.WithTimeout(cfg.LLMTimeout),
		llm.WithSystemInstruction(llm.MarkdownSystemInstruction),
	)
}

// setupCache 设置缓存服务
// 缓存未启用时返回nil，生成器将对每个分块直接调用模型
func setupCache(cfg config) (cache.Cache, error) {
	if !cfg.CacheEnabled {
		return nil, nil
	}

	cacheConfig := cache.Config{
		Type:            cfg.CacheType,
		DefaultTTL:      cfg.CacheTTL,
		CleanupInterval: 10 * time.Minute,
	}

	// 如果配置了Redis，添加Redis配置
	if cfg.CacheType == "redis" {
		cacheConfig.RedisAddr = cfg.CacheAddr
		cacheConfig.RedisPassword = cfg.CachePassword
		cacheConfig.RedisDB = cfg.CacheDB
	}

	return cache.NewCache(cacheConfig)
}

// setupDatabase 设置数据库
func setupDatabase(cfg config, logger *logrus.Logger) error {
	dbPath := filepath.Join(cfg.DataDir, "bookmd.db")

	// 确保数据目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	// 初始化数据库
	dbConfig := &database.Config{
		Type: "sqlite",
		DSN:  dbPath,
	}

	return database.Setup(dbConfig, logger)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg config, logger *logrus.Logger) (taskqueue.Queue, error) {
	queueConfig := &taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.QueueConcurrency,
		RetryLimit:    cfg.QueueRetryLimit,
		RetryDelay:    cfg.QueueRetryDelay,
	}

	logger.WithFields(logrus.Fields{
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.QueueConcurrency,
		"retry_limit": cfg.QueueRetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewRedisQueue(queueConfig)
}

// setupWorker 设置任务队列Worker并注册处理器
func setupWorker(cfg config, queue taskqueue.Queue, pipeline *services.PipelineService, logger *logrus.Logger) *taskqueue.RedisWorker {
	workerConfig := &taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.QueueConcurrency,
		RetryLimit:    cfg.QueueRetryLimit,
		RetryDelay:    cfg.QueueRetryDelay,
	}

	worker := taskqueue.NewRedisWorker(workerConfig, queue, logger)
	handler := taskqueue.NewMarkdownTaskHandler(pipeline, queue, logger)
	worker.RegisterHandler(taskqueue.TaskGenerateMarkdown, handler)

	return worker
}
