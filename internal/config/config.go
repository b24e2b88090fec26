// Package config 负责加载和管理应用程序的配置。
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"jizhuanti-go/internal/model"
)

// 全局配置变量，存储从配置文件加载的所有设置。
var Conf Config

// 全局章节配置，启动时从 chapters.yaml 加载一次，运行期只读。
var Chapters map[string]model.ChapterConfig

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Interview     InterviewConfig     `mapstructure:"interview"`
	Biography     BiographyConfig     `mapstructure:"biography"`
}

// ServerConfig 存储服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret                 string `mapstructure:"secret"`
	AccessTokenExpireHours int    `mapstructure:"access_token_expire_hours"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// MinIOConfig 存储 MinIO 对象存储的配置。
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// LLMConfig 存储大语言模型相关的配置。
type LLMConfig struct {
	APIKey     string              `mapstructure:"api_key"`
	BaseURL    string              `mapstructure:"base_url"`
	Model      string              `mapstructure:"model"`
	Generation LLMGenerationConfig `mapstructure:"generation"`
}

// LLMGenerationConfig 配置生成相关参数（可选）。
type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// InterviewConfig 存储访谈编排相关的配置。
type InterviewConfig struct {
	SimilarityThreshold      float64 `mapstructure:"similarity_threshold"`       // 问题查重的 Jaccard 阈值
	MinQuestionLength        int     `mapstructure:"min_question_length"`        // 生成问题的最小字符数
	MaxRetries               int     `mapstructure:"max_retries"`                // 主调用失败后的最大重试次数
	QuestionTimeoutSeconds   int     `mapstructure:"question_timeout_seconds"`   // 面向用户的问题生成超时
	ExtractionTimeoutSeconds int     `mapstructure:"extraction_timeout_seconds"` // 后台摘要提取超时
	RecentAnswerWindow       int     `mapstructure:"recent_answer_window"`       // 关键词匹配的最近回答条数
	MaxSummaryItems          int     `mapstructure:"max_summary_items"`          // 摘要各字段的最大条数
	WelcomeBack              bool    `mapstructure:"welcome_back"`               // 新会话是否合成"欢迎回来"开场
}

// BiographyConfig 存储传记合成相关的配置。
type BiographyConfig struct {
	TimeoutSeconds int               `mapstructure:"timeout_seconds"`
	Styles         map[string]string `mapstructure:"styles"` // 文风标识 -> 文风描述
	DefaultTitle   string            `mapstructure:"default_title"`
}

// chaptersFile 与 chapters.yaml 的顶层结构对应。
type chaptersFile struct {
	Chapters []model.ChapterConfig `mapstructure:"chapters"`
}

// Init 初始化配置加载，从指定的路径读取 YAML 文件并解析到 Conf 变量中。
func Init(configPath string) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取配置文件失败: %w", err))
	}

	if err := viper.Unmarshal(&Conf); err != nil {
		panic(fmt.Errorf("无法将配置解析到结构体中: %w", err))
	}

	applyDefaults()
}

// InitChapters 从独立的 chapters.yaml 加载章节主题与备用问题库。
// 章节配置是数据而非代码：加载一次，运行期不再修改。
func InitChapters(chaptersPath string) {
	v := viper.New()
	v.SetConfigFile(chaptersPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		panic(fmt.Errorf("读取章节配置失败: %w", err))
	}

	var file chaptersFile
	if err := v.Unmarshal(&file); err != nil {
		panic(fmt.Errorf("无法解析章节配置: %w", err))
	}
	if len(file.Chapters) == 0 {
		panic(fmt.Errorf("章节配置为空: %s", chaptersPath))
	}

	Chapters = make(map[string]model.ChapterConfig, len(file.Chapters))
	for _, ch := range file.Chapters {
		if ch.Name == "" || len(ch.FallbackQuestions) == 0 {
			panic(fmt.Errorf("章节 '%s' 配置不完整：缺少名称或备用问题库", ch.Name))
		}
		Chapters[ch.Name] = ch
	}
}

// applyDefaults 为未在 config.yaml 中出现的编排参数填入默认值。
func applyDefaults() {
	if Conf.Interview.SimilarityThreshold == 0 {
		Conf.Interview.SimilarityThreshold = 0.6
	}
	if Conf.Interview.MinQuestionLength == 0 {
		Conf.Interview.MinQuestionLength = 20
	}
	if Conf.Interview.MaxRetries == 0 {
		Conf.Interview.MaxRetries = 2
	}
	if Conf.Interview.QuestionTimeoutSeconds == 0 {
		Conf.Interview.QuestionTimeoutSeconds = 20
	}
	if Conf.Interview.ExtractionTimeoutSeconds == 0 {
		Conf.Interview.ExtractionTimeoutSeconds = 10
	}
	if Conf.Interview.RecentAnswerWindow == 0 {
		Conf.Interview.RecentAnswerWindow = 5
	}
	if Conf.Interview.MaxSummaryItems == 0 {
		Conf.Interview.MaxSummaryItems = 10
	}
	if Conf.Biography.TimeoutSeconds == 0 {
		Conf.Biography.TimeoutSeconds = 60
	}
	if Conf.Biography.DefaultTitle == "" {
		Conf.Biography.DefaultTitle = "我的人生故事"
	}
}
