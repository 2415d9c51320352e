package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SDM"

type Config struct {
	Port        int    `mapstructure:"port"`
	Host        string `mapstructure:"host"`
	Environment string `mapstructure:"environment"`

	DB        *DBConfig        `mapstructure:"db"`
	S3        *S3Config        `mapstructure:"s3"`
	Pulsar    *PulsarConfig    `mapstructure:"pulsar"`
	SageMaker *SageMakerConfig `mapstructure:"sagemaker"`
	Workflows *WorkflowConfig  `mapstructure:"workflows"`
	Topics    *TopicConfig     `mapstructure:"topics"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type S3Config struct {
	Region      string `mapstructure:"region_name"`
	Bucket      string `mapstructure:"bucket_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

type PulsarConfig struct {
	URL string `mapstructure:"url"`
}

type SageMakerConfig struct {
	// Default async inference endpoint used when the caller does not pick one.
	EndpointName      string `mapstructure:"endpoint_name"`
	TrainImageUri     string `mapstructure:"train_image_uri"`
	TrainRoleArn      string `mapstructure:"train_role_arn"`
	TrainInstanceType string `mapstructure:"train_instance_type"`
	TrainVolumeSizeGB int    `mapstructure:"train_volume_size_gb"`
}

type WorkflowConfig struct {
	TrainingStateMachineArn string `mapstructure:"training_state_machine_arn"`
	EndpointStateMachineArn string `mapstructure:"endpoint_state_machine_arn"`
}

// TopicConfig names the notification topics the lifecycle manager publishes
// to and the completion topics it consumes callbacks from.
type TopicConfig struct {
	ModelSuccess string `mapstructure:"model_success"`
	ModelError   string `mapstructure:"model_error"`
	User         string `mapstructure:"user"`
}

var config *Config

func LoadEnvAndConfigFiles() error {
	envFile := viper.GetString("env_file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("failed to load env file: %w", err)
			}
		}
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`, `-`, `_`))
	viper.AutomaticEnv()

	configFile := viper.GetString("config_file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	return LoadConfig(true)
}

func LoadConfig(reload bool) error {
	if config != nil && !reload {
		return fmt.Errorf("config already loaded")
	}

	config = &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshalling config: %w", err)
	}

	applyDefaults(config)
	return nil
}

func GetConfig() *Config {
	return config
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

func applyDefaults(cfg *Config) {
	if cfg.DB == nil {
		cfg.DB = &DBConfig{Driver: "sqlite", DSN: "file:./data/main.db"}
	}
	if cfg.Topics == nil {
		cfg.Topics = &TopicConfig{}
	}
	if cfg.Topics.ModelSuccess == "" {
		cfg.Topics.ModelSuccess = "jobs/model/success"
	}
	if cfg.Topics.ModelError == "" {
		cfg.Topics.ModelError = "jobs/model/error"
	}
	if cfg.Topics.User == "" {
		cfg.Topics.User = "jobs/user"
	}
	if cfg.SageMaker == nil {
		cfg.SageMaker = &SageMakerConfig{}
	}
	if cfg.SageMaker.TrainInstanceType == "" {
		cfg.SageMaker.TrainInstanceType = "ml.g4dn.2xlarge"
	}
	if cfg.SageMaker.TrainVolumeSizeGB == 0 {
		cfg.SageMaker.TrainVolumeSizeGB = 125
	}
}
