// Package session provides AWS session management and DynamoDB client
// configuration.
package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// configLoadFunc is a variable to allow mocking config.LoadDefaultConfig in tests
var configLoadFunc = config.LoadDefaultConfig

// Config holds the connection settings for one store client.
type Config struct {
	CredentialsProvider aws.CredentialsProvider
	Region              string
	// Endpoint overrides the service endpoint, typically to point at a
	// local emulator.
	Endpoint         string
	AWSConfigOptions []func(*config.LoadOptions) error
	DynamoDBOptions  []func(*dynamodb.Options)
	MaxRetries       int
	HTTPTimeout      time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Region:      "us-east-1",
		MaxRetries:  3,
		HTTPTimeout: 30 * time.Second,
	}
}

// LocalConfig returns a configuration pointed at a local emulator with
// static throwaway credentials.
func LocalConfig(endpoint string) *Config {
	cfg := DefaultConfig()
	cfg.Endpoint = endpoint
	cfg.CredentialsProvider = credentials.NewStaticCredentialsProvider("local", "local", "")
	return cfg
}

// Session manages the AWS configuration and DynamoDB client.
type Session struct {
	config    *Config
	client    *dynamodb.Client
	awsConfig aws.Config
}

// NewSession creates a new session with the given configuration.
func NewSession(ctx context.Context, cfg *Config) (*Session, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	options := make([]func(*config.LoadOptions) error, 0, len(cfg.AWSConfigOptions)+4)
	if cfg.Region != "" {
		options = append(options, config.WithRegion(cfg.Region))
	}
	if cfg.CredentialsProvider != nil {
		options = append(options, config.WithCredentialsProvider(cfg.CredentialsProvider))
	}

	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	options = append(options, config.WithRetryMode(aws.RetryModeStandard))
	options = append(options, config.WithRetryMaxAttempts(maxAttempts))

	httpTimeout := cfg.HTTPTimeout
	if httpTimeout <= 0 {
		httpTimeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: httpTimeout}
	options = append(options, config.WithHTTPClient(httpClient))

	options = append(options, cfg.AWSConfigOptions...)

	awsConfig, err := configLoadFunc(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if awsConfig.Retryer == nil {
		awsConfig.Retryer = func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = maxAttempts
			})
		}
	}

	clientOptions := make([]func(*dynamodb.Options), 0, 1+len(cfg.DynamoDBOptions))
	clientOptions = append(clientOptions, func(o *dynamodb.Options) {
		o.Region = awsConfig.Region
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if o.Retryer == nil {
			o.Retryer = awsConfig.Retryer()
		}
		if o.HTTPClient == nil {
			o.HTTPClient = httpClient
		}
	})
	clientOptions = append(clientOptions, cfg.DynamoDBOptions...)

	client := dynamodb.NewFromConfig(awsConfig, clientOptions...)

	return &Session{
		config:    cfg,
		awsConfig: awsConfig,
		client:    client,
	}, nil
}

// Client returns the DynamoDB client.
func (s *Session) Client() (*dynamodb.Client, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("session has no DynamoDB client")
	}
	return s.client, nil
}

// Config returns the session configuration.
func (s *Session) Config() *Config {
	return s.config
}

// AWSConfig returns the resolved AWS configuration.
func (s *Session) AWSConfig() aws.Config {
	return s.awsConfig
}
