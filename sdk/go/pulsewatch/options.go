package pulsewatch

import "go.uber.org/zap"

// Option configures a Client at creation time.
type Option func(*clientConfig)

type clientConfig struct {
	configPath  string
	baseURL     string
	environment string
	version     string
	sessionID   string
	cache       Cache
	validator   Validator
	logger      *zap.Logger
}

// WithConfigFile sets the path to a YAML configuration file. A missing
// file falls back to built-in defaults.
func WithConfigFile(path string) Option {
	return func(c *clientConfig) { c.configPath = path }
}

// WithEndpoint sets the base URL prepended to the reporting endpoint
// paths.
func WithEndpoint(baseURL string) Option {
	return func(c *clientConfig) { c.baseURL = baseURL }
}

// WithEnvironment overrides the environment label attached to every
// delivered batch.
func WithEnvironment(env string) Option {
	return func(c *clientConfig) { c.environment = env }
}

// WithVersion overrides the application version label.
func WithVersion(v string) Option {
	return func(c *clientConfig) { c.version = v }
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(c *clientConfig) { c.sessionID = id }
}

// WithCache injects the host cache for instrumentation and corrective
// optimization.
func WithCache(cache Cache) Option {
	return func(c *clientConfig) { c.cache = cache }
}

// WithValidator injects the accessibility checker.
func WithValidator(v Validator) Option {
	return func(c *clientConfig) { c.validator = v }
}

// WithLogger sets the local log sink.
func WithLogger(log *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = log }
}
