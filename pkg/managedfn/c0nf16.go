package managedfn

import (
	"errors"
	"io"

	"github.com/ccamel/managedfn/internal/util"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	// ConfigFolder is the folder scanned (recursively) for the configuration file.
	ConfigFolder = "/configs"
	// ConfigFileName is the name of the optional configuration file.
	ConfigFileName = "function-spec.yml"
)

// Environment variables overriding the configuration.
const (
	EnvKeyVaultURL       = "KEY_VAULT_URL"
	EnvStorageAccountURL = "STORAGE_ACCOUNT_URL"
	EnvEnvironment       = "AZURE_FUNCTIONS_ENVIRONMENT"
	EnvFunctionAppName   = "WEBSITE_SITE_NAME"
)

// Config specifies the settings of the function, resolved once per invocation.
type Config struct {
	// KeyVaultURL is the endpoint of the secret vault.
	KeyVaultURL string `yaml:"keyVaultUrl" validate:"required,url"`
	// StorageAccountURL is the endpoint of the blob storage account.
	StorageAccountURL string `yaml:"storageAccountUrl" validate:"required,url,scheme=https"`
	// Environment is the name of the deployment environment, echoed in the response.
	Environment string `yaml:"environment"`
	// FunctionAppName identifies the site hosting the function, echoed in the response.
	FunctionAppName string `yaml:"functionAppName"`
	// SecretName is the name of the secret fetched from the vault.
	SecretName string `yaml:"secretName" validate:"required"`
	// Message is the template of the message returned, rendered with the configuration as `.config`.
	Message string `yaml:"message"`
	// Timeout specifies a time limit (in ms) for each call made to a dependency. 0 means no limit.
	Timeout int64 `yaml:"timeout" validate:"gte=0"`
}

// ConfigFactory denotes functions able to return the default configuration.
type ConfigFactory func() Config

// DefaultConfig returns the configuration used when nothing is provided, pointing to placeholder resources.
func DefaultConfig() Config {
	return Config{
		KeyVaultURL:       "https://your-keyvault.vault.azure.net/",
		StorageAccountURL: "https://yourstorageaccount.blob.core.windows.net",
		Environment:       "unknown",
		FunctionAppName:   "local-development",
		SecretName:        "sample-secret",
		Message:           "Hello from Azure Function with Managed Identity!",
	}
}

// LookupEnvFunc retrieves the value of an environment variable, telling whether it is set (see os.LookupEnv).
type LookupEnvFunc func(key string) (string, bool)

func (c Config) MarshalZerologObject(e *zerolog.Event) {
	e.
		Str("keyVaultUrl", c.KeyVaultURL).
		Str("storageAccountUrl", c.StorageAccountURL).
		Str("environment", c.Environment).
		Str("functionAppName", c.FunctionAppName).
		Str("secretName", c.SecretName).
		Int64("timeout", c.Timeout)
}

// envBindings maps the overridable fields to their environment variable.
func (c *Config) envBindings() []struct {
	key   string
	field *string
} {
	return []struct {
		key   string
		field *string
	}{
		{EnvKeyVaultURL, &c.KeyVaultURL},
		{EnvStorageAccountURL, &c.StorageAccountURL},
		{EnvEnvironment, &c.Environment},
		{EnvFunctionAppName, &c.FunctionAppName},
	}
}

// ResolveConfig builds the configuration: the defaults given by the factory, overridden by the configuration file
// (if any) found under root, overridden by the environment. The result is validated.
func ResolveConfig(
	fs afero.Fs,
	root string,
	configFactory ConfigFactory,
	lookupEnv LookupEnvFunc,
	validate *validator.Validate,
) (Config, error) {
	c := configFactory()

	in, err := util.OpenResource(fs, root, ConfigFileName)
	if err != nil {
		return c, err
	}

	if in != nil {
		defer func() {
			_ = in.Close()
		}()

		if err := yaml.NewDecoder(in).Decode(&c); err != nil && !errors.Is(err, io.EOF) {
			return c, err
		}
	}

	if lookupEnv != nil {
		for _, binding := range c.envBindings() {
			if v, ok := lookupEnv(binding.key); ok {
				*binding.field = v
			}
		}
	}

	if err := validate.Struct(c); err != nil {
		return c, err
	}

	return c, nil
}
