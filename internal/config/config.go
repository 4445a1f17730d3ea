package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type ConfigOption struct {
	Key         string
	Flag        string
	Default     any
	Description string
}

const (
	KeyOperatorNamespace             = "operator.namespace"
	KeyOperatorResources             = "operator.resources"
	KeyOperatorOpsAddress            = "operator.ops.address"
	KeyOperatorLeaderElection        = "operator.leader_election.enabled"
	KeyOperatorLeaseName             = "operator.leader_election.lease_name"
	KeyOperatorAutoAttachFinalizers  = "operator.finalizers.auto_attach"
	KeyOperatorAutoDetachFinalizers  = "operator.finalizers.auto_detach"
	KeyOperatorCacheConfigMapEnabled = "operator.cache.configmap.enabled"
	KeyOperatorCacheConfigMapName    = "operator.cache.configmap.name"
	KeyOperatorCacheKeyPrefix        = "operator.cache.key_prefix"
	KeyOperatorDebugEnabled          = "operator.debug.enabled"
	KeyOperatorDebugKubeAPIURL       = "operator.debug.kube_api_url"
)

var OperatorOptions = []ConfigOption{
	{Key: KeyOperatorNamespace, Flag: flag(KeyOperatorNamespace), Default: "", Description: "Namespace to watch, empty for all namespaces"},
	{Key: KeyOperatorResources, Flag: flag(KeyOperatorResources), Default: []string{}, Description: "Resources to watch as group/version/resource"},
	{Key: KeyOperatorOpsAddress, Flag: flag(KeyOperatorOpsAddress), Default: ":8299", Description: "Ops endpoint (health, metrics) listen address"},
	{Key: KeyOperatorLeaderElection, Flag: flag(KeyOperatorLeaderElection), Default: false, Description: "Gate watchers behind Lease-based leader election"},
	{Key: KeyOperatorLeaseName, Flag: flag(KeyOperatorLeaseName), Default: "steward-operator-leader", Description: "Name of the leader election Lease"},
	{Key: KeyOperatorAutoAttachFinalizers, Flag: flag(KeyOperatorAutoAttachFinalizers), Default: false, Description: "Attach registered finalizers before reconciliation"},
	{Key: KeyOperatorAutoDetachFinalizers, Flag: flag(KeyOperatorAutoDetachFinalizers), Default: false, Description: "Detach finalizers after successful finalization"},
	{Key: KeyOperatorCacheConfigMapEnabled, Flag: flag(KeyOperatorCacheConfigMapEnabled), Default: false, Description: "Back the generation cache with a ConfigMap store"},
	{Key: KeyOperatorCacheConfigMapName, Flag: flag(KeyOperatorCacheConfigMapName), Default: "steward-generation-cache", Description: "Name of the generation cache ConfigMap"},
	{Key: KeyOperatorCacheKeyPrefix, Flag: flag(KeyOperatorCacheKeyPrefix), Default: "steward.", Description: "Key prefix for generation cache entries"},
	{Key: KeyOperatorDebugEnabled, Flag: flag(KeyOperatorDebugEnabled), Default: false, Description: "Operator debug enabled"},
	{Key: KeyOperatorDebugKubeAPIURL, Flag: flag(KeyOperatorDebugKubeAPIURL), Default: "", Description: "Operator debug kube api url"},
}

type Config struct {
	v *viper.Viper
}

func New() (*Config, error) {
	v := viper.New()

	// default values
	for _, o := range OperatorOptions {
		v.SetDefault(o.Key, o.Default)
	}

	// load config from file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/steward/")

	if err := v.ReadInConfig(); err != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !(errors.As(err, &notFoundErr) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// load config from environment variables
	v.SetEnvPrefix("STEWARD")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return &Config{v: v}, nil
}

func (c *Config) BindFlags(fs *pflag.FlagSet, options []ConfigOption) error {
	for _, o := range options {
		switch v := o.Default.(type) {
		case string:
			fs.String(o.Flag, v, o.Description)
		case int:
			fs.Int(o.Flag, v, o.Description)
		case bool:
			fs.Bool(o.Flag, v, o.Description)
		case []string:
			fs.StringSlice(o.Flag, v, o.Description)
		case time.Duration:
			fs.Duration(o.Flag, v, o.Description)
		default:
			return fmt.Errorf("unsupported flag type for key: %s", o.Key)
		}

		if err := c.v.BindPFlag(o.Key, fs.Lookup(o.Flag)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", o.Flag, err)
		}
	}

	return nil
}

func (c *Config) OperatorNamespace() string {
	return c.v.GetString(KeyOperatorNamespace) // STEWARD_OPERATOR_NAMESPACE
}

func (c *Config) OperatorResources() []string {
	return c.v.GetStringSlice(KeyOperatorResources) // STEWARD_OPERATOR_RESOURCES
}

func (c *Config) OperatorOpsAddress() string {
	return c.v.GetString(KeyOperatorOpsAddress) // STEWARD_OPERATOR_OPS_ADDRESS
}

func (c *Config) OperatorLeaderElection() bool {
	return c.v.GetBool(KeyOperatorLeaderElection) // STEWARD_OPERATOR_LEADER_ELECTION_ENABLED
}

func (c *Config) OperatorLeaseName() string {
	return c.v.GetString(KeyOperatorLeaseName) // STEWARD_OPERATOR_LEADER_ELECTION_LEASE_NAME
}

func (c *Config) OperatorAutoAttachFinalizers() bool {
	return c.v.GetBool(KeyOperatorAutoAttachFinalizers) // STEWARD_OPERATOR_FINALIZERS_AUTO_ATTACH
}

func (c *Config) OperatorAutoDetachFinalizers() bool {
	return c.v.GetBool(KeyOperatorAutoDetachFinalizers) // STEWARD_OPERATOR_FINALIZERS_AUTO_DETACH
}

func (c *Config) OperatorCacheConfigMapEnabled() bool {
	return c.v.GetBool(KeyOperatorCacheConfigMapEnabled) // STEWARD_OPERATOR_CACHE_CONFIGMAP_ENABLED
}

func (c *Config) OperatorCacheConfigMapName() string {
	return c.v.GetString(KeyOperatorCacheConfigMapName) // STEWARD_OPERATOR_CACHE_CONFIGMAP_NAME
}

func (c *Config) OperatorCacheKeyPrefix() string {
	return c.v.GetString(KeyOperatorCacheKeyPrefix) // STEWARD_OPERATOR_CACHE_KEY_PREFIX
}

func (c *Config) OperatorDebugEnabled() bool {
	return c.v.GetBool(KeyOperatorDebugEnabled) // STEWARD_OPERATOR_DEBUG_ENABLED
}

func (c *Config) OperatorDebugKubeAPIURL() string {
	return c.v.GetString(KeyOperatorDebugKubeAPIURL) // STEWARD_OPERATOR_DEBUG_KUBE_API_URL
}

func flag(key string) string {
	flag := strings.ToLower(key)
	flag = strings.ReplaceAll(flag, ".", "-")
	flag = strings.ReplaceAll(flag, "_", "-")
	flag = strings.TrimPrefix(flag, "operator-")
	return flag
}
