// Package config handles input from etc/main.toml.
package config

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides of single keys, e.g. DYNADDUSERS_WEBSERVER_PORT.
const EnvPrefix = "DYNADDUSERS"

// JSONEnv holds a JSON document merged over the file config.
const JSONEnv = EnvPrefix + "_CONFIG_JSON"

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "Dynamic Add Users")
	v.SetDefault("db.gormEngine", EngineSQLite)
	v.SetDefault("db.path", "dynaddusers.db")
	v.SetDefault("log.logLevel", "info")
	v.SetDefault("log.appName", "dynaddusers")
	v.SetDefault("log.serviceName", "dynamic-add-users")
	v.SetDefault("log.sqlLevel", "warn")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("webserver.port", 8080) //nolint:mnd
	v.SetDefault("webserver.shutDownTime", 5)
	v.SetDefault("directory.kind", DirectoryNull)
	v.SetDefault("login.mapper", LoginMapperLogin)
	v.SetDefault("sync.workers", 1)
	v.SetDefault("sync.leaseTTLSeconds", 600) //nolint:mnd
}

// ReadConfig reads path+"main.toml", applies DYNADDUSERS_* env overrides
// and the JSON document in DYNADDUSERS_CONFIG_JSON, then validates.
func ReadConfig(path string) (Config, error) {
	var c Config

	if path == "" {
		path = "./etc/"
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path + "main.toml")
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.Wrap(err, "failed to read main config file")
	}

	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode main config file")
	}

	if configAsJSON := os.Getenv(JSONEnv); configAsJSON != "" {
		var err error
		if c, err = decodeAndMergeConfig(c, configAsJSON); err != nil {
			return c, err
		}
	}

	return c, validate(&c)
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	if err := json.Unmarshal([]byte(configAsJSON), &c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode "+JSONEnv)
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer

	if err := toml.NewEncoder(&buffer).Encode(c); err != nil {
		return "", err //nolint:wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer

	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint:wrapcheck
	}

	return buffer.String(), nil
}

// validate checks the settings the daemon can not start without and fills
// in defaults that viper could not provide.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 && !c.Webserver.Disabled {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5
	}

	switch c.DB.GormEngine {
	case EngineMySQL, EnginePostgres, EngineSQLite:
	case "":
		c.DB.GormEngine = EngineSQLite
	default:
		return errors.Wrapf(ErrUnsupportedGormEngine, "%s: %q", invalidErrMessage, c.DB.GormEngine)
	}

	switch c.Directory.Kind {
	case "":
		return errors.Wrap(ErrDirectoryKindEmpty, invalidErrMessage)
	case DirectoryLDAP:
		if c.Directory.LDAP.Host == "" {
			return errors.Wrap(ErrLDAPHostEmpty, invalidErrMessage)
		}
	case DirectoryStatic:
		if c.Directory.Static.File == "" {
			return errors.Wrap(ErrStaticFileEmpty, invalidErrMessage)
		}
	}

	if c.Login.Mapper == LoginMapperOIDC && c.Login.OIDC.Issuer == "" {
		return errors.Wrap(ErrOIDCIssuerEmpty, invalidErrMessage)
	}

	if c.Sync.Workers < 0 || c.Sync.IntervalSeconds < 0 || c.Sync.LeaseTTLSeconds < 0 {
		return errors.Wrap(ErrNegativeSyncSetting, invalidErrMessage)
	}

	for i, r := range c.Sync.Registrations {
		if r.SiteID == 0 || r.GroupID == "" || r.Role == "" {
			return errors.Wrapf(ErrRegistrationIncomplete, "%s: sync registration %d", invalidErrMessage, i)
		}
	}

	if c.Sync.Workers == 0 {
		c.Sync.Workers = 1
	}

	if c.Sync.LeaseTTLSeconds == 0 {
		c.Sync.LeaseTTLSeconds = 600
	}

	return nil
}
