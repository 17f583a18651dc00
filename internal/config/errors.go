package config

import (
	"errors"
)

var (
	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("toml config webserver.port listening port can not be 0")

	// ErrUnsupportedGormEngine error if db.gormEngine is not mysql, postgres or sqlite.
	ErrUnsupportedGormEngine = errors.New("toml config db.gormEngine must be mysql, postgres or sqlite")

	// ErrDirectoryKindEmpty error if directory.kind is missing.
	ErrDirectoryKindEmpty = errors.New("toml config directory.kind can not be empty")

	// ErrLDAPHostEmpty error if the ldap directory has no host.
	ErrLDAPHostEmpty = errors.New("toml config directory.ldap.host can not be empty")

	// ErrStaticFileEmpty error if the static directory has no file.
	ErrStaticFileEmpty = errors.New("toml config directory.static.file can not be empty")

	// ErrNegativeSyncSetting error if a sync setting is below zero.
	ErrNegativeSyncSetting = errors.New("toml config sync values can not be negative")

	// ErrOIDCIssuerEmpty error if the oidc login mapper has no issuer.
	ErrOIDCIssuerEmpty = errors.New("toml config login.oidc.issuer can not be empty")

	// ErrRegistrationIncomplete error if a sync registration misses site, group or role.
	ErrRegistrationIncomplete = errors.New("toml config sync.registrations need siteID, groupID and role")
)
