package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func projectConfigPath(t *testing.T) string {
	t.Helper()

	projectRoot, err := filepath.Abs("../../")
	require.NoError(t, err)

	return filepath.Join(projectRoot, "etc") + string(filepath.Separator)
}

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(projectConfigPath(t))
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Title)
	assert.Equal(t, 8080, cfg.Webserver.Port)
	assert.Equal(t, EngineSQLite, cfg.DB.GormEngine)
	assert.Equal(t, DirectoryStatic, cfg.Directory.Kind)
	assert.Equal(t, "./etc/directory.yaml", cfg.Directory.Static.File)
	assert.Equal(t, "(uid={username})", cfg.Directory.LDAP.UserFilter)
	assert.Equal(t, 2, cfg.Sync.Workers)
	assert.Equal(t, 600, cfg.Sync.LeaseTTLSeconds)
	assert.Equal(t, []string{"subscriber", "contributor", "author", "editor", "administrator"}, cfg.Sync.Roles)
	assert.Equal(t, "access.log", cfg.Log.File.AccessLog)
	assert.True(t, cfg.Log.Console.Enabled)
}

func TestReadConfigDefaults(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)
	require.NoError(t, os.WriteFile(dir+"main.toml", []byte("Title = \"minimal\"\n"), 0o600))

	cfg, err := ReadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "minimal", cfg.Title)
	assert.Equal(t, 8080, cfg.Webserver.Port)
	assert.Equal(t, DirectoryNull, cfg.Directory.Kind)
	assert.Equal(t, LoginMapperLogin, cfg.Login.Mapper)
	assert.Equal(t, 1, cfg.Sync.Workers)
	assert.Equal(t, "dynaddusers", cfg.Log.AppName)
}

func TestReadConfigMissingFile(t *testing.T) {
	_, err := ReadConfig(t.TempDir() + string(filepath.Separator))
	require.Error(t, err)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{
			name: "valid config",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryNull},
			},
		},
		{
			name: "missing port",
			config: Config{
				Directory: Directory{Kind: DirectoryNull},
			},
			wantErr: ErrWebServerPortCanNotBeZero,
		},
		{
			name: "port not needed when webserver disabled",
			config: Config{
				Webserver: Webserver{Disabled: true},
				Directory: Directory{Kind: DirectoryNull},
			},
		},
		{
			name: "unknown engine",
			config: Config{
				Webserver: Webserver{Port: 8080},
				DB:        DB{GormEngine: "oracle"},
				Directory: Directory{Kind: DirectoryNull},
			},
			wantErr: ErrUnsupportedGormEngine,
		},
		{
			name: "missing directory kind",
			config: Config{
				Webserver: Webserver{Port: 8080},
			},
			wantErr: ErrDirectoryKindEmpty,
		},
		{
			name: "ldap without host",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryLDAP},
			},
			wantErr: ErrLDAPHostEmpty,
		},
		{
			name: "static without file",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryStatic},
			},
			wantErr: ErrStaticFileEmpty,
		},
		{
			name: "oidc mapper without issuer",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryNull},
				Login:     Login{Mapper: LoginMapperOIDC},
			},
			wantErr: ErrOIDCIssuerEmpty,
		},
		{
			name: "negative workers",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryNull},
				Sync:      Sync{Workers: -1},
			},
			wantErr: ErrNegativeSyncSetting,
		},
		{
			name: "registration without role",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryNull},
				Sync:      Sync{Registrations: []Registration{{SiteID: 1, GroupID: "faculty"}}},
			},
			wantErr: ErrRegistrationIncomplete,
		},
		{
			name: "complete registration",
			config: Config{
				Webserver: Webserver{Port: 8080},
				Directory: Directory{Kind: DirectoryNull},
				Sync:      Sync{Registrations: []Registration{{SiteID: 1, GroupID: "faculty", Role: "editor"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.config)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, 1, tt.config.Sync.Workers)
				assert.Equal(t, EngineSQLite, tt.config.DB.GormEngine)

				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadConfigWithJSONOverride(t *testing.T) {
	t.Setenv(JSONEnv, `{"Title":"Test Override","Webserver":{"Port":9090}}`)

	cfg, err := ReadConfig(projectConfigPath(t))
	require.NoError(t, err)

	assert.Equal(t, "Test Override", cfg.Title)
	assert.Equal(t, 9090, cfg.Webserver.Port)
	assert.Equal(t, 5, cfg.Webserver.ShutDownTime)
}

func TestReadConfigWithEnvOverride(t *testing.T) {
	t.Setenv("DYNADDUSERS_WEBSERVER_PORT", "9191")

	cfg, err := ReadConfig(projectConfigPath(t))
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Webserver.Port)
}

func TestReadConfigWithBrokenJSON(t *testing.T) {
	t.Setenv(JSONEnv, `{"Title":`)

	_, err := ReadConfig(projectConfigPath(t))
	require.Error(t, err)
}

func TestDumpConfig(t *testing.T) {
	cfg := Config{
		Title:     "Test",
		DevMode:   true,
		Webserver: Webserver{Port: 8080},
		Sync:      Sync{Roles: []string{"viewer", "owner"}},
	}

	tomlStr, err := DumpConfig(&cfg)
	require.NoError(t, err)
	assert.Contains(t, tomlStr, "Test")
	assert.Contains(t, tomlStr, "owner")

	jsonStr, err := DumpConfigJSON(&cfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(jsonStr, `"Title": "Test"`))
}
