package fiber_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	adapter "github.com/middlebury/dynamic-add-users/internal/logger/adapter/fiber"

	"github.com/middlebury/dynamic-add-users/internal/logger"
)

type expectedLoggerJSONFormat struct {
	Status     int    `json:"status"`
	URI        string `json:"URI"`
	Method     string `json:"method"`
	Host       string `json:"host"`
	ActingUser string `json:"acting_user"`
}

func TestNew(t *testing.T) {
	consoleJSON := logger.Log{
		EnableAccessLogToConsole: true,
		DisableCheckAlive:        true,
		Console:                  logger.Console{Enabled: true},
	}

	tests := []struct {
		name       string
		config     adapter.Config
		targetPath string
		want       *expectedLoggerJSONFormat
	}{
		{
			name:       "console disabled no output",
			targetPath: "/",
			config:     adapter.Config{},
		},
		{
			name:       "root path logged as json",
			targetPath: "/",
			config:     adapter.Config{Config: consoleJSON},
			want: &expectedLoggerJSONFormat{
				Status:     fiber.StatusOK,
				URI:        "/",
				Method:     fiber.MethodGet,
				Host:       "example.com",
				ActingUser: "7",
			},
		},
		{
			name:       "query string kept",
			targetPath: "/?search=jdoe",
			config:     adapter.Config{Config: consoleJSON},
			want: &expectedLoggerJSONFormat{
				Status:     fiber.StatusOK,
				URI:        "/?search=jdoe",
				Method:     fiber.MethodGet,
				Host:       "example.com",
				ActingUser: "7",
			},
		},
		{
			name:       "unknown route logs handler status",
			targetPath: "/missing",
			config:     adapter.Config{Config: consoleJSON},
			want: &expectedLoggerJSONFormat{
				Status:     fiber.StatusNotFound,
				URI:        "/missing",
				Method:     fiber.MethodGet,
				Host:       "example.com",
				ActingUser: "7",
			},
		},
		{
			name:       "checkalive not logged",
			targetPath: "/checkalive",
			config:     adapter.Config{Config: consoleJSON, CheckAliveURI: "/checkalive"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := testMiddlewareHelper(t, tt.targetPath, tt.config)

			if tt.want == nil {
				assert.Empty(t, output)
				return
			}

			require.NotEmpty(t, output)

			var decoded expectedLoggerJSONFormat
			require.NoError(t, json.Unmarshal([]byte(output), &decoded))
			assert.Equal(t, *tt.want, decoded)
		})
	}
}

func testMiddlewareHelper(t *testing.T, targetPath string, adapterConfig adapter.Config) string {
	t.Helper()

	stdout := os.Stdout
	stderr := os.Stderr

	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	os.Stderr = w

	// the middleware picks its writers at construction time
	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		Immutable:     true,
	})
	app.Use(adapter.New(adapterConfig))
	app.Get("/", func(ctx fiber.Ctx) error {
		return ctx.SendString("hello test")
	})
	app.Get("/checkalive", func(ctx fiber.Ctx) error {
		return ctx.SendString("OK")
	})

	req := httptest.NewRequest(fiber.MethodGet, targetPath, nil)
	req.Header.Set("X-Acting-User", "7")

	_, testErr := app.Test(req)

	outC := make(chan string)

	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		outC <- buf.String()
	}()

	_ = w.Close()
	os.Stdout = stdout
	os.Stderr = stderr
	out := <-outC

	require.NoError(t, testErr)

	return out
}
