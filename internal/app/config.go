package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/dump"
	"github.com/stupside/streamsniff/internal/manifest"
)

// DefaultPath is the config file read when none is given explicitly.
const DefaultPath = "config.yaml"

// Config holds all application configuration.
type Config struct {
	Browser BrowserConfig `koanf:"browser" validate:"required"`
	Capture CaptureConfig `koanf:"capture" validate:"required"`
	Actions ActionConfig  `koanf:"actions" validate:"required"`
	Verify  VerifyConfig  `koanf:"verify" validate:"required"`
	Output  OutputConfig  `koanf:"output" validate:"required"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	ChromePath        string        `koanf:"chrome_path"`
	Headless          bool          `koanf:"headless"`
	NoSandbox         bool          `koanf:"no_sandbox"`
	UserAgent         string        `koanf:"user_agent"`
	NavigationTimeout time.Duration `koanf:"navigation_timeout" validate:"required,gt=0"`
	WindowWidth       int           `koanf:"window_width" validate:"gt=0"`
	WindowHeight      int           `koanf:"window_height" validate:"gt=0"`
}

// CaptureConfig holds what to capture and for how long.
type CaptureConfig struct {
	TargetURL      string        `koanf:"target_url" validate:"omitempty,url"`
	Marker         string        `koanf:"marker" validate:"required"`
	UnwrapParam    string        `koanf:"unwrap_param" validate:"required"`
	BlockList      []string      `koanf:"block_list"`
	AdBlockList    []string      `koanf:"ad_block_list"`
	MaxWait        time.Duration `koanf:"max_wait" validate:"required,gt=0"`
	IdleWindow     time.Duration `koanf:"idle_window" validate:"gte=0"`
	StopOnVerified bool          `koanf:"stop_on_verified"`
	BodySizeCap    int           `koanf:"body_size_cap" validate:"gt=0"`
}

// ActionConfig holds timeouts and selectors for page interactions.
type ActionConfig struct {
	ConsentSelectors []string      `koanf:"consent_selectors"`
	PlaySelectors    []string      `koanf:"play_selectors"`
	SelectorTimeout  time.Duration `koanf:"selector_timeout" validate:"required,gt=0"`
	IframeTimeout    time.Duration `koanf:"iframe_timeout" validate:"required,gt=0"`
	IframeMaxDepth   int           `koanf:"iframe_max_depth" validate:"gte=0"`
	SettleAfterClick time.Duration `koanf:"settle_after_click" validate:"gte=0"`
}

// VerifyConfig holds manifest verification settings.
type VerifyConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Timeout       time.Duration `koanf:"timeout" validate:"required,gt=0"`
	UserAgent     string        `koanf:"user_agent" validate:"required"`
	Signature     string        `koanf:"signature" validate:"required"`
	PeekBytes     int           `koanf:"peek_bytes" validate:"gt=0"`
	Inspect       bool          `koanf:"inspect"`
	RatePerSecond float64       `koanf:"rate_per_second" validate:"gte=0"`
	Burst         int           `koanf:"burst" validate:"gte=0"`
	Concurrency   int           `koanf:"concurrency" validate:"gte=1"`
}

// OutputConfig holds dump file locations.
type OutputConfig struct {
	RequestPath  string `koanf:"request_path" validate:"required"`
	ResponsePath string `koanf:"response_path" validate:"required"`
}

func defaults() map[string]any {
	return map[string]any{
		"browser.headless":           true,
		"browser.no_sandbox":         false,
		"browser.navigation_timeout": "60s",
		"browser.window_width":       1920,
		"browser.window_height":      1080,

		"capture.marker":        manifest.DefaultMarker,
		"capture.unwrap_param":  manifest.DefaultUnwrapParam,
		"capture.block_list":    manifest.DefaultBlockList,
		"capture.ad_block_list": manifest.DefaultAdBlockList,
		"capture.max_wait":      "20s",
		"capture.idle_window":   "5s",
		"capture.body_size_cap": dump.DefaultBodySizeCap,

		"actions.consent_selectors": []string{
			"#onetrust-accept-btn-handler",
			"button[aria-label*='Accept']",
			"button[class*='consent']",
		},
		"actions.play_selectors": []string{
			".vjs-big-play-button",
			".jw-icon-display",
			".plyr__control--overlaid",
			"button[aria-label*='Play']",
			"video",
		},
		"actions.selector_timeout":   "3s",
		"actions.iframe_timeout":     "10s",
		"actions.iframe_max_depth":   3,
		"actions.settle_after_click": "2s",

		"verify.enabled":         false,
		"verify.timeout":         manifest.DefaultVerifyTimeout.String(),
		"verify.user_agent":      manifest.DefaultUserAgent,
		"verify.signature":       manifest.DefaultSignature,
		"verify.peek_bytes":      manifest.DefaultPeekBytes,
		"verify.inspect":         false,
		"verify.rate_per_second": 0,
		"verify.burst":           1,
		"verify.concurrency":     1,

		"output.request_path":  "request.json",
		"output.response_path": "response.json",
	}
}

// Load reads defaults, overlays the YAML file at path and validates the
// result. A missing file is only an error when required is set.
func Load(path string, required bool) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		_, statErr := os.Stat(path)
		switch {
		case statErr == nil:
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config from %s: %w", path, err)
			}
		case errors.Is(statErr, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("loading config from %s: %w", path, statErr)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// ConfigFrom extracts the Config from the CLI command metadata.
func ConfigFrom(cmd *cli.Command) (*Config, error) {
	v, ok := cmd.Root().Metadata["config"]
	if !ok {
		return nil, fmt.Errorf("config not found in command metadata")
	}
	cfg, ok := v.(*Config)
	if !ok {
		return nil, fmt.Errorf("config has unexpected type %T", v)
	}
	return cfg, nil
}
