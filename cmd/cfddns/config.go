package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Travis-Britz/cfddns"
	"github.com/caarlos0/env/v8"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is assembled from defaults, an optional YAML file, an optional .env file and the environment,
// each layer overriding the previous one.
type Config struct {
	// API token; when empty the token is read from KeyFile
	Token   string `yaml:"token" env:"CLOUDFLARE_API_TOKEN"`
	KeyFile string `yaml:"key_file" env:"CFDDNS_KEY_FILE"`
	// Ordered zones; CFDDNS_ZONES is a comma separated list of name=id pairs
	Zones    ZoneList `yaml:"zones"`
	ZoneSpec []string `yaml:"-" env:"CFDDNS_ZONES" envSeparator:","`

	IPFile    string `yaml:"ip_file" env:"CFDDNS_IP_FILE"`
	IPService string `yaml:"ip_service" env:"CFDDNS_IP_SERVICE"`

	Notifications bool   `yaml:"notifications" env:"CFDDNS_NOTIFICATIONS"`
	WebhookURL    string `yaml:"webhook_url" env:"DISCORD_WEBHOOK_URL"`
	// External notifier, e.g. "ipnotify" or "php /opt/notify-ip-change.php"; takes precedence over WebhookURL
	NotifyCommand string `yaml:"notify_command" env:"CFDDNS_NOTIFY_COMMAND"`

	ServiceCheck bool   `yaml:"service_check" env:"CFDDNS_SERVICE_CHECK"`
	Service      string `yaml:"service" env:"CFDDNS_SERVICE"`
	UpdateCheck  bool   `yaml:"update_check" env:"CFDDNS_UPDATE_CHECK"`

	MetricsFile string        `yaml:"metrics_file" env:"CFDDNS_METRICS_FILE"`
	LogFile     string        `yaml:"log_file" env:"CFDDNS_LOG_FILE"`
	Interval    time.Duration `yaml:"interval" env:"CFDDNS_INTERVAL"`
	Verbose     bool          `yaml:"verbose" env:"CFDDNS_VERBOSE"`
}

func defaultConfig() Config {
	return Config{
		KeyFile:   filepath.Join(os.Getenv("HOME"), ".cloudflare"),
		IPFile:    cfddns.DefaultIPFile,
		IPService: cfddns.DefaultIPService,
		Service:   "apache2",
	}
}

// loadConfig reads configPath (optional) and envFile (optional, ".env" is tried when empty)
// on top of the defaults, then applies the environment.
func loadConfig(configPath, envFile string) (Config, error) {
	cfg := defaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return cfg, fmt.Errorf("reading env file: %w", err)
		}
	} else if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return cfg, fmt.Errorf("reading .env: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parsing environment: %w", err)
	}

	if len(cfg.ZoneSpec) > 0 {
		zones, err := parseZoneSpec(cfg.ZoneSpec)
		if err != nil {
			return cfg, err
		}
		cfg.Zones = zones
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.Zones) == 0 {
		return errors.New("no zones configured: set zones in the config file or CFDDNS_ZONES")
	}
	for _, z := range c.Zones {
		if z.ID == "" {
			return fmt.Errorf("zone %q has no ID", z.Name)
		}
	}
	if c.Notifications && c.NotifyCommand == "" && c.WebhookURL == "" {
		return errors.New("notifications are enabled but neither webhook_url nor notify_command is set")
	}
	return nil
}

// ZoneList keeps zones in the order they are written.
//
// In YAML it is either a mapping of zone name to zone ID or a list of {name, id} objects.
type ZoneList []cfddns.Zone

func (zl *ZoneList) UnmarshalYAML(value *yaml.Node) error {
	var zones ZoneList
	switch value.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(value.Content); i += 2 {
			zones = append(zones, cfddns.Zone{Name: value.Content[i].Value, ID: value.Content[i+1].Value})
		}
	case yaml.SequenceNode:
		var items []struct {
			Name string `yaml:"name"`
			ID   string `yaml:"id"`
		}
		if err := value.Decode(&items); err != nil {
			return err
		}
		for _, it := range items {
			zones = append(zones, cfddns.Zone{Name: it.Name, ID: it.ID})
		}
	default:
		return fmt.Errorf("line %d: zones must be a mapping of name to id or a list of {name, id}", value.Line)
	}
	*zl = zones
	return nil
}

func parseZoneSpec(spec []string) (ZoneList, error) {
	var zones ZoneList
	for _, s := range spec {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		name, id, found := strings.Cut(s, "=")
		if !found {
			name, id = s, s
		}
		name, id = strings.TrimSpace(name), strings.TrimSpace(id)
		if id == "" {
			return nil, fmt.Errorf("invalid zone %q: expected name=id", s)
		}
		zones = append(zones, cfddns.Zone{Name: name, ID: id})
	}
	return zones, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
