package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"time"

	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"critcss/probe"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	FiltersConfig struct {
		// regular expressions matched against property names
		ExcludeProperties []string `yaml:"exclude_properties" validate:"dive,required"`
		// regular expressions matched against at-rule names without "@"
		ExcludeAtRules []string `yaml:"exclude_at_rules" validate:"dive,required"`
	}

	GenerationConfig struct {
		Viewports          []string      `yaml:"viewports" validate:"min=1,dive,required"`
		SuccessRatio       float64       `yaml:"success_ratio" validate:"gt=0,lte=1"`
		Concurrency        int           `yaml:"concurrency" validate:"min=1,max=64"`
		Minifier           MinifierKind  `yaml:"minifier" validate:"gte=0"`
		Filters            FiltersConfig `yaml:"filters"`
		OutputNameTemplate string        `yaml:"output_name_template"`
	}

	FetchConfig struct {
		Timeout   time.Duration           `yaml:"timeout" validate:"gt=0"`
		UserAgent string                  `yaml:"user_agent"`
		MaxSize   int64                   `yaml:"max_size" validate:"gt=0"`
		CacheSize int                     `yaml:"cache_size" validate:"gte=0"`
		Charset   string                  `yaml:"charset,omitempty"`
		Headers   map[string]SecretString `yaml:"headers,omitempty"`
	}

	BrowserConfig struct {
		RemoteURL     string            `yaml:"remote_url,omitempty" validate:"omitempty,url"`
		Bin           string            `yaml:"bin,omitempty" sanitize:"assure_file_access"`
		Headless      bool              `yaml:"headless"`
		Stealth       bool              `yaml:"stealth"`
		LoadTimeout   time.Duration     `yaml:"load_timeout" validate:"gt=0"`
		GetParameters map[string]string `yaml:"get_parameters,omitempty"`
	}

	Config struct {
		Version    int              `yaml:"version" validate:"eq=1"`
		Generation GenerationConfig `yaml:"generation"`
		Fetch      FetchConfig      `yaml:"fetch"`
		Browser    BrowserConfig    `yaml:"browser"`
		Logging    LoggingConfig    `yaml:"logging"`
		Reporting  ReporterConfig   `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	OutputNameTemplateFieldName TemplateFieldName = "output_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(OutputNameTemplateFieldName)),
)

// checkConfig validates values which cannot be expressed with tags.
func checkConfig(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	for i, v := range cfg.Generation.Viewports {
		if _, err := probe.ParseViewport(v); err != nil {
			sl.ReportError(cfg.Generation.Viewports[i], fmt.Sprintf("Viewports[%d]", i), "viewports", "viewport", v)
		}
	}
	for i, p := range cfg.Generation.Filters.ExcludeProperties {
		if _, err := regexp.Compile(p); err != nil {
			sl.ReportError(p, fmt.Sprintf("ExcludeProperties[%d]", i), "exclude_properties", "regexp", p)
		}
	}
	for i, p := range cfg.Generation.Filters.ExcludeAtRules {
		if _, err := regexp.Compile(p); err != nil {
			sl.ReportError(p, fmt.Sprintf("ExcludeAtRules[%d]", i), "exclude_at_rules", "regexp", p)
		}
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, err
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkConfig)); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration tamplate to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}

// ParsedViewports returns configured viewports. Configuration is expected to
// be validated already.
func (conf *GenerationConfig) ParsedViewports() ([]probe.Viewport, error) {
	vps := make([]probe.Viewport, 0, len(conf.Viewports))
	for _, s := range conf.Viewports {
		vp, err := probe.ParseViewport(s)
		if err != nil {
			return nil, err
		}
		vps = append(vps, vp)
	}
	return vps, nil
}
