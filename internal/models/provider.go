package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ProviderType names a ProviderConfig variant.
type ProviderType string

// Provider types.
const (
	ProviderXtream ProviderType = "xtream"
	ProviderM3U    ProviderType = "m3u"
	ProviderAddon  ProviderType = "addon"
)

// ErrInvalidConfig is wrapped by every ProviderConfig validation failure.
var ErrInvalidConfig = errors.New("invalid provider config")

// ProviderConfig is the closed set of upstream configurations. The only
// implementations are XtreamConfig, M3UConfig and AddonConfig.
type ProviderConfig interface {
	Type() ProviderType
	Validate() error
	isProviderConfig()
}

// XtreamConfig points at an Xtream-Codes panel.
type XtreamConfig struct {
	ServerURL string `json:"server_url"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// M3UConfig points at an Extended M3U playlist with an optional XMLTV guide.
type M3UConfig struct {
	URL    string  `json:"url"`
	EPGURL *string `json:"epg_url,omitempty"`
}

// AddonConfig points at an addon catalog manifest.
type AddonConfig struct {
	ManifestURL string `json:"manifest_url"`
}

func (XtreamConfig) Type() ProviderType { return ProviderXtream }
func (M3UConfig) Type() ProviderType    { return ProviderM3U }
func (AddonConfig) Type() ProviderType  { return ProviderAddon }

func (XtreamConfig) isProviderConfig() {}
func (M3UConfig) isProviderConfig()    {}
func (AddonConfig) isProviderConfig()  {}

func (c XtreamConfig) Validate() error {
	if err := validateHTTPURL("server_url", c.ServerURL); err != nil {
		return err
	}
	if c.Username == "" || c.Password == "" {
		return fmt.Errorf("%w: username and password are required", ErrInvalidConfig)
	}
	return nil
}

func (c M3UConfig) Validate() error {
	if err := validateHTTPURL("url", c.URL); err != nil {
		return err
	}
	if c.EPGURL != nil && *c.EPGURL != "" {
		return validateHTTPURL("epg_url", *c.EPGURL)
	}
	return nil
}

func (c AddonConfig) Validate() error {
	return validateHTTPURL("manifest_url", c.ManifestURL)
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, field)
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be a valid http or https URL", ErrInvalidConfig, field)
	}
	return nil
}

// EncodeConfig serialises cfg with a "type" discriminator.
func EncodeConfig(cfg ProviderConfig) ([]byte, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	body, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(cfg.Type())
	fields["type"] = typ
	return json.Marshal(fields)
}

// DecodeConfig is the inverse of EncodeConfig.
func DecodeConfig(data []byte) (ProviderConfig, error) {
	var head struct {
		Type ProviderType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch head.Type {
	case ProviderXtream:
		var c XtreamConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return c, nil
	case ProviderM3U:
		var c M3UConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return c, nil
	case ProviderAddon:
		var c AddonConfig
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidConfig, head.Type)
	}
}

// Provider is one configured upstream source.
type Provider struct {
	ID           string         `json:"id"`
	Config       ProviderConfig `json:"-"`
	Name         string         `json:"name"`
	Status       ProviderStatus `json:"status"`
	ChannelCount int            `json:"channel_count"`
	LastSync     *time.Time     `json:"last_sync,omitempty"`
	LastError    *string        `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// providerJSON mirrors Provider with the config inlined; credentials are
// never written out.
type providerJSON struct {
	ID           string         `json:"id"`
	Type         ProviderType   `json:"type"`
	Name         string         `json:"name"`
	Status       ProviderStatus `json:"status"`
	ChannelCount int            `json:"channel_count"`
	LastSync     *time.Time     `json:"last_sync,omitempty"`
	LastError    *string        `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	URL          string         `json:"url,omitempty"`
}

// MarshalJSON renders the provider for API clients without secrets.
func (p Provider) MarshalJSON() ([]byte, error) {
	out := providerJSON{
		ID:           p.ID,
		Name:         p.Name,
		Status:       p.Status,
		ChannelCount: p.ChannelCount,
		LastSync:     p.LastSync,
		LastError:    p.LastError,
		CreatedAt:    p.CreatedAt,
	}
	switch c := p.Config.(type) {
	case XtreamConfig:
		out.Type, out.URL = c.Type(), c.ServerURL
	case M3UConfig:
		out.Type, out.URL = c.Type(), c.URL
	case AddonConfig:
		out.Type, out.URL = c.Type(), c.ManifestURL
	}
	return json.Marshal(out)
}

// DefaultProviderName derives a display name from the config.
func DefaultProviderName(cfg ProviderConfig) string {
	switch c := cfg.(type) {
	case XtreamConfig:
		if u, err := url.Parse(c.ServerURL); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
		return "Xtream"
	case M3UConfig:
		return "M3U Playlist"
	case AddonConfig:
		return "Addon"
	default:
		return "Provider"
	}
}
