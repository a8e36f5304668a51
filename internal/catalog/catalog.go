// Package catalog holds the probe definitions the scheduler expands into instances.
package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/multierr"

	"github.com/hamed0406/dpiprobe/internal/domain"
)

var (
	ErrEmptyID     = errors.New("empty probe id")
	ErrDuplicateID = errors.New("duplicate probe id")
	ErrReservedID  = errors.New("probe id must not contain '@'") // repeat separator
	ErrBadRepeat   = errors.New("repeat_count must be >= 1")
	ErrBadURL      = errors.New("url must be absolute http(s)")
)

// Default returns a copy of the built-in catalog. Each endpoint serves at least
// 64 KiB so that an unfiltered path always crosses the success threshold.
func Default() []domain.ProbeDefinition {
	out := make([]domain.ProbeDefinition, len(defaults))
	copy(out, defaults)
	return out
}

var defaults = []domain.ProbeDefinition{
	{ID: "US.CF-01", Provider: "Cloudflare", RepeatCount: 1, URL: "https://cdn.cookielaw.org/scripttemplates/202501.2.0/otBannerSdk.js"},
	{ID: "US.CF-02", Provider: "Cloudflare", RepeatCount: 1, URL: "https://genshin.jmp.blue/characters/all"},
	{ID: "US.CF-03", Provider: "Cloudflare", RepeatCount: 1, URL: "https://api.frankfurter.dev/v1/2000-01-01..2002-12-31"},
	{ID: "US.DO-01", Provider: "DigitalOcean", RepeatCount: 2, URL: "https://genderize.io/"},
	{ID: "DE.HE-01", Provider: "Hetzner", RepeatCount: 1, URL: "https://j.dejure.org/jcg/doctrine/doctrine_banner.webp"},
	{ID: "FI.HE-01", Provider: "Hetzner", RepeatCount: 1, URL: "https://tcp1620-01.dubybot.live/1MB.bin"},
	{ID: "FI.HE-02", Provider: "Hetzner", RepeatCount: 1, URL: "https://tcp1620-02.dubybot.live/1MB.bin"},
	{ID: "FI.HE-03", Provider: "Hetzner", RepeatCount: 1, URL: "https://tcp1620-05.dubybot.live/1MB.bin"},
	{ID: "FI.HE-04", Provider: "Hetzner", RepeatCount: 1, URL: "https://tcp1620-06.dubybot.live/1MB.bin"},
	{ID: "FR.OVH-01", Provider: "OVH", RepeatCount: 1, URL: "https://eu.api.ovh.com/console/rapidoc-min.js"},
	{ID: "FR.OVH-02", Provider: "OVH", RepeatCount: 1, URL: "https://ovh.sfx.ovh/10M.bin"},
	{ID: "SE.OR-01", Provider: "Oracle", RepeatCount: 1, URL: "https://oracle.sfx.ovh/10M.bin"},
	{ID: "DE.AWS-01", Provider: "AWS", RepeatCount: 1, URL: "https://tms.delta.com/delta/dl_anderson/Bootstrap.js"},
	{ID: "US.AWS-01", Provider: "AWS", RepeatCount: 1, URL: "https://corp.kaltura.com/wp-content/cache/min/1/wp-content/themes/airfleet/dist/styles/theme.css"},
	{ID: "US.GC-01", Provider: "Google Cloud", RepeatCount: 1, URL: "https://api.usercentrics.eu/gvl/v3/en.json"},
	{ID: "US.FST-01", Provider: "Fastly", RepeatCount: 1, URL: "https://openoffice.apache.org/images/blog/rejected.png"},
	{ID: "US.FST-02", Provider: "Fastly", RepeatCount: 1, URL: "https://www.juniper.net/etc.clientlibs/juniper/clientlibs/clientlib-site/resources/fonts/lato/Lato-Regular.woff2"},
	{ID: "PL.AKM-01", Provider: "Akamai", RepeatCount: 1, URL: "https://www.lg.com/lg5-common-gp/library/jquery.min.js"},
	{ID: "PL.AKM-02", Provider: "Akamai", RepeatCount: 1, URL: "https://media-assets.stryker.com/is/image/stryker/gateway_1?$max_width_1410$"},
	{ID: "US.CDN77-01", Provider: "CDN77", RepeatCount: 1, URL: "https://vivaldigroup.com/wp-content/themes/vivaldi/assets/styles/main.css"},
}

type fileCatalog struct {
	Probes []domain.ProbeDefinition `mapstructure:"probes"`
}

// Load reads a catalog file (yaml, json or toml, picked by extension) with a
// top-level "probes" list. A missing repeat_count defaults to 1.
func Load(path string) ([]domain.ProbeDefinition, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var fc fileCatalog
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	for i := range fc.Probes {
		if fc.Probes[i].RepeatCount == 0 {
			fc.Probes[i].RepeatCount = 1
		}
	}
	if err := Validate(fc.Probes); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return fc.Probes, nil
}

// Validate checks every definition and returns all problems combined.
func Validate(defs []domain.ProbeDefinition) error {
	var errs error
	seen := make(map[string]struct{}, len(defs))
	for i, d := range defs {
		if strings.TrimSpace(d.ID) == "" {
			errs = multierr.Append(errs, fmt.Errorf("probe #%d: %w", i, ErrEmptyID))
			continue
		}
		if strings.Contains(d.ID, "@") {
			errs = multierr.Append(errs, fmt.Errorf("probe %s: %w", d.ID, ErrReservedID))
		}
		if _, dup := seen[d.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("probe %s: %w", d.ID, ErrDuplicateID))
		}
		seen[d.ID] = struct{}{}
		if d.RepeatCount < 1 {
			errs = multierr.Append(errs, fmt.Errorf("probe %s: %w", d.ID, ErrBadRepeat))
		}
		if !isHTTPURL(d.URL) {
			errs = multierr.Append(errs, fmt.Errorf("probe %s: %w", d.ID, ErrBadURL))
		}
	}
	return errs
}

// Filter keeps definitions whose id is in ids or whose provider is in providers
// (case-insensitive). Empty filters keep everything. Order is preserved.
func Filter(defs []domain.ProbeDefinition, ids, providers []string) []domain.ProbeDefinition {
	idSet := toSet(ids)
	provSet := toSet(providers)
	if len(idSet) == 0 && len(provSet) == 0 {
		return defs
	}
	out := make([]domain.ProbeDefinition, 0, len(defs))
	for _, d := range defs {
		_, idOK := idSet[strings.ToLower(d.ID)]
		_, provOK := provSet[strings.ToLower(d.Provider)]
		if idOK || provOK {
			out = append(out, d)
		}
	}
	return out
}

func toSet(vals []string) map[string]struct{} {
	m := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			m[v] = struct{}{}
		}
	}
	return m
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve loads the catalog at path, or the built-in one when path is empty,
// and applies the id and provider filters.
func Resolve(path string, ids, providers []string) ([]domain.ProbeDefinition, error) {
	defs := Default()
	if path != "" {
		var err error
		if defs, err = Load(path); err != nil {
			return nil, err
		}
	}
	return Filter(defs, ids, providers), nil
}
