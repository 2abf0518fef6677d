package source

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"vidgrab/internal/config"
	"vidgrab/internal/services"
)

const (
	// PlatformYouTube is the built-in platform name.
	PlatformYouTube = "youtube"
)

var (
	youtubeID = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	genericID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	hasScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// pathPrefixes are the path shapes that carry the id as their next segment.
var pathPrefixes = []string{"embed", "v", "shorts", "live"}

// Reference identifies a video on a platform independent of URL spelling.
type Reference struct {
	Platform string
	ID       string
}

// Key returns the dedup key for the reference.
func (r Reference) Key() string {
	return r.Platform + ":" + r.ID
}

func (r Reference) String() string {
	return r.Key()
}

// Platform describes a watch-style video host.
type Platform struct {
	Name  string
	Hosts []string
	// ShortHosts serve the id as the first path segment (youtu.be/<id>).
	ShortHosts []string

	idPattern *regexp.Regexp
}

// YouTube returns the built-in YouTube platform definition.
func YouTube() Platform {
	return Platform{
		Name:       PlatformYouTube,
		Hosts:      []string{"youtube.com", "m.youtube.com", "music.youtube.com", "youtube-nocookie.com"},
		ShortHosts: []string{"youtu.be"},
		idPattern:  youtubeID,
	}
}

// NewPlatform declares an additional platform whose ids are 1-64 URL-safe
// characters.
func NewPlatform(name string, hosts ...string) Platform {
	normalized := make([]string, 0, len(hosts))
	for _, host := range hosts {
		if host = normalizeHost(host); host != "" {
			normalized = append(normalized, host)
		}
	}
	return Platform{Name: strings.ToLower(strings.TrimSpace(name)), Hosts: normalized, idPattern: genericID}
}

// CanonicalURL returns the watch URL handed to upstream resolvers.
func (p Platform) CanonicalURL(id string) string {
	host := "www.youtube.com"
	if p.Name != PlatformYouTube && len(p.Hosts) > 0 {
		host = p.Hosts[0]
	}
	return "https://" + host + "/watch?v=" + url.QueryEscape(id)
}

func (p Platform) validID(id string) bool {
	pattern := p.idPattern
	if pattern == nil {
		pattern = genericID
	}
	return pattern.MatchString(id)
}

func (p Platform) matches(host string, hosts []string) bool {
	for _, candidate := range hosts {
		if host == candidate {
			return true
		}
	}
	return false
}

// Parse validates raw against the known platform URL shapes and returns the
// normalized reference. YouTube is always recognized; extra platforms are
// matched after it.
func Parse(raw string, platforms ...Platform) (Reference, error) {
	ref, _, err := parse(raw, platforms)
	return ref, err
}

func parse(raw string, platforms []Platform) (Reference, Platform, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Reference{}, Platform{}, invalid("url is required")
	}
	if !hasScheme.MatchString(trimmed) {
		trimmed = "https://" + trimmed
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return Reference{}, Platform{}, invalid("malformed url")
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
	default:
		return Reference{}, Platform{}, invalid(fmt.Sprintf("unsupported scheme %q", parsed.Scheme))
	}
	host := normalizeHost(parsed.Host)
	if host == "" {
		return Reference{}, Platform{}, invalid("url has no host")
	}

	all := append([]Platform{YouTube()}, platforms...)
	for _, platform := range all {
		var id string
		switch {
		case platform.matches(host, platform.ShortHosts):
			id = firstSegment(parsed.Path)
		case platform.matches(host, platform.Hosts):
			id = idFromWatchURL(parsed)
		default:
			continue
		}
		if id == "" {
			return Reference{}, Platform{}, invalid("unrecognized " + platform.Name + " url shape")
		}
		if !platform.validID(id) {
			return Reference{}, Platform{}, invalid(fmt.Sprintf("malformed %s video id %q", platform.Name, id))
		}
		return Reference{Platform: platform.Name, ID: id}, platform, nil
	}
	return Reference{}, Platform{}, invalid(fmt.Sprintf("unsupported host %q", host))
}

func idFromWatchURL(u *url.URL) string {
	segments := pathSegments(u.Path)
	if len(segments) == 1 && strings.EqualFold(segments[0], "watch") {
		return strings.TrimSpace(u.Query().Get("v"))
	}
	if len(segments) == 2 {
		for _, prefix := range pathPrefixes {
			if strings.EqualFold(segments[0], prefix) {
				return segments[1]
			}
		}
	}
	return ""
}

func firstSegment(p string) string {
	segments := pathSegments(p)
	if len(segments) != 1 {
		return ""
	}
	return segments[0]
}

func pathSegments(p string) []string {
	var out []string
	for _, segment := range strings.Split(p, "/") {
		if segment != "" {
			out = append(out, segment)
		}
	}
	return out
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

func invalid(message string) error {
	return services.Wrap(services.ErrInvalidInput, "resolver", "parse url", message, nil)
}

// Parser parses URLs against a fixed platform set.
type Parser struct {
	platforms []Platform
}

// NewParser returns a parser recognizing YouTube and the extra platforms.
func NewParser(platforms ...Platform) *Parser {
	return &Parser{platforms: platforms}
}

// PlatformsFromConfig converts configured platform declarations.
func PlatformsFromConfig(entries []config.Platform) []Platform {
	platforms := make([]Platform, 0, len(entries))
	for _, entry := range entries {
		platforms = append(platforms, NewPlatform(entry.Name, entry.Hosts...))
	}
	return platforms
}

// Parse validates raw and returns its reference.
func (p *Parser) Parse(raw string) (Reference, error) {
	ref, _, err := parse(raw, p.platforms)
	return ref, err
}

// CanonicalURL returns the watch URL for ref.
func (p *Parser) CanonicalURL(ref Reference) string {
	for _, platform := range p.platforms {
		if platform.Name == ref.Platform {
			return platform.CanonicalURL(ref.ID)
		}
	}
	return YouTube().CanonicalURL(ref.ID)
}
