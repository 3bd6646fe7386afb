package utils

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/idna"
)

var urlRegex = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "fbclid", "gclid"}

func ExtractURLs(content string) []string {
	return urlRegex.FindAllString(content, -1)
}

// NormalizeURL lowercases and punycodes the host and strips credentials,
// fragments and tracking parameters. It returns the cleaned URL and its host.
func NormalizeURL(raw string) (string, string, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}

	host := strings.ToLower(parsed.Hostname())
	if asciiHost, err := idna.ToASCII(host); err == nil {
		host = asciiHost
	}
	if port := parsed.Port(); port != "" {
		parsed.Host = host + ":" + port
	} else {
		parsed.Host = host
	}
	parsed.Fragment = ""
	parsed.User = nil

	query := parsed.Query()
	for _, key := range trackingParams {
		query.Del(key)
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), host, nil
}

// LinkDomains lists the distinct hosts linked from content, sorted. Look-alike
// unicode hosts show up in their punycode form.
func LinkDomains(content string) []string {
	seen := make(map[string]struct{})
	for _, raw := range ExtractURLs(content) {
		_, host, err := NormalizeURL(raw)
		if err != nil || host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	domains := make([]string, 0, len(seen))
	for host := range seen {
		domains = append(domains, host)
	}
	sort.Strings(domains)
	return domains
}
