package selector

import (
	"fmt"
	"net/url"
)

// TrackingLink tags the destination with UTM parameters for the social channel.
func TrackingLink(destination, campaign, content, term string) (string, error) {
	u, err := url.Parse(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination %q: %w", destination, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("destination %q is not an absolute url", destination)
	}
	q := u.Query()
	q.Add("utm_source", "x")
	q.Add("utm_medium", "social")
	q.Add("utm_campaign", campaign)
	q.Add("utm_content", content)
	if term != "" {
		q.Add("utm_term", term)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
