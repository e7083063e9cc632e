package llm

import (
	"fmt"
	"net/url"
	"path"

	"github.com/billie-coop/ollamagate/internal/llm/queue"
)

// heavyEndpoints are the endpoints that run inference or download models.
// Everything else, including endpoints added to Ollama later, is light.
var heavyEndpoints = map[string]struct{}{
	EndpointGenerate: {},
	EndpointChat:     {},
	EndpointPull:     {},
}

// ClassifyEndpoint returns the lane for an Ollama endpoint path.
// The path is classified in its CleanEndpoint form, so query strings,
// trailing slashes, dot segments and percent-escapes cannot move a heavy
// endpoint into the light lane.
func ClassifyEndpoint(endpoint string) queue.Class {
	p := endpoint
	if cleaned, err := CleanEndpoint(endpoint); err == nil {
		p = cleaned
	}
	if u, err := url.Parse(p); err == nil {
		p = u.Path
	}
	if _, ok := heavyEndpoints[p]; ok {
		return queue.Heavy
	}
	return queue.Light
}

// CleanEndpoint returns endpoint as Ollama routes it: the path unescaped,
// dot segments and duplicate or trailing slashes removed, the query kept.
// Endpoints carrying a scheme or host are rejected.
func CleanEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return "", fmt.Errorf("endpoint %q is not a path", endpoint)
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	cleaned := &url.URL{Path: path.Clean("/" + p), RawQuery: u.RawQuery}
	return cleaned.String(), nil
}
