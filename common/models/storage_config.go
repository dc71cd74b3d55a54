package models

// RedirectConfig instructs the client to re-request a different URL
type RedirectConfig struct {
	Location   string `json:"location"`
	StatusCode int    `json:"status_code"`
}

// StorageConfig carries the routing and header configuration applied to
// asset serving. Sources are glob patterns matched against the request path.
type StorageConfig struct {
	// Headers maps a source pattern to extra response headers
	Headers map[string][]HeaderField `json:"headers,omitempty"`

	// Rewrites serves different content at the same URL (no client-visible
	// redirect). Source pattern to destination path.
	Rewrites map[string]string `json:"rewrites,omitempty"`

	// Redirects maps a source pattern to a redirect destination
	Redirects map[string]RedirectConfig `json:"redirects,omitempty"`

	Version uint64 `json:"version"`
}

// Clone returns a deep copy so config mutations never alias live state
func (c *StorageConfig) Clone() *StorageConfig {
	out := &StorageConfig{Version: c.Version}
	if c.Headers != nil {
		out.Headers = make(map[string][]HeaderField, len(c.Headers))
		for k, v := range c.Headers {
			headers := make([]HeaderField, len(v))
			copy(headers, v)
			out.Headers[k] = headers
		}
	}
	if c.Rewrites != nil {
		out.Rewrites = make(map[string]string, len(c.Rewrites))
		for k, v := range c.Rewrites {
			out.Rewrites[k] = v
		}
	}
	if c.Redirects != nil {
		out.Redirects = make(map[string]RedirectConfig, len(c.Redirects))
		for k, v := range c.Redirects {
			out.Redirects[k] = v
		}
	}
	return out
}
