package routing

import (
	"context"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/match"

	"github.com/junobuild/satellite/common/faults"
	"github.com/junobuild/satellite/common/models"
)

// RoutingKind tags how a request path resolved
type RoutingKind int

const (
	// RoutingDefault serves the asset found at the path or one of its aliases
	RoutingDefault RoutingKind = iota

	// RoutingRewrite serves a different asset at the same URL
	RoutingRewrite

	// RoutingRedirect instructs the client to re-request another URL
	RoutingRedirect

	// RoutingRedirectRaw is a redirect matched against the undecoded URL
	RoutingRedirectRaw

	// RoutingNotFound means nothing matched; the caller renders a 404
	RoutingNotFound
)

// Routing is the outcome of resolving a request path
type Routing struct {
	Kind  RoutingKind
	Asset *models.Asset

	// Source is the rewrite rule that matched, for RoutingRewrite
	Source string

	// Location and StatusCode describe a redirect
	Location   string
	StatusCode int
}

// AssetGetter looks up a public asset by full path
type AssetGetter interface {
	Get(ctx context.Context, collection, fullPath string) (*models.Asset, error)
}

// Resolver resolves request URLs to assets through alias expansion,
// rewrite rules and redirect rules
type Resolver struct {
	assets     AssetGetter
	collection string
}

// NewResolver creates a resolver reading public assets from the collection
func NewResolver(assets AssetGetter, collection string) *Resolver {
	return &Resolver{assets: assets, collection: collection}
}

// Resolve maps a raw request URL to a Routing. Order: percent-decode,
// alias expansion, exact match, rewrite rules, redirect rules (decoded
// then raw), NotFound.
func (r *Resolver) Resolve(ctx context.Context, rawURL string, cfg *models.StorageConfig) (*Routing, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, faults.Validation("malformed url %q", rawURL)
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}

	// Alias expansion first, then the literal path
	if asset, err := r.lookupWithAliases(ctx, path); err != nil {
		return nil, err
	} else if asset != nil {
		return &Routing{Kind: RoutingDefault, Asset: asset}, nil
	}

	if cfg != nil {
		routing, err := r.resolveRewrite(ctx, path, cfg.Rewrites)
		if err != nil {
			return nil, err
		}
		if routing != nil {
			return routing, nil
		}

		if redirect := matchRedirect(path, cfg.Redirects); redirect != nil {
			return &Routing{
				Kind:       RoutingRedirect,
				Location:   redirect.Location,
				StatusCode: redirect.StatusCode,
			}, nil
		}

		// Redirects may also be declared against the raw, undecoded URL
		if rawPath := rawPathOf(rawURL); rawPath != path {
			if redirect := matchRedirect(rawPath, cfg.Redirects); redirect != nil {
				return &Routing{
					Kind:       RoutingRedirectRaw,
					Location:   redirect.Location,
					StatusCode: redirect.StatusCode,
				}, nil
			}
		}
	}

	return &Routing{Kind: RoutingNotFound}, nil
}

// lookupWithAliases tries the alias expansions of the path, then the path
// itself
func (r *Resolver) lookupWithAliases(ctx context.Context, path string) (*models.Asset, error) {
	for _, candidate := range append(MapAlternativePaths(path), path) {
		asset, err := r.assets.Get(ctx, r.collection, candidate)
		if err != nil {
			return nil, err
		}
		if asset != nil {
			return asset, nil
		}
	}
	return nil, nil
}

func (r *Resolver) resolveRewrite(ctx context.Context, path string, rewrites map[string]string) (*Routing, error) {
	for _, source := range sortedSources(rewrites) {
		if !match.Match(path, source) {
			continue
		}

		// The rewrite target is itself alias-resolved before falling back
		// to an absolute lookup
		asset, err := r.lookupWithAliases(ctx, rewrites[source])
		if err != nil {
			return nil, err
		}
		if asset != nil {
			return &Routing{
				Kind:       RoutingRewrite,
				Asset:      asset,
				Source:     source,
				StatusCode: 200,
			}, nil
		}
	}
	return nil, nil
}

func matchRedirect(path string, redirects map[string]models.RedirectConfig) *models.RedirectConfig {
	for _, source := range sortedSources(redirects) {
		if match.Match(path, source) {
			redirect := redirects[source]
			return &redirect
		}
	}
	return nil
}

// sortedSources orders rule sources by path segment count descending so
// the more specific rule wins, with alphabetical order as the tie-break
func sortedSources[V any](rules map[string]V) []string {
	sources := make([]string, 0, len(rules))
	for source := range rules {
		sources = append(sources, source)
	}
	sort.Slice(sources, func(i, j int) bool {
		si := strings.Count(sources[i], "/")
		sj := strings.Count(sources[j], "/")
		if si != sj {
			return si > sj
		}
		return sources[i] < sources[j]
	})
	return sources
}

// rawPathOf extracts the undecoded path portion of the request URL
func rawPathOf(rawURL string) string {
	path := rawURL
	if idx := strings.IndexAny(path, "?#"); idx >= 0 {
		path = path[:idx]
	}
	return path
}
