package k8s

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	v1 "k8s.io/api/core/v1"
)

const (
	TargetModeURL     = "url"
	TargetModePod     = "pod"
	TargetModeService = "service"
)

type TargetResolverConfig struct {
	Mode       string
	URLs       []string
	Namespace  string
	Deployment string
	Service    string
	PortName   string
	Scheme     string
	Path       string
}

// TargetResolver turns the configured target into the endpoint URLs of a run and tells
// which pods back them.
type TargetResolver struct {
	client *Client
	config TargetResolverConfig
}

func NewTargetResolver(client *Client, config TargetResolverConfig) (*TargetResolver, error) {
	if config.Mode == "" {
		config.Mode = TargetModeURL
	}
	if config.Scheme == "" {
		config.Scheme = "http"
	}
	if config.Namespace == "" {
		config.Namespace = "default"
	}
	switch config.Mode {
	case TargetModeURL:
		if len(config.URLs) == 0 {
			return nil, fmt.Errorf("url mode needs at least one url")
		}
		for _, raw := range config.URLs {
			parsed, err := url.Parse(raw)
			if err != nil || parsed.Scheme == "" || parsed.Host == "" {
				return nil, fmt.Errorf("invalid target url %q", raw)
			}
		}
	case TargetModePod:
		if client == nil || config.Deployment == "" {
			return nil, fmt.Errorf("pod mode needs a kubernetes client and a deployment")
		}
	case TargetModeService:
		if client == nil || config.Service == "" {
			return nil, fmt.Errorf("service mode needs a kubernetes client and a service")
		}
	default:
		return nil, fmt.Errorf("unknown target mode %q", config.Mode)
	}
	return &TargetResolver{client: client, config: config}, nil
}

func (r *TargetResolver) Mode() string {
	return r.config.Mode
}

func (r *TargetResolver) Namespace() string {
	return r.config.Namespace
}

// ResolveTargets returns the endpoint URLs. Pod mode addresses every running pod of the
// deployment directly; service mode goes through the service DNS name.
func (r *TargetResolver) ResolveTargets(ctx context.Context) ([]string, error) {
	switch r.config.Mode {
	case TargetModePod:
		pods, err := r.client.PodsForDeployment(ctx, r.config.Namespace, r.config.Deployment)
		if err != nil {
			return nil, err
		}
		urls := BuildTargetURLs(pods, r.config.PortName, r.config.Scheme)
		if len(urls) == 0 {
			return nil, fmt.Errorf("no running pods with port %q in deployment %s/%s",
				r.config.PortName, r.config.Namespace, r.config.Deployment)
		}
		return r.withPath(urls), nil
	case TargetModeService:
		target, err := r.client.ServiceTargetURL(ctx, r.config.Namespace, r.config.Service, r.config.PortName, r.config.Scheme)
		if err != nil {
			return nil, err
		}
		return r.withPath([]string{target}), nil
	default:
		return append([]string(nil), r.config.URLs...), nil
	}
}

func (r *TargetResolver) withPath(urls []string) []string {
	if r.config.Path == "" {
		return urls
	}
	path := "/" + strings.TrimPrefix(r.config.Path, "/")
	for i := range urls {
		urls[i] += path
	}
	return urls
}

// CurrentPods lists the running pods behind the target. URL mode has none.
func (r *TargetResolver) CurrentPods(ctx context.Context) ([]v1.Pod, error) {
	switch r.config.Mode {
	case TargetModePod:
		return r.client.PodsForDeployment(ctx, r.config.Namespace, r.config.Deployment)
	case TargetModeService:
		return r.client.PodsForService(ctx, r.config.Namespace, r.config.Service)
	default:
		return []v1.Pod{}, nil
	}
}
