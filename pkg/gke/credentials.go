// Package gke resolves Kubernetes connection parameters for GKE clusters.
//
// It performs the equivalent of `gcloud container clusters get-credentials`:
// the cluster endpoint and CA come from the Container API, the bearer token
// from Application Default Credentials.
package gke

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	container "cloud.google.com/go/container/apiv1"
	"cloud.google.com/go/container/apiv1/containerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// CloudPlatformScope is the OAuth scope requested for both the Container API and the cluster
const CloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

var (
	// ErrNoProject is returned when no project ID is configured nor found in the credentials.
	ErrNoProject = errors.New("no GCP project ID configured or found in credentials")
	// ErrIncompleteCluster is returned when the cluster has no endpoint or CA certificate.
	ErrIncompleteCluster = errors.New("cluster metadata is missing endpoint or CA certificate")
)

// Credentials holds what a kubeconfig context needs to reach a cluster
type Credentials struct {
	// Endpoint is the API server host, as reported by GKE (no scheme)
	Endpoint string
	// CACertificate is the PEM-encoded cluster CA
	CACertificate []byte
	// Token is a short-lived OAuth2 access token
	Token string
}

// ClusterGetter is the subset of the Container API client used here
type ClusterGetter interface {
	GetCluster(ctx context.Context, req *containerpb.GetClusterRequest, opts ...gax.CallOption) (*containerpb.Cluster, error)
	Close() error
}

// Resolver exchanges a cluster name and zone for connection credentials
type Resolver struct {
	projectID   string
	clusters    ClusterGetter
	tokenSource oauth2.TokenSource
	logger      *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithLogger sets the logger used by the resolver
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a Resolver from Application Default Credentials.
// If projectID is empty the project of the credentials is used.
func NewResolver(ctx context.Context, projectID string, opts ...Option) (*Resolver, error) {
	creds, err := google.FindDefaultCredentials(ctx, CloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("failed to find default credentials: %w", err)
	}
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, ErrNoProject
	}

	client, err := container.NewClusterManagerClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster manager client: %w", err)
	}

	return NewResolverWithClients(projectID, client, creds.TokenSource, opts...), nil
}

// NewResolverWithClients creates a Resolver around explicit clients
func NewResolverWithClients(projectID string, clusters ClusterGetter, tokenSource oauth2.TokenSource, opts ...Option) *Resolver {
	r := &Resolver{
		projectID:   projectID,
		clusters:    clusters,
		tokenSource: tokenSource,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ProjectID returns the project the resolver targets
func (r *Resolver) ProjectID() string {
	return r.projectID
}

// Resolve fetches a fresh access token and the cluster's endpoint and CA
func (r *Resolver) Resolve(ctx context.Context, cluster, zone string) (*Credentials, error) {
	token, err := r.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to get access token: %w", err)
	}

	name := ClusterResourceName(r.projectID, zone, cluster)
	resp, err := r.clusters.GetCluster(ctx, &containerpb.GetClusterRequest{Name: name})
	if err != nil {
		return nil, fmt.Errorf("failed to get cluster %s: %w", name, err)
	}

	endpoint := resp.GetEndpoint()
	caData := resp.GetMasterAuth().GetClusterCaCertificate()
	if endpoint == "" || caData == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrIncompleteCluster)
	}

	ca, err := base64.StdEncoding.DecodeString(caData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cluster CA certificate: %w", err)
	}

	r.logger.Debug("Resolved cluster credentials",
		zap.String("cluster", name),
		zap.String("endpoint", endpoint),
		zap.Time("token_expiry", token.Expiry),
	)

	return &Credentials{
		Endpoint:      endpoint,
		CACertificate: ca,
		Token:         token.AccessToken,
	}, nil
}

// Close releases the underlying Container API connection
func (r *Resolver) Close() error {
	return r.clusters.Close()
}

// ClusterResourceName returns the fully-qualified name of a GKE cluster
func ClusterResourceName(projectID, zone, cluster string) string {
	return fmt.Sprintf("projects/%s/locations/%s/clusters/%s", projectID, zone, cluster)
}
