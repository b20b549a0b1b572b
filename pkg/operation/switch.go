// Package operation runs the start/stop operations on the game server Deployment.
package operation

import (
	"context"
	"fmt"
	"time"

	"github.com/efortin/factorio-chill/pkg/config"
	"github.com/efortin/factorio-chill/pkg/gke"
	k8s "github.com/efortin/factorio-chill/pkg/kubernetes"
	"github.com/efortin/factorio-chill/pkg/stats"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes"
)

// Action names the operation performed
type Action string

const (
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionToggle Action = "toggle"
)

// Manager defines the interface for game server operations
type Manager interface {
	Start(ctx context.Context) (*Result, error)
	Stop(ctx context.Context) (*Result, error)
}

// Result describes a completed scale operation
type Result struct {
	Action   Action
	Replicas int32
	// IPs holds the external IPs of the nodes that have one, in node list order
	IPs []string
	// MissingIP lists nodes that had no external IP
	MissingIP []string
	// IPError is set when scaling succeeded but listing node IPs failed
	IPError error
}

// CredentialResolver resolves connection credentials for a cluster
type CredentialResolver interface {
	Resolve(ctx context.Context, cluster, zone string) (*gke.Credentials, error)
}

// ClientFactory builds a clientset for a single named context
type ClientFactory func(name string, creds *gke.Credentials) (kubernetes.Interface, error)

// Switch starts and stops the configured Deployment. Every call resolves fresh
// credentials and builds a new clientset; nothing is shared between calls.
type Switch struct {
	resolver CredentialResolver
	factory  ClientFactory
	config   *config.Config
	metrics  *stats.MetricsRecorder
	logger   *zap.Logger
}

// NewSwitch creates a new Switch
func NewSwitch(resolver CredentialResolver, factory ClientFactory, cfg *config.Config, metrics *stats.MetricsRecorder, logger *zap.Logger) *Switch {
	if factory == nil {
		factory = k8s.NewClientset
	}
	if metrics == nil {
		metrics = stats.NewMetricsRecorder()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Switch{
		resolver: resolver,
		factory:  factory,
		config:   cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Clientset resolves credentials and returns a fresh clientset for the target cluster
func (s *Switch) Clientset(ctx context.Context) (kubernetes.Interface, error) {
	creds, err := s.resolver.Resolve(ctx, s.config.Cluster, s.config.Zone)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cluster credentials: %w", err)
	}
	clientset, err := s.factory(s.config.ContextName(), creds)
	if err != nil {
		return nil, fmt.Errorf("failed to create cluster client: %w", err)
	}
	return clientset, nil
}

// Start scales the Deployment to one replica and, if configured, reports node IPs
func (s *Switch) Start(ctx context.Context) (*Result, error) {
	clientset, err := s.scale(ctx, stats.DirectionUp, 1)
	if err != nil {
		return nil, err
	}

	result := &Result{Action: ActionStart, Replicas: 1}

	if s.config.WaitReady {
		if err := k8s.WaitForReady(ctx, clientset, s.config.Namespace, s.config.Deployment, s.config.GetReadyTimeout()); err != nil {
			// the scale itself succeeded, report and carry on
			s.logger.Warn("Deployment did not become ready", zap.Error(err))
		}
	}

	if s.config.ReportIPs {
		s.listIPs(ctx, clientset, result)
	}
	return result, nil
}

// Stop scales the Deployment to zero replicas
func (s *Switch) Stop(ctx context.Context) (*Result, error) {
	if _, err := s.scale(ctx, stats.DirectionDown, 0); err != nil {
		return nil, err
	}
	return &Result{Action: ActionStop, Replicas: 0}, nil
}

// Toggle flips the Deployment between 0 and 1 replicas based on its current state.
// The direction is known before the write, so a failed flip is recorded against it.
func (s *Switch) Toggle(ctx context.Context) (*Result, error) {
	start := time.Now()
	clientset, err := s.Clientset(ctx)
	if err != nil {
		return nil, err
	}

	current, err := k8s.GetReplicas(ctx, clientset, s.config.Namespace, s.config.Deployment)
	if err != nil {
		return nil, err
	}
	replicas, err := k8s.ToggleTarget(current)
	if err != nil {
		return nil, fmt.Errorf("cannot toggle %s: %w", s.target(), err)
	}

	direction := stats.DirectionDown
	if replicas == 1 {
		direction = stats.DirectionUp
	}
	if err := s.apply(ctx, clientset, direction, replicas, start); err != nil {
		return nil, err
	}
	return &Result{Action: ActionToggle, Replicas: replicas}, nil
}

// ExternalIPs lists the nodes' external addresses of the target cluster
func (s *Switch) ExternalIPs(ctx context.Context) ([]k8s.NodeAddress, error) {
	clientset, err := s.Clientset(ctx)
	if err != nil {
		return nil, err
	}
	return k8s.ListExternalIPs(ctx, clientset)
}

func (s *Switch) scale(ctx context.Context, direction string, replicas int32) (kubernetes.Interface, error) {
	start := time.Now()
	clientset, err := s.Clientset(ctx)
	if err != nil {
		s.metrics.RecordScaleOp(direction, false, time.Since(start))
		return nil, err
	}
	if err := s.apply(ctx, clientset, direction, replicas, start); err != nil {
		return nil, err
	}
	return clientset, nil
}

// apply writes the replica count and records the outcome under direction
func (s *Switch) apply(ctx context.Context, clientset kubernetes.Interface, direction string, replicas int32, start time.Time) error {
	s.logger.Info("Scaling deployment",
		zap.String("deployment", s.target()),
		zap.String("direction", direction),
		zap.Int32("replicas", replicas),
	)

	err := k8s.Scale(ctx, clientset, s.config.Namespace, s.config.Deployment, replicas)
	s.metrics.RecordScaleOp(direction, err == nil, time.Since(start))
	if err != nil {
		s.logger.Error("Scale operation failed",
			zap.String("deployment", s.target()),
			zap.String("direction", direction),
			zap.Error(err),
		)
		return err
	}

	s.metrics.UpdateReplicas(replicas)
	s.logger.Info("Scaled deployment",
		zap.String("deployment", s.target()),
		zap.Int32("replicas", replicas),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

func (s *Switch) listIPs(ctx context.Context, clientset kubernetes.Interface, result *Result) {
	addrs, err := k8s.ListExternalIPs(ctx, clientset)
	if err != nil {
		s.logger.Warn("Failed to list node external IPs", zap.Error(err))
		result.IPError = err
		return
	}

	result.IPs = k8s.FoundIPs(addrs)
	result.MissingIP = k8s.MissingNodes(addrs)
	s.metrics.UpdateExternalIPs(len(result.IPs))
	if len(result.MissingIP) > 0 {
		s.logger.Warn("Nodes without external IP", zap.Strings("nodes", result.MissingIP))
	}
}

func (s *Switch) target() string {
	return k8s.Config{Namespace: s.config.Namespace, Deployment: s.config.Deployment}.String()
}
