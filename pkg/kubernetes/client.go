package kubernetes

import (
	"fmt"
	"strings"

	"github.com/efortin/factorio-chill/pkg/gke"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// BuildKubeConfig synthesizes a kubeconfig holding exactly one cluster, user and
// context, all called name. The bearer token is the only auth mechanism.
func BuildKubeConfig(name string, creds *gke.Credentials) *clientcmdapi.Config {
	server := creds.Endpoint
	if !strings.HasPrefix(server, "https://") && !strings.HasPrefix(server, "http://") {
		server = "https://" + server
	}

	cfg := clientcmdapi.NewConfig()
	cfg.Clusters[name] = &clientcmdapi.Cluster{
		Server:                   server,
		CertificateAuthorityData: creds.CACertificate,
	}
	cfg.AuthInfos[name] = &clientcmdapi.AuthInfo{
		Token: creds.Token,
	}
	cfg.Contexts[name] = &clientcmdapi.Context{
		Cluster:  name,
		AuthInfo: name,
	}
	cfg.CurrentContext = name
	return cfg
}

// RESTConfig turns resolved credentials into a client-go rest.Config without
// consulting any kubeconfig on disk
func RESTConfig(name string, creds *gke.Credentials) (*rest.Config, error) {
	kubeConfig := BuildKubeConfig(name, creds)
	restConfig, err := clientcmd.NewNonInteractiveClientConfig(*kubeConfig, name, &clientcmd.ConfigOverrides{}, nil).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build rest config: %w", err)
	}
	return restConfig, nil
}

// NewClientset builds a fresh clientset bound to the single synthesized context
func NewClientset(name string, creds *gke.Credentials) (kubernetes.Interface, error) {
	restConfig, err := RESTConfig(name, creds)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return clientset, nil
}
