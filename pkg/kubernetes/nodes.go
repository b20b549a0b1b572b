package kubernetes

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// NodeAddress is the optional external IP of a single node
type NodeAddress struct {
	Node  string
	IP    string
	Found bool
}

// ExternalIP returns the first ExternalIP address of the node, if any
func ExternalIP(node *corev1.Node) (string, bool) {
	for _, addr := range node.Status.Addresses {
		if addr.Type == corev1.NodeExternalIP && addr.Address != "" {
			return addr.Address, true
		}
	}
	return "", false
}

// ListExternalIPs lists all nodes and returns one entry per node, in list order.
// Nodes without an external address are reported with Found=false.
func ListExternalIPs(ctx context.Context, clientset kubernetes.Interface) ([]NodeAddress, error) {
	nodes, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}

	result := make([]NodeAddress, 0, len(nodes.Items))
	for i := range nodes.Items {
		node := &nodes.Items[i]
		ip, found := ExternalIP(node)
		result = append(result, NodeAddress{Node: node.Name, IP: ip, Found: found})
	}
	return result, nil
}

// FoundIPs returns the IPs of nodes that have one, preserving order
func FoundIPs(addrs []NodeAddress) []string {
	ips := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Found {
			ips = append(ips, a.IP)
		}
	}
	return ips
}

// MissingNodes returns the names of nodes without an external IP
func MissingNodes(addrs []NodeAddress) []string {
	var names []string
	for _, a := range addrs {
		if !a.Found {
			names = append(names, a.Node)
		}
	}
	return names
}
