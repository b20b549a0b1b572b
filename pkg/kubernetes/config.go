// Package kubernetes provides the cluster client factory and the Deployment and Node operations.
package kubernetes

import "fmt"

// Config identifies the Deployment being switched on and off
type Config struct {
	Namespace  string
	Deployment string
}

// String returns namespace/name
func (c Config) String() string {
	return fmt.Sprintf("%s/%s", c.Namespace, c.Deployment)
}
