package kubernetes

import (
	"context"
	"errors"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// ErrNonBinaryReplicas is returned by ToggleTarget when the current replica count is neither 0 nor 1
var ErrNonBinaryReplicas = errors.New("deployment replicas are neither 0 nor 1")

const readyPollInterval = 2 * time.Second

// Scale sets the Deployment's desired replicas with a read-modify-write.
//
// The whole object is written back without a resourceVersion precondition,
// so a concurrent write between the read and the update is overwritten.
func Scale(ctx context.Context, clientset kubernetes.Interface, namespace, name string, replicas int32) error {
	deployments := clientset.AppsV1().Deployments(namespace)

	dep, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}

	dep.Spec.Replicas = &replicas
	dep.ResourceVersion = ""

	if _, err := deployments.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

// GetReplicas returns the desired replica count of the Deployment
func GetReplicas(ctx context.Context, clientset kubernetes.Interface, namespace, name string) (int32, error) {
	dep, err := clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}
	if dep.Spec.Replicas == nil {
		// API server default
		return 1, nil
	}
	return *dep.Spec.Replicas, nil
}

// ToggleTarget returns the replica count that flips current between 0 and 1
func ToggleTarget(current int32) (int32, error) {
	if current != 0 && current != 1 {
		return current, fmt.Errorf("found %d replicas: %w", current, ErrNonBinaryReplicas)
	}
	return 1 - current, nil
}

// WaitForReady waits until the Deployment reports at least one ready replica
func WaitForReady(ctx context.Context, clientset kubernetes.Interface, namespace, name string, timeout time.Duration) error {
	err := wait.PollUntilContextTimeout(ctx, readyPollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		dep, err := clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			// transient, keep polling until the timeout
			return false, nil
		}
		return dep.Status.ReadyReplicas > 0, nil
	})
	if err != nil {
		return fmt.Errorf("timeout waiting for deployment %s/%s to be ready: %w", namespace, name, err)
	}
	return nil
}
