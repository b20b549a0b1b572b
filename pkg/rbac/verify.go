// Package rbac checks that the bot's cluster identity can perform its operations.
package rbac

import (
	"context"
	"fmt"
	"strings"

	authv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// RequiredPermission represents a permission that needs to be verified
type RequiredPermission struct {
	APIGroup  string
	Resource  string
	Verb      string
	Namespace string // empty for cluster-scoped
}

// String renders the permission the way kubectl auth can-i would phrase it
func (p RequiredPermission) String() string {
	scope := "cluster-scoped"
	if p.Namespace != "" {
		scope = fmt.Sprintf("namespace=%s", p.Namespace)
	}
	resource := p.Resource
	if p.APIGroup != "" {
		resource = p.Resource + "." + p.APIGroup
	}
	return fmt.Sprintf("%s %s (%s)", p.Verb, resource, scope)
}

// GetRequiredPermissions returns the permissions needed to switch the Deployment and list node IPs
func GetRequiredPermissions(namespace string) []RequiredPermission {
	return []RequiredPermission{
		// Scale operation
		{APIGroup: "apps", Resource: "deployments", Verb: "get", Namespace: namespace},
		{APIGroup: "apps", Resource: "deployments", Verb: "update", Namespace: namespace},

		// Node lister
		{APIGroup: "", Resource: "nodes", Verb: "list", Namespace: ""},
	}
}

// PermissionResult is the outcome of a single access review
type PermissionResult struct {
	Permission RequiredPermission
	Allowed    bool
}

// CheckAll reviews every required permission in order
func CheckAll(ctx context.Context, clientset kubernetes.Interface, namespace string) ([]PermissionResult, error) {
	perms := GetRequiredPermissions(namespace)
	results := make([]PermissionResult, 0, len(perms))
	for _, perm := range perms {
		allowed, err := CheckPermission(ctx, clientset, perm)
		if err != nil {
			return nil, fmt.Errorf("failed to check permission %s: %w", perm, err)
		}
		results = append(results, PermissionResult{Permission: perm, Allowed: allowed})
	}
	return results, nil
}

// Missing returns an error listing the denied permissions, or nil
func Missing(results []PermissionResult) error {
	var missing []string
	for _, r := range results {
		if !r.Allowed {
			missing = append(missing, "  - "+r.Permission.String())
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required RBAC permissions:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

// VerifyPermissions checks that the current identity has all required permissions
func VerifyPermissions(ctx context.Context, clientset kubernetes.Interface, namespace string) error {
	results, err := CheckAll(ctx, clientset, namespace)
	if err != nil {
		return err
	}
	return Missing(results)
}

// CheckPermission verifies if a specific permission is granted
func CheckPermission(ctx context.Context, clientset kubernetes.Interface, perm RequiredPermission) (bool, error) {
	sar := &authv1.SelfSubjectAccessReview{
		Spec: authv1.SelfSubjectAccessReviewSpec{
			ResourceAttributes: &authv1.ResourceAttributes{
				Verb:      perm.Verb,
				Group:     perm.APIGroup,
				Resource:  perm.Resource,
				Namespace: perm.Namespace,
			},
		},
	}

	result, err := clientset.AuthorizationV1().SelfSubjectAccessReviews().Create(ctx, sar, metav1.CreateOptions{})
	if err != nil {
		return false, err
	}

	return result.Status.Allowed, nil
}
