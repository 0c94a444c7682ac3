package kubernetes

import (
	"context"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sclient "k8s.io/client-go/kubernetes"
)

// CollectSnapshot lists every resource kind the rules consume (namespaces,
// pods, network policies, cluster role bindings) plus node metadata, exactly
// once each, and returns the assembled Snapshot.
//
// Collection is fail-fast: the first list error aborts the snapshot with no
// retries, so a partially populated snapshot is never evaluated.
// The clientset parameter is an interface so tests can inject a fake clientset.
func CollectSnapshot(ctx context.Context, clientset k8sclient.Interface, info ClusterInfo) (*Snapshot, error) {
	nodes, err := collectNodes(ctx, clientset)
	if err != nil {
		return nil, fmt.Errorf("collect nodes: %w", err)
	}

	namespaces, err := collectNamespaces(ctx, clientset)
	if err != nil {
		return nil, fmt.Errorf("collect namespaces: %w", err)
	}

	pods, err := collectPods(ctx, clientset)
	if err != nil {
		return nil, fmt.Errorf("collect pods: %w", err)
	}

	netpols, err := collectNetworkPolicies(ctx, clientset)
	if err != nil {
		return nil, fmt.Errorf("collect networkpolicies: %w", err)
	}

	bindings, err := collectClusterRoleBindings(ctx, clientset)
	if err != nil {
		return nil, fmt.Errorf("collect clusterrolebindings: %w", err)
	}

	return &Snapshot{
		ClusterInfo:         info,
		Nodes:               nodes,
		Namespaces:          namespaces,
		Pods:                pods,
		NetworkPolicies:     netpols,
		ClusterRoleBindings: bindings,
	}, nil
}

// collectNodes lists all nodes and converts them to NodeInfo.
// Only metadata is kept; node state never influences rule results.
func collectNodes(ctx context.Context, clientset k8sclient.Interface) ([]NodeInfo, error) {
	nodeList, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	nodes := make([]NodeInfo, 0, len(nodeList.Items))
	for _, n := range nodeList.Items {
		labels := make(map[string]string, len(n.Labels))
		for k, v := range n.Labels {
			labels[k] = v
		}
		nodes = append(nodes, NodeInfo{
			Name:           n.Name,
			ProviderID:     n.Spec.ProviderID,
			Labels:         labels,
			KubeletVersion: n.Status.NodeInfo.KubeletVersion,
		})
	}
	return nodes, nil
}

// collectNamespaces lists all namespaces and converts them to NamespaceInfo.
// Labels are copied to avoid sharing the original map.
func collectNamespaces(ctx context.Context, clientset k8sclient.Interface) ([]NamespaceInfo, error) {
	nsList, err := clientset.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	namespaces := make([]NamespaceInfo, 0, len(nsList.Items))
	for _, ns := range nsList.Items {
		labels := make(map[string]string, len(ns.Labels))
		for k, v := range ns.Labels {
			labels[k] = v
		}
		namespaces = append(namespaces, NamespaceInfo{
			Name:   ns.Name,
			Labels: labels,
		})
	}
	return namespaces, nil
}

// collectPods lists all pods across all namespaces and converts them to
// PodInfo. For each container it extracts the image reference, the privileged
// flag, the effective runAsUser (container-level overrides pod-level; nil
// when neither sets it) and any added capabilities. Pod hostPath volumes are
// recorded with their declared volume name and host path.
func collectPods(ctx context.Context, clientset k8sclient.Interface) ([]PodInfo, error) {
	podList, err := clientset.CoreV1().Pods("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	pods := make([]PodInfo, 0, len(podList.Items))
	for _, p := range podList.Items {
		serviceAccount := p.Spec.ServiceAccountName
		if serviceAccount == "" {
			serviceAccount = "default"
		}
		pod := PodInfo{
			Name:               p.Name,
			Namespace:          p.Namespace,
			ServiceAccountName: serviceAccount,
		}

		var podRunAsUser *int64
		if p.Spec.SecurityContext != nil {
			podRunAsUser = p.Spec.SecurityContext.RunAsUser
		}

		for _, c := range p.Spec.Containers {
			privileged := c.SecurityContext != nil &&
				c.SecurityContext.Privileged != nil &&
				*c.SecurityContext.Privileged

			runAsUser := podRunAsUser
			if c.SecurityContext != nil && c.SecurityContext.RunAsUser != nil {
				runAsUser = c.SecurityContext.RunAsUser
			}

			var added []string
			if c.SecurityContext != nil && c.SecurityContext.Capabilities != nil {
				for _, cap := range c.SecurityContext.Capabilities.Add {
					added = append(added, string(cap))
				}
			}

			pod.Containers = append(pod.Containers, ContainerInfo{
				Name:              c.Name,
				Image:             c.Image,
				Privileged:        privileged,
				RunAsUser:         runAsUser,
				AddedCapabilities: added,
			})
		}

		for _, v := range p.Spec.Volumes {
			if v.HostPath == nil {
				continue
			}
			pod.HostPathVolumes = append(pod.HostPathVolumes, HostPathVolumeInfo{
				VolumeName: v.Name,
				Path:       v.HostPath.Path,
			})
		}

		pods = append(pods, pod)
	}
	return pods, nil
}

// collectNetworkPolicies lists all NetworkPolicies across all namespaces and
// converts them to NetworkPolicyInfo.
func collectNetworkPolicies(ctx context.Context, clientset k8sclient.Interface) ([]NetworkPolicyInfo, error) {
	npList, err := clientset.NetworkingV1().NetworkPolicies("").List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	policies := make([]NetworkPolicyInfo, 0, len(npList.Items))
	for _, np := range npList.Items {
		selector := make(map[string]string, len(np.Spec.PodSelector.MatchLabels))
		for k, v := range np.Spec.PodSelector.MatchLabels {
			selector[k] = v
		}
		policies = append(policies, NetworkPolicyInfo{
			Name:        np.Name,
			Namespace:   np.Namespace,
			PodSelector: selector,
		})
	}
	return policies, nil
}

// collectClusterRoleBindings lists all ClusterRoleBindings and converts them
// to ClusterRoleBindingInfo, preserving subject order.
func collectClusterRoleBindings(ctx context.Context, clientset k8sclient.Interface) ([]ClusterRoleBindingInfo, error) {
	crbList, err := clientset.RbacV1().ClusterRoleBindings().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, err
	}

	bindings := make([]ClusterRoleBindingInfo, 0, len(crbList.Items))
	for _, crb := range crbList.Items {
		subjects := make([]SubjectInfo, 0, len(crb.Subjects))
		for _, s := range crb.Subjects {
			subjects = append(subjects, SubjectInfo{
				Kind: s.Kind,
				Name: s.Name,
			})
		}
		bindings = append(bindings, ClusterRoleBindingInfo{
			Name:     crb.Name,
			RoleName: crb.RoleRef.Name,
			Subjects: subjects,
		})
	}
	return bindings, nil
}
