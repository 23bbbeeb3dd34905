// Package kube checks Kubernetes resource state through the API server.
package kube

import (
	"context"
	"fmt"
	"log/slog"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	typedcorev1 "k8s.io/client-go/kubernetes/typed/core/v1"

	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// KubeClientInterface is an interface that defines only the necessary methods of a Kubernetes clientset.
// This interface implements both real clientsets and fake clientsets.
type KubeClientInterface interface {
	CoreV1() typedcorev1.CoreV1Interface
}

// PodKey identifies a pod by namespace and name.
type PodKey struct {
	Namespace string
	Name      string
}

func (k PodKey) String() string {
	return k.Namespace + "/" + k.Name
}

// PodsRunningCondition is a group condition over pods that completes once
// every pod is running with all containers ready.
type PodsRunningCondition struct {
	client KubeClientInterface
	pods   []PodKey
	logger *slog.Logger
}

// NewPodsRunningCondition creates a pod readiness check over the given pods.
func NewPodsRunningCondition(client KubeClientInterface, pods []PodKey, logger *slog.Logger) *PodsRunningCondition {
	if logger == nil {
		logger = slog.Default()
	}
	return &PodsRunningCondition{
		client: client,
		pods:   pods,
		logger: logger,
	}
}

// ConditionName implements waiting.Condition.
func (c *PodsRunningCondition) ConditionName() string {
	return fmt.Sprintf("%d pods running", len(c.pods))
}

// HasCompleted reports whether every pod is running and ready.
func (c *PodsRunningCondition) HasCompleted(ctx context.Context) (bool, error) {
	for _, pod := range c.pods {
		ready, err := c.MemberHasCompleted(ctx, pod)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}
	}
	return true, nil
}

// MemberHasCompleted reports whether a single pod is running and ready.
// A pod that reached the Failed phase will not recover on its own and is a
// permanent failure; a pod not found yet may still be scheduled.
func (c *PodsRunningCondition) MemberHasCompleted(ctx context.Context, key PodKey) (bool, error) {
	pod, err := c.client.CoreV1().Pods(key.Namespace).Get(ctx, key.Name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			c.logger.Debug("pod not found yet", "pod", key.String())
			return false, nil
		}
		c.logger.Debug("failed to get pod", "pod", key.String(), "error", err)
		return false, nil
	}

	switch pod.Status.Phase {
	case corev1.PodFailed:
		return false, waiting.Failf("pod %s entered phase %s", key.String(), pod.Status.Phase)
	case corev1.PodRunning:
		return podReady(pod), nil
	default:
		return false, nil
	}
}

// podReady reports whether all containers of a running pod are ready.
func podReady(pod *corev1.Pod) bool {
	for _, status := range pod.Status.ContainerStatuses {
		if !status.Ready {
			return false
		}
	}
	return len(pod.Status.ContainerStatuses) > 0
}

// NodeReadyCondition is a group condition over node names that completes once
// every node reports the Ready condition as true.
type NodeReadyCondition struct {
	client KubeClientInterface
	nodes  []string
	logger *slog.Logger
}

// NewNodeReadyCondition creates a node readiness check over the given nodes.
func NewNodeReadyCondition(client KubeClientInterface, nodes []string, logger *slog.Logger) *NodeReadyCondition {
	if logger == nil {
		logger = slog.Default()
	}
	return &NodeReadyCondition{
		client: client,
		nodes:  nodes,
		logger: logger,
	}
}

// ConditionName implements waiting.Condition.
func (c *NodeReadyCondition) ConditionName() string {
	return fmt.Sprintf("%d nodes ready", len(c.nodes))
}

// HasCompleted reports whether every node is ready.
func (c *NodeReadyCondition) HasCompleted(ctx context.Context) (bool, error) {
	for _, node := range c.nodes {
		ready, err := c.MemberHasCompleted(ctx, node)
		if err != nil {
			return false, err
		}
		if !ready {
			return false, nil
		}
	}
	return true, nil
}

// MemberHasCompleted reports whether a single node reports Ready.
// A missing node is a permanent failure: nodes are registered ahead of any
// wait, so absence means the name is wrong.
func (c *NodeReadyCondition) MemberHasCompleted(ctx context.Context, name string) (bool, error) {
	node, err := c.client.CoreV1().Nodes().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, waiting.Failf("node %s does not exist", name)
		}
		c.logger.Debug("failed to get node", "node", name, "error", err)
		return false, nil
	}

	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady {
			return cond.Status == corev1.ConditionTrue, nil
		}
	}
	return false, nil
}
