package kube

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

func newPod(namespace, name string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Status: corev1.PodStatus{
			Phase: phase,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "main", Ready: ready},
			},
		},
	}
}

func newNode(name string, ready corev1.ConditionStatus) *corev1.Node {
	return &corev1.Node{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Status: corev1.NodeStatus{
			Conditions: []corev1.NodeCondition{
				{Type: corev1.NodeReady, Status: ready},
			},
		},
	}
}

func TestPodsRunningConditionAllReady(t *testing.T) {
	client := fake.NewSimpleClientset(
		newPod("services", "cfs-api-0", corev1.PodRunning, true),
		newPod("services", "cfs-api-1", corev1.PodRunning, true),
	)

	pods := []PodKey{
		{Namespace: "services", Name: "cfs-api-0"},
		{Namespace: "services", Name: "cfs-api-1"},
	}
	cond := NewPodsRunningCondition(client, pods, nil)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestPodsRunningConditionContainerNotReady(t *testing.T) {
	client := fake.NewSimpleClientset(
		newPod("services", "cfs-api-0", corev1.PodRunning, false),
	)

	cond := NewPodsRunningCondition(client, []PodKey{{Namespace: "services", Name: "cfs-api-0"}}, nil)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPodsRunningConditionMissingPodIsNotYet(t *testing.T) {
	client := fake.NewSimpleClientset()

	cond := NewPodsRunningCondition(client, []PodKey{{Namespace: "services", Name: "cfs-api-0"}}, nil)

	done, err := cond.MemberHasCompleted(context.Background(), PodKey{Namespace: "services", Name: "cfs-api-0"})
	require.NoError(t, err)
	assert.False(t, done)
}

func TestPodsRunningConditionFailedPodIsPermanent(t *testing.T) {
	client := fake.NewSimpleClientset(
		newPod("services", "cfs-api-0", corev1.PodFailed, false),
	)

	cond := NewPodsRunningCondition(client, []PodKey{{Namespace: "services", Name: "cfs-api-0"}}, nil)

	done, err := cond.MemberHasCompleted(context.Background(), PodKey{Namespace: "services", Name: "cfs-api-0"})
	assert.False(t, done)
	assert.True(t, waiting.IsFailure(err))
}

func TestNodeReadyCondition(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNode("ncn-w001", corev1.ConditionTrue),
		newNode("ncn-w002", corev1.ConditionFalse),
	)

	cond := NewNodeReadyCondition(client, []string{"ncn-w001", "ncn-w002"}, nil)

	ready, err := cond.MemberHasCompleted(context.Background(), "ncn-w001")
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = cond.MemberHasCompleted(context.Background(), "ncn-w002")
	require.NoError(t, err)
	assert.False(t, ready)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestNodeReadyConditionMissingNodeIsPermanent(t *testing.T) {
	client := fake.NewSimpleClientset()

	cond := NewNodeReadyCondition(client, []string{"ncn-w009"}, nil)

	ready, err := cond.MemberHasCompleted(context.Background(), "ncn-w009")
	assert.False(t, ready)
	assert.True(t, waiting.IsFailure(err))
}

func TestPodsRunningConditionWithGroup(t *testing.T) {
	client := fake.NewSimpleClientset(
		newPod("services", "cfs-api-0", corev1.PodRunning, true),
		newPod("services", "cfs-api-1", corev1.PodPending, false),
	)

	pods := []PodKey{
		{Namespace: "services", Name: "cfs-api-0"},
		{Namespace: "services", Name: "cfs-api-1"},
	}
	cond := NewPodsRunningCondition(client, pods, nil)

	group, err := waiting.NewGroup[PodKey](cond, pods,
		waiting.WithTimeout(100*time.Millisecond),
		waiting.WithPollInterval(20*time.Millisecond))
	require.NoError(t, err)

	pending := group.WaitForCompletion(context.Background())
	assert.Len(t, pending, 1)
	assert.Contains(t, pending, pods[1])
	assert.Contains(t, group.Completed(), pods[0])
}
