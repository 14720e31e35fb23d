package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func podWithWaitingReason(name, namespace, reason string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					Name:  "app",
					State: corev1.ContainerState{Waiting: &corev1.ContainerStateWaiting{Reason: reason}},
				},
			},
		},
	}
}

func TestPodsByStatus(t *testing.T) {
	crashing := podWithWaitingReason("api-7f9c", "default", "CrashLoopBackOff")
	pending := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "queued-1", Namespace: "default"},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	restarted := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "worker-0", Namespace: "default"},
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{Name: "app", RestartCount: 4, State: corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}},
			},
		},
	}
	otherNamespace := podWithWaitingReason("api-1", "staging", "CrashLoopBackOff")

	client := NewClientFromInterface(fake.NewSimpleClientset(crashing, pending, restarted, otherNamespace))

	statuses, err := client.PodsByStatus(context.Background(), "default")
	require.NoError(t, err)

	assert.Equal(t, []string{"api-7f9c"}, statuses["CrashLoopBackOff"])
	assert.Equal(t, []string{"queued-1"}, statuses["Pending"])
	assert.Equal(t, []string{"worker-0:4"}, statuses[StatusRestartCount])
}

func TestRestartPod(t *testing.T) {
	pod := podWithWaitingReason("api-7f9c", "default", "CrashLoopBackOff")
	clientset := fake.NewSimpleClientset(pod)
	client := NewClientFromInterface(clientset)

	require.NoError(t, client.RestartPod(context.Background(), "api-7f9c", "default"))

	_, err := clientset.CoreV1().Pods("default").Get(context.Background(), "api-7f9c", metav1.GetOptions{})
	assert.Error(t, err, "pod should be deleted")
}

func TestRestartPod_MissingPod(t *testing.T) {
	client := NewClientFromInterface(fake.NewSimpleClientset())
	err := client.RestartPod(context.Background(), "ghost", "default")
	assert.Error(t, err)
}

func TestScaleDeployment(t *testing.T) {
	replicas := int32(1)
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
		Spec:       appsv1.DeploymentSpec{Replicas: &replicas},
	}
	clientset := fake.NewSimpleClientset(dep)
	client := NewClientFromInterface(clientset)

	require.NoError(t, client.ScaleDeployment(context.Background(), "web", 5, "default"))

	updated, err := clientset.AppsV1().Deployments("default").Get(context.Background(), "web", metav1.GetOptions{})
	require.NoError(t, err)
	require.NotNil(t, updated.Spec.Replicas)
	assert.Equal(t, int32(5), *updated.Spec.Replicas)
}

func TestPodLogs(t *testing.T) {
	pod := podWithWaitingReason("api-7f9c", "default", "CrashLoopBackOff")
	client := NewClientFromInterface(fake.NewSimpleClientset(pod))

	logs, err := client.PodLogs(context.Background(), "api-7f9c", "default", 100)
	require.NoError(t, err)
	assert.Contains(t, logs, "fake logs")
}

func TestPodDescription(t *testing.T) {
	pod := podWithWaitingReason("api-7f9c", "default", "CrashLoopBackOff")
	client := NewClientFromInterface(fake.NewSimpleClientset(pod))

	desc, err := client.PodDescription(context.Background(), "api-7f9c", "default")
	require.NoError(t, err)
	assert.Contains(t, desc, "api-7f9c")
	assert.Contains(t, desc, "CrashLoopBackOff")
}

func TestNamespaceEvents(t *testing.T) {
	event := &corev1.Event{
		ObjectMeta: metav1.ObjectMeta{Name: "ev-1", Namespace: "default"},
		Type:       "Warning",
		Reason:     "BackOff",
		Message:    "Back-off restarting failed container",
		InvolvedObject: corev1.ObjectReference{
			Kind: "Pod", Name: "api-7f9c", Namespace: "default",
		},
	}
	client := NewClientFromInterface(fake.NewSimpleClientset(event))

	events, err := client.NamespaceEvents(context.Background(), "default", 20)
	require.NoError(t, err)
	assert.Contains(t, events, "Warning BackOff Pod/api-7f9c")
}
