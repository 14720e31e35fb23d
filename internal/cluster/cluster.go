package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/u2takey/go-utils/filesystem/homedir"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8stypes "k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/aonescu/remedy/internal/logging"
)

// StatusRestartCount is the pseudo-status bucket carrying "pod:count"
// entries for pods with restarted containers.
const StatusRestartCount = "RestartCount"

// Client wraps the Kubernetes API for the rule engine and executor.
type Client struct {
	clientset kubernetes.Interface
}

// NewClient builds a client from in-cluster config, falling back to the
// local kubeconfig. Both failing means the agent cannot run at all and the
// caller should abort startup.
func NewClient() (*Client, error) {
	log := logging.WithComponent("cluster")

	cfg, err := rest.InClusterConfig()
	if err != nil {
		var kubeconfig string
		if home := homedir.HomeDir(); home != "" {
			kubeconfig = filepath.Join(home, ".kube", "config")
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("no usable kubernetes config: %w", err)
		}
		log.Info().Str("kubeconfig", kubeconfig).Msg("loaded local kubernetes config")
	} else {
		log.Info().Msg("loaded in-cluster kubernetes config")
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{clientset: clientset}, nil
}

// NewClientFromInterface wraps an existing clientset. Tests use this with
// the fake clientset.
func NewClientFromInterface(clientset kubernetes.Interface) *Client {
	return &Client{clientset: clientset}
}

// Clientset exposes the underlying client for leader election wiring.
func (c *Client) Clientset() kubernetes.Interface {
	return c.clientset
}

// PodsByStatus groups pod names in a namespace by their container waiting
// reason. Pods in the Pending phase are additionally bucketed under
// "Pending", and containers that have restarted contribute "name:count"
// entries under StatusRestartCount.
func (c *Client) PodsByStatus(ctx context.Context, namespace string) (map[string][]string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	statusMap := make(map[string][]string)
	for _, pod := range pods.Items {
		if pod.Status.Phase == corev1.PodPending {
			statusMap["Pending"] = append(statusMap["Pending"], pod.Name)
		}
		for _, cs := range pod.Status.ContainerStatuses {
			if cs.State.Waiting != nil && cs.State.Waiting.Reason != "" {
				reason := cs.State.Waiting.Reason
				statusMap[reason] = append(statusMap[reason], pod.Name)
			} else if cs.RestartCount > 0 {
				statusMap[StatusRestartCount] = append(statusMap[StatusRestartCount],
					fmt.Sprintf("%s:%d", pod.Name, cs.RestartCount))
			}
		}
	}

	return statusMap, nil
}

// RestartPod restarts a pod by deleting it; the owning controller recreates
// it. Idempotent from the control loop's point of view.
func (c *Client) RestartPod(ctx context.Context, name, namespace string) error {
	err := c.clientset.CoreV1().Pods(namespace).Delete(ctx, name, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("failed to restart pod %s/%s: %w", namespace, name, err)
	}
	log := logging.WithComponent("cluster")
	log.Info().
		Str("pod", name).Str("namespace", namespace).
		Msg("initiated pod restart")
	return nil
}

// ScaleDeployment patches a deployment to the given replica count.
func (c *Client) ScaleDeployment(ctx context.Context, name string, replicas int32, namespace string) error {
	patch := []byte(fmt.Sprintf(`{"spec":{"replicas":%d}}`, replicas))
	_, err := c.clientset.AppsV1().Deployments(namespace).
		Patch(ctx, name, k8stypes.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("failed to scale deployment %s/%s: %w", namespace, name, err)
	}
	log := logging.WithComponent("cluster")
	log.Info().
		Str("deployment", name).Str("namespace", namespace).Int32("replicas", replicas).
		Msg("scaled deployment")
	return nil
}

// PodLogs returns the last tailLines lines of a pod's logs.
func (c *Client) PodLogs(ctx context.Context, name, namespace string, tailLines int64) (string, error) {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(name, &corev1.PodLogOptions{
		TailLines: &tailLines,
	})
	raw, err := req.DoRaw(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch logs for pod %s/%s: %w", namespace, name, err)
	}
	return string(raw), nil
}

// PodDescription returns the full pod object rendered as JSON, the closest
// equivalent of a kubectl describe for RCA context.
func (c *Client) PodDescription(ctx context.Context, name, namespace string) (string, error) {
	pod, err := c.clientset.CoreV1().Pods(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to fetch pod %s/%s: %w", namespace, name, err)
	}
	data, err := json.MarshalIndent(pod, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to render pod %s/%s: %w", namespace, name, err)
	}
	return string(data), nil
}

// NamespaceEvents returns recent events in a namespace as one line per
// event.
func (c *Client) NamespaceEvents(ctx context.Context, namespace string, limit int64) (string, error) {
	events, err := c.clientset.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{Limit: limit})
	if err != nil {
		return "", fmt.Errorf("failed to list events in %s: %w", namespace, err)
	}

	var b strings.Builder
	for _, ev := range events.Items {
		fmt.Fprintf(&b, "%s %s %s/%s: %s\n",
			ev.Type, ev.Reason, ev.InvolvedObject.Kind, ev.InvolvedObject.Name, ev.Message)
	}
	return b.String(), nil
}
