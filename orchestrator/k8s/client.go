package k8s

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	v1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
	metricsclient "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Client finds the pods behind a load target and reads their resource usage.
type Client struct {
	kube    kubernetes.Interface
	metrics metricsclient.Interface
}

// PodUsage is the summed usage of every container in a pod.
type PodUsage struct {
	CPUMillicores int64
	MemoryBytes   int64
}

func NewClient(config *rest.Config) (*Client, error) {
	kube, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	metrics, err := metricsclient.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("create metrics client: %w", err)
	}
	return NewClientWithClients(kube, metrics), nil
}

func NewClientWithClients(kube kubernetes.Interface, metrics metricsclient.Interface) *Client {
	return &Client{kube: kube, metrics: metrics}
}

func (c *Client) PodsForDeployment(ctx context.Context, namespace string, name string) ([]v1.Pod, error) {
	deployment, err := c.kube.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get deployment %s/%s: %w", namespace, name, err)
	}
	selector, err := metav1.LabelSelectorAsSelector(deployment.Spec.Selector)
	if err != nil {
		return nil, fmt.Errorf("deployment %s/%s selector: %w", namespace, name, err)
	}
	return c.runningPods(ctx, namespace, selector.String())
}

func (c *Client) PodsForService(ctx context.Context, namespace string, name string) ([]v1.Pod, error) {
	service, err := c.kube.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("get service %s/%s: %w", namespace, name, err)
	}
	if len(service.Spec.Selector) == 0 {
		return nil, fmt.Errorf("service %s/%s has no selector", namespace, name)
	}
	return c.runningPods(ctx, namespace, labels.SelectorFromSet(service.Spec.Selector).String())
}

func (c *Client) runningPods(ctx context.Context, namespace string, selector string) ([]v1.Pod, error) {
	pods, err := c.kube.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	running := make([]v1.Pod, 0, len(pods.Items))
	for _, pod := range pods.Items {
		if pod.Status.Phase == v1.PodRunning {
			running = append(running, pod)
		}
	}
	return running, nil
}

// ServiceTargetURL addresses the service through its cluster DNS name.
func (c *Client) ServiceTargetURL(ctx context.Context, namespace string, name string, portName string, scheme string) (string, error) {
	service, err := c.kube.CoreV1().Services(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get service %s/%s: %w", namespace, name, err)
	}
	for _, port := range service.Spec.Ports {
		if portName == "" || port.Name == portName {
			return fmt.Sprintf("%s://%s.%s.svc:%d", scheme, name, namespace, port.Port), nil
		}
	}
	return "", fmt.Errorf("service %s/%s has no port named %q", namespace, name, portName)
}

// BuildTargetURLs returns scheme://ip:port for every pod exposing portName, sorted.
// Pods without an IP or without the port are skipped.
func BuildTargetURLs(pods []v1.Pod, portName string, scheme string) []string {
	urls := make([]string, 0, len(pods))
	for _, pod := range pods {
		if pod.Status.PodIP == "" {
			continue
		}
		if port, ok := containerPort(pod, portName); ok {
			urls = append(urls, fmt.Sprintf("%s://%s:%d", scheme, pod.Status.PodIP, port))
		}
	}
	slices.Sort(urls)
	return urls
}

func containerPort(pod v1.Pod, portName string) (int32, bool) {
	for _, container := range pod.Spec.Containers {
		for _, port := range container.Ports {
			if portName == "" || port.Name == portName {
				return port.ContainerPort, true
			}
		}
	}
	return 0, false
}

// PodResourceUsage reads the metrics API for the named pods. Pods without metrics are
// left out of the result.
func (c *Client) PodResourceUsage(ctx context.Context, namespace string, podNames []string) (map[string]PodUsage, error) {
	usage := make(map[string]PodUsage, len(podNames))
	podMetrics := c.metrics.MetricsV1beta1().PodMetricses(namespace)
	for _, name := range podNames {
		m, err := podMetrics.Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return usage, fmt.Errorf("get metrics for pod %s/%s: %w", namespace, name, err)
		}
		var total PodUsage
		for _, container := range m.Containers {
			if cpu, ok := container.Usage[v1.ResourceCPU]; ok {
				total.CPUMillicores += cpu.MilliValue()
			}
			if memory, ok := container.Usage[v1.ResourceMemory]; ok {
				total.MemoryBytes += memory.Value()
			}
		}
		usage[name] = total
	}
	return usage, nil
}

func InitInCluster() (*rest.Config, error) {
	return rest.InClusterConfig()
}

// InitOffCluster loads kubeconfig, falling back to ~/.kube/config when it is empty.
func InitOffCluster(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = filepath.Join(homedir.HomeDir(), ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}
