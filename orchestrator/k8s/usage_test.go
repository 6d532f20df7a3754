package k8s

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	v1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"

	"github.com/PeladoCollado/rpcload/metrics"
	"github.com/PeladoCollado/rpcload/orchestrator/manager"
	"github.com/PeladoCollado/rpcload/types"
)

func TestUsageReporterExportsPodUsage(t *testing.T) {
	namespace := "default"
	service := &v1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: "node", Namespace: namespace},
		Spec: v1.ServiceSpec{
			Selector: map[string]string{"app": "node"},
			Ports:    []v1.ServicePort{{Name: "rpc", Port: 8545}},
		},
	}
	pod := &v1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "node-0", Namespace: namespace, Labels: map[string]string{"app": "node"}},
		Status:     v1.PodStatus{Phase: v1.PodRunning, PodIP: "10.0.0.3"},
	}
	podMetrics := &metricsv1beta1.PodMetrics{
		ObjectMeta: metav1.ObjectMeta{Name: "node-0", Namespace: namespace},
		Containers: []metricsv1beta1.ContainerMetrics{
			{Name: "node", Usage: v1.ResourceList{v1.ResourceCPU: resource.MustParse("500m"), v1.ResourceMemory: resource.MustParse("1Ki")}},
			{Name: "sidecar", Usage: v1.ResourceList{v1.ResourceCPU: resource.MustParse("20m")}},
		},
	}
	metricsClient := metricsfake.NewSimpleClientset()
	if err := metricsClient.Tracker().Create(metricsv1beta1.SchemeGroupVersion.WithResource("pods"), podMetrics, namespace); err != nil {
		t.Fatalf("unable to seed metrics tracker: %v", err)
	}
	client := NewClientWithClients(k8sfake.NewSimpleClientset(service, pod), metricsClient)
	resolver, err := NewTargetResolver(client, TargetResolverConfig{Mode: TargetModeService, Namespace: namespace, Service: "node", PortName: "rpc"})
	if err != nil {
		t.Fatalf("unexpected resolver init error: %v", err)
	}

	registry := prometheus.NewRegistry()
	reporter := &UsageReporter{Resolver: resolver, Client: client, Metrics: metrics.NewRampMetrics(registry)}
	reporter.ReportStep(context.Background(), manager.StepReport{Step: 1, Result: types.RunResult{Connections: 2}})

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	values := make(map[string]float64)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			if metric.GetGauge() != nil && len(metric.GetLabel()) > 0 {
				values[family.GetName()] = metric.GetGauge().GetValue()
			}
		}
	}
	if values["rpcload_target_pod_cpu_millicores"] != 520 {
		t.Fatalf("expected 520 millicores, got %v", values["rpcload_target_pod_cpu_millicores"])
	}
	if values["rpcload_target_pod_memory_bytes"] != 1024 {
		t.Fatalf("expected 1024 bytes, got %v", values["rpcload_target_pod_memory_bytes"])
	}
}

func TestUsageReporterSkipsURLMode(t *testing.T) {
	resolver, err := NewTargetResolver(nil, TargetResolverConfig{URLs: []string{"http://localhost:8545"}})
	if err != nil {
		t.Fatalf("unexpected resolver init error: %v", err)
	}
	reporter := &UsageReporter{Resolver: resolver}
	reporter.ReportStep(context.Background(), manager.StepReport{Step: 1})
}
