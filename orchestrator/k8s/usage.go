package k8s

import (
	"context"

	"github.com/PeladoCollado/rpcload/metrics"
	"github.com/PeladoCollado/rpcload/orchestrator/logger"
	"github.com/PeladoCollado/rpcload/orchestrator/manager"
)

// UsageReporter samples CPU and memory of the target pods after every ramp step.
type UsageReporter struct {
	Resolver *TargetResolver
	Client   *Client
	Metrics  *metrics.RampMetrics
}

func (u *UsageReporter) ReportStep(ctx context.Context, report manager.StepReport) {
	pods, err := u.Resolver.CurrentPods(ctx)
	if err != nil {
		logger.Logger.Warnw("Unable to list target pods", "error", err)
		return
	}
	if len(pods) == 0 {
		return
	}
	names := make([]string, 0, len(pods))
	for _, pod := range pods {
		names = append(names, pod.Name)
	}

	namespace := u.Resolver.Namespace()
	usage, err := u.Client.PodResourceUsage(ctx, namespace, names)
	if err != nil {
		logger.Logger.Warnw("Unable to read target pod usage", "error", err)
	}
	if u.Metrics != nil {
		u.Metrics.ResetTargetPodUsage()
	}
	for pod, podUsage := range usage {
		logger.Logger.Infow("Target pod usage",
			"step", report.Step,
			"connections", report.Result.Connections,
			"pod", pod,
			"cpuMillicores", podUsage.CPUMillicores,
			"memoryBytes", podUsage.MemoryBytes)
		if u.Metrics != nil {
			u.Metrics.SetTargetPodUsage(namespace, pod, podUsage.CPUMillicores, podUsage.MemoryBytes)
		}
	}
}
