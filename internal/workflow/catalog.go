package workflow

const (
	llmdRepo       = "llm-d/llm-d"
	infraRepo      = "llm-d-incubation/llm-d-infra"
	schedulerRepo  = "llm-d/llm-d-inference-scheduler"
	simulatorModel = "random"
	qwenModel      = "Qwen/Qwen3-0.6B"
	llamaModel     = "meta-llama/Llama-3.1-8B-Instruct"
	dsModel        = "deepseek-ai/DeepSeek-R1-0528"
)

var defaultDefinitions = []Definition{
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-inference-scheduling-ocp.yaml", Guide: "Inference Scheduling", Acronym: "IS", Platform: "OpenShift", Model: qwenModel, GPUType: "NVIDIA H100", GPUCount: 2},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-inference-scheduling-gke.yaml", Guide: "Inference Scheduling", Acronym: "IS", Platform: "GKE", Model: qwenModel, GPUType: "NVIDIA L4", GPUCount: 2},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-inference-scheduling-cks.yaml", Guide: "Inference Scheduling", Acronym: "IS", Platform: "CKS", Model: qwenModel, GPUType: "NVIDIA H200", GPUCount: 2},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-pd-disaggregation-ocp.yaml", Guide: "P/D Disaggregation", Acronym: "PD", Platform: "OpenShift", Model: llamaModel, GPUType: "NVIDIA H100", GPUCount: 4},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-pd-disaggregation-gke.yaml", Guide: "P/D Disaggregation", Acronym: "PD", Platform: "GKE", Model: llamaModel, GPUType: "NVIDIA H100", GPUCount: 4},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-pd-disaggregation-cks.yaml", Guide: "P/D Disaggregation", Acronym: "PD", Platform: "CKS", Model: llamaModel, GPUType: "NVIDIA H200", GPUCount: 4},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-precise-prefix-cache-ocp.yaml", Guide: "Precise Prefix Cache Aware", Acronym: "PPC", Platform: "OpenShift", Model: qwenModel, GPUType: "NVIDIA H100", GPUCount: 2},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-precise-prefix-cache-gke.yaml", Guide: "Precise Prefix Cache Aware", Acronym: "PPC", Platform: "GKE", Model: qwenModel, GPUType: "NVIDIA L4", GPUCount: 2},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-wide-ep-lws-ocp.yaml", Guide: "Wide EP LWS", Acronym: "WEP", Platform: "OpenShift", Model: dsModel, GPUType: "NVIDIA H200", GPUCount: 16},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-wide-ep-lws-cks.yaml", Guide: "Wide EP LWS", Acronym: "WEP", Platform: "CKS", Model: dsModel, GPUType: "NVIDIA H200", GPUCount: 16},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-tiered-prefix-cache-ocp.yaml", Guide: "Tiered Prefix Cache", Acronym: "TPC", Platform: "OpenShift", Model: qwenModel, GPUType: "NVIDIA H100", GPUCount: 1},
	{Repo: llmdRepo, WorkflowFile: "nightly-e2e-simulated-accelerators.yaml", Guide: "Simulated Accelerators", Acronym: "SIM", Platform: "Kind", Model: simulatorModel, GPUType: "none", GPUCount: 0},
	{Repo: infraRepo, WorkflowFile: "nightly-e2e-quickstart-kind.yaml", Guide: "Quickstart", Acronym: "QS", Platform: "Kind", Model: simulatorModel, GPUType: "none", GPUCount: 0},
	{Repo: infraRepo, WorkflowFile: "nightly-e2e-quickstart-ocp.yaml", Guide: "Quickstart", Acronym: "QS", Platform: "OpenShift", Model: qwenModel, GPUType: "NVIDIA H100", GPUCount: 1},
	{Repo: schedulerRepo, WorkflowFile: "nightly-e2e-scheduler-kind.yaml", Guide: "Inference Scheduler", Acronym: "SCH", Platform: "Kind", Model: simulatorModel, GPUType: "none", GPUCount: 0},
}
