package types

import "time"

// Condition identifies the health signal a healing rule watches.
type Condition string

const (
	ConditionCrashLoopBackOff Condition = "CrashLoopBackOff"
	ConditionRestartCount     Condition = "RestartCount"
	ConditionPodPending       Condition = "PodPending"
)

// ActionKind identifies the remediation an action spec performs.
type ActionKind string

const (
	ActionRestartPod      ActionKind = "restart_pod"
	ActionScaleDeployment ActionKind = "scale_deployment"
)

// ActionSpec is the parsed form of a playbook action string. Deployment and
// Replicas are only set when Kind is ActionScaleDeployment.
type ActionSpec struct {
	Kind       ActionKind `json:"kind"`
	Deployment string     `json:"deployment,omitempty"`
	Replicas   int32      `json:"replicas,omitempty"`
}

// HealingRule is one condition/threshold/action triple from the playbook.
// Rules are immutable after load except for the Enabled flag.
type HealingRule struct {
	Name      string     `json:"name"`
	Condition Condition  `json:"condition"`
	Threshold int        `json:"threshold"`
	Action    ActionSpec `json:"action"`
	Namespace string     `json:"namespace"`
	Enabled   bool       `json:"enabled"`
}

// MetricsSnapshot is a point-in-time copy of the agent counters, exposed
// through the stats endpoint.
type MetricsSnapshot struct {
	RulesEvaluated uint64    `json:"rules_evaluated"`
	ActionsTaken   uint64    `json:"actions_taken"`
	Errors         uint64    `json:"errors"`
	LastCheck      time.Time `json:"last_check"`
}

// ActionRecord captures one dispatch attempt and its outcome.
type ActionRecord struct {
	Rule       string    `json:"rule"`
	Action     string    `json:"action"`
	Namespace  string    `json:"namespace"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	ExecutedAt time.Time `json:"executed_at"`
}

// RCAReport holds the latest root-cause analysis text for a remediated pod.
// Purely observational; nothing on the decision path reads it.
type RCAReport struct {
	Target    string    `json:"target"`
	Namespace string    `json:"namespace"`
	Analysis  string    `json:"analysis"`
	CreatedAt time.Time `json:"created_at"`
}
