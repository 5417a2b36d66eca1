package models

import "time"

// Status is the state carried by a DeploymentEvent.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusFailed     Status = "FAILED"
	StatusSucceeded  Status = "SUCCEEDED"
)

// Terminal reports whether no event may follow one with this status.
func (s Status) Terminal() bool {
	return s == StatusFailed || s == StatusSucceeded
}

// Phase is a lifecycle phase name.
type Phase string

const (
	PhaseDownloadBundle Phase = "DownloadBundle"
	PhaseBeforeInstall  Phase = "BeforeInstall"
	PhaseInstall        Phase = "Install"
	PhaseAfterInstall   Phase = "AfterInstall"
	PhaseEnd            Phase = "End"
)

// Phases returns the lifecycle phases in execution order.
func Phases() []Phase {
	return []Phase{PhaseDownloadBundle, PhaseBeforeInstall, PhaseInstall, PhaseAfterInstall, PhaseEnd}
}

type Artifact struct {
	StoreID   string `json:"store_id"`
	ObjectKey string `json:"object_key"`
}

type DeploymentRequest struct {
	Project     string   `json:"project"`
	Environment string   `json:"environment"`
	Artifact    Artifact `json:"artifact"`
}

// Validate returns the names of missing required fields.
func (r DeploymentRequest) Validate() []string {
	var missing []string
	if r.Project == "" {
		missing = append(missing, "project")
	}
	if r.Environment == "" {
		missing = append(missing, "environment")
	}
	if r.Artifact.StoreID == "" {
		missing = append(missing, "artifact.store_id")
	}
	if r.Artifact.ObjectKey == "" {
		missing = append(missing, "artifact.object_key")
	}
	return missing
}

type DeploymentEvent struct {
	DeploymentID   string    `json:"deployment_id,omitempty"`
	Project        string    `json:"project"`
	Environment    string    `json:"environment"`
	Status         Status    `json:"status"`
	Message        string    `json:"message,omitempty"`
	LifecycleEvent Phase     `json:"lifecycle_event,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type ListEventsRequest struct {
	Project     string `json:"project,omitempty"`
	Environment string `json:"environment,omitempty"`
}

// Matches applies the filters; an empty filter matches everything.
func (r ListEventsRequest) Matches(event DeploymentEvent) bool {
	if r.Project != "" && event.Project != r.Project {
		return false
	}
	if r.Environment != "" && event.Environment != r.Environment {
		return false
	}
	return true
}

// DeploymentRecord is the persisted summary of one deployment.
type DeploymentRecord struct {
	ID             string    `json:"id"`
	Project        string    `json:"project"`
	Environment    string    `json:"environment"`
	StoreID        string    `json:"store_id"`
	ObjectKey      string    `json:"object_key"`
	Status         Status    `json:"status"`
	Message        string    `json:"message,omitempty"`
	LifecycleEvent Phase     `json:"lifecycle_event,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
