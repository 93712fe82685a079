package domain

// LifecycleStatus represents the phase a lifecycle event signals
type LifecycleStatus string

const (
	StatusStart   LifecycleStatus = "start"
	StatusSuccess LifecycleStatus = "success"
	StatusFail    LifecycleStatus = "fail"
)

// LifecycleEvent represents one outbound run notification
type LifecycleEvent struct {
	Status  LifecycleStatus
	Message string
}
