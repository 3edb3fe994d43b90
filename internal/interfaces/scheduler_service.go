package interfaces

// SchedulerService triggers playbook runs on their cron schedules
type SchedulerService interface {
	Start() error
	Stop() error

	// Reload re-reads playbook schedules from storage and replaces the
	// registered cron entries
	Reload() error
}
