package services

import (
	"context"
	"time"

	"github.com/deedox/platform/pkg/logger"
	"github.com/robfig/cron/v3"
)

// MaintenanceJob is one housekeeping task; it returns how many rows it removed.
type MaintenanceJob struct {
	Name string
	Spec string
	Run  func(ctx context.Context) (int64, error)
}

// MaintenanceScheduler runs housekeeping jobs on cron schedules.
type MaintenanceScheduler struct {
	cron *cron.Cron
	jobs []MaintenanceJob
}

func NewMaintenanceScheduler(jobs ...MaintenanceJob) *MaintenanceScheduler {
	return &MaintenanceScheduler{cron: cron.New(), jobs: jobs}
}

// DefaultMaintenanceJobs prunes old system logs, expired OTP challenges and
// expired refresh tokens.
func DefaultMaintenanceJobs(logs *SystemLogService, otp *OTPService, auth *AuthService, retentionDays int) []MaintenanceJob {
	return []MaintenanceJob{
		{Name: "system_log_retention", Spec: "30 3 * * *", Run: func(ctx context.Context) (int64, error) {
			return logs.CleanupOldLogs(ctx, retentionDays)
		}},
		{Name: "otp_purge", Spec: "*/15 * * * *", Run: otp.PurgeExpired},
		{Name: "refresh_token_purge", Spec: "0 * * * *", Run: auth.PurgeExpiredRefreshTokens},
	}
}

// Start schedules every job and runs each once immediately.
func (m *MaintenanceScheduler) Start() error {
	for _, job := range m.jobs {
		job := job
		if _, err := m.cron.AddFunc(job.Spec, func() { m.run(job) }); err != nil {
			return err
		}
	}
	m.cron.Start()
	go m.RunAll()
	logger.Info().Int("jobs", len(m.jobs)).Msg("maintenance scheduler started")
	return nil
}

func (m *MaintenanceScheduler) Stop() {
	<-m.cron.Stop().Done()
}

// RunAll runs every job once, in order.
func (m *MaintenanceScheduler) RunAll() {
	for _, job := range m.jobs {
		m.run(job)
	}
}

func (m *MaintenanceScheduler) run(job MaintenanceJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	n, err := job.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job", job.Name).Msg("maintenance job failed")
		return
	}
	if n > 0 {
		logger.Info().Str("job", job.Name).Int64("removed", n).Msg("maintenance job done")
	}
}
