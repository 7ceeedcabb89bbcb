package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/efir-portal/efir-api/api/mailer"
	"github.com/efir-portal/efir-api/cases"
	"github.com/efir-portal/efir-api/databases"
	"github.com/efir-portal/efir-api/models"
)

const digestJob = "staff_digest_job"

// Locker makes sure a job only runs on one instance at a time
type Locker interface {
	TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name, owner string) error
}

// RedisLocker implements Locker with SET NX keys
type RedisLocker struct {
	Client *redis.Client
}

func lockKey(name string) string {
	return fmt.Sprintf("lock:%s", name)
}

// TryLock implements Locker
func (l RedisLocker) TryLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	locked, err := l.Client.SetNX(ctx, lockKey(name), owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return locked, nil
}

// Unlock implements Locker. Locks held by another owner are left alone.
func (l RedisLocker) Unlock(ctx context.Context, name, owner string) error {
	current, err := l.Client.Get(ctx, lockKey(name)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read lock: %w", err)
	}
	if current != owner {
		return nil
	}
	return l.Client.Del(ctx, lockKey(name)).Err()
}

// Scheduler runs the periodic staff jobs
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	Users      databases.UserDatabase
	Engine     *cases.Engine
	Mailer     mailer.Mailer
	Locker     Locker
	StaleAfter time.Duration
	instanceID string
}

// NewScheduler creates a scheduler that sends the digest on the given cron spec
func NewScheduler(spec string, users databases.UserDatabase, engine *cases.Engine, m mailer.Mailer, locker Locker, staleAfter time.Duration) *Scheduler {
	instanceID, _ := os.Hostname()
	if instanceID == "" {
		instanceID = fmt.Sprintf("instance-%d", time.Now().UnixNano())
	}

	return &Scheduler{
		cron:       cron.New(cron.WithLocation(time.UTC)),
		spec:       spec,
		Users:      users,
		Engine:     engine,
		Mailer:     m,
		Locker:     locker,
		StaleAfter: staleAfter,
		instanceID: instanceID,
	}
}

// Start registers the jobs and starts the cron loop
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.runDigest)
	if err != nil {
		return fmt.Errorf("failed to register digest job: %w", err)
	}
	s.cron.Start()
	zap.S().Infow("scheduler started", "digest", s.spec)
	return nil
}

// Stop waits for running jobs and stops the cron loop
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("scheduler stopped")
}

func (s *Scheduler) runDigest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.RunDigest(ctx); err != nil {
		zap.S().Errorw("digest job failed", "error", err)
	}
}

// RunDigest mails every admin the number of officers waiting for approval
// and the FIRs still Pending after StaleAfter. It returns the number of
// mails sent.
func (s *Scheduler) RunDigest(ctx context.Context) (int, error) {
	if s.Locker != nil {
		acquired, err := s.Locker.TryLock(ctx, digestJob, s.instanceID, 10*time.Minute)
		if err != nil {
			return 0, err
		}
		if !acquired {
			zap.S().Debug("digest job already running on another instance, skipping")
			return 0, nil
		}
		defer func() {
			if err := s.Locker.Unlock(context.Background(), digestJob, s.instanceID); err != nil {
				zap.S().Warnw("failed to release digest lock", "error", err)
			}
		}()
	}

	pending, err := s.Users.CountByRoleAndApproval(ctx, models.RoleOfficer, false)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending officers: %w", err)
	}
	stale, err := s.Engine.Stale(ctx, time.Now().UTC().Add(-s.StaleAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to find stale FIRs: %w", err)
	}
	if pending == 0 && len(stale) == 0 {
		zap.S().Info("nothing to report in the staff digest")
		return 0, nil
	}

	admins, err := s.Users.FindByRole(ctx, models.RoleAdmin)
	if err != nil {
		return 0, fmt.Errorf("failed to find admins: %w", err)
	}

	sent := 0
	for _, admin := range admins {
		if admin.Email == "" {
			continue
		}
		if err := s.Mailer.Send(ctx, mailer.Digest(admin, pending, stale, s.StaleAfter)); err != nil {
			zap.S().Errorw("failed to send digest", "admin", admin.ID.Hex(), "error", err)
			continue
		}
		sent++
	}
	zap.S().Infow("staff digest sent",
		"instance", s.instanceID,
		"admins", sent,
		"pendingOfficers", pending,
		"staleFirs", len(stale))
	return sent, nil
}
