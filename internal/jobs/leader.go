package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// SchedulerLockID is the advisory lock held by the instance that fires
// scheduled jobs
const SchedulerLockID int64 = 0x4d61726b_00000001

// SessionConn is a connection held for the lifetime of an advisory lock.
// Advisory locks belong to the session, so the lock must be taken and
// released on the same connection.
type SessionConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// Acquirer checks a session connection out of a pool
type Acquirer func(ctx context.Context) (SessionConn, error)

// PoolAcquirer adapts a pgx pool
func PoolAcquirer(pool *pgxpool.Pool) Acquirer {
	return func(ctx context.Context) (SessionConn, error) {
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// LeaderElector elects one instance among replicas sharing a database using
// pg_try_advisory_lock. Followers retry every check interval; the leader
// pings its session and steps down when the connection goes away.
type LeaderElector struct {
	acquire       Acquirer
	lockID        int64
	lockName      string
	checkInterval time.Duration

	mu       sync.RWMutex
	conn     SessionConn
	isLeader bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewLeaderElector creates an elector for lockID. The name is used for logging.
func NewLeaderElector(acquire Acquirer, lockID int64, lockName string) *LeaderElector {
	return &LeaderElector{
		acquire:       acquire,
		lockID:        lockID,
		lockName:      lockName,
		checkInterval: 5 * time.Second,
	}
}

// Start runs the election loop until ctx ends or Stop is called
func (le *LeaderElector) Start(ctx context.Context) {
	log.Info().
		Str("lock", le.lockName).
		Int64("lock_id", le.lockID).
		Msg("Starting leader election")

	ctx, le.cancel = context.WithCancel(ctx)
	le.done = make(chan struct{})
	go le.loop(ctx)
}

// Stop ends the election and releases the lock if held
func (le *LeaderElector) Stop() {
	if le.cancel == nil {
		return
	}
	le.cancel()
	<-le.done

	log.Info().
		Str("lock", le.lockName).
		Bool("was_leader", le.IsLeader()).
		Msg("Stopping leader election")
	le.release()
}

// IsLeader reports whether this instance currently holds the lock
func (le *LeaderElector) IsLeader() bool {
	le.mu.RLock()
	defer le.mu.RUnlock()
	return le.isLeader
}

func (le *LeaderElector) loop(ctx context.Context) {
	defer close(le.done)

	ticker := time.NewTicker(le.checkInterval)
	defer ticker.Stop()

	le.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			le.tick(ctx)
		}
	}
}

// tick tries to take the lock as a follower, or confirms the session is
// still alive as the leader
func (le *LeaderElector) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if le.IsLeader() {
		var one int
		if err := le.conn.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
			log.Warn().Err(err).Str("lock", le.lockName).Msg("Lost leader lock - session is gone")
			le.mu.Lock()
			le.conn.Release()
			le.conn = nil
			le.isLeader = false
			le.mu.Unlock()
		}
		return
	}

	acquired, err := le.TryAcquireOnce(ctx)
	if err != nil {
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to try advisory lock")
		return
	}
	if acquired {
		log.Info().Str("lock", le.lockName).Msg("Acquired leader lock - this instance is now the leader")
	}
}

// TryAcquireOnce makes a single attempt at the lock without starting the loop
func (le *LeaderElector) TryAcquireOnce(ctx context.Context) (bool, error) {
	conn, err := le.acquire(ctx)
	if err != nil {
		return false, err
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", le.lockID).Scan(&acquired); err != nil {
		conn.Release()
		return false, err
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	le.mu.Lock()
	le.conn = conn
	le.isLeader = true
	le.mu.Unlock()
	return true, nil
}

func (le *LeaderElector) release() {
	le.mu.Lock()
	defer le.mu.Unlock()
	if le.conn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var released bool
	if err := le.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", le.lockID).Scan(&released); err != nil {
		log.Error().Err(err).Str("lock", le.lockName).Msg("Failed to release advisory lock")
	} else if released {
		log.Info().Str("lock", le.lockName).Msg("Released leader lock")
	}

	le.conn.Release()
	le.conn = nil
	le.isLeader = false
}
