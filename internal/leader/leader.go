package leader

import (
	"context"
	"sync/atomic"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/aonescu/remedy/internal/logging"
	"github.com/aonescu/remedy/internal/metrics"
)

// State is this replica's position in the election.
type State int32

const (
	StateFollower State = iota
	StateAcquiring
	StateLeader
)

func (s State) String() string {
	switch s {
	case StateLeader:
		return "leader"
	case StateAcquiring:
		return "acquiring"
	default:
		return "follower"
	}
}

// LeaseConfig holds the election timing knobs. The lease duration must
// exceed the renew deadline, which must exceed the retry period with
// jitter headroom, or the elector refuses to start.
type LeaseConfig struct {
	LeaseDuration time.Duration
	RenewDeadline time.Duration
	RetryPeriod   time.Duration
}

// Coordinator contests a shared lease and runs the supplied callback only
// while holding it. Exactly one replica in the deployment acts at a time;
// the rest idle as standbys ready to take over.
type Coordinator struct {
	lock      resourcelock.Interface
	cfg       LeaseConfig
	onStarted func(ctx context.Context)
	onStopped func()

	state atomic.Int32
}

func NewCoordinator(lock resourcelock.Interface, cfg LeaseConfig,
	onStarted func(ctx context.Context), onStopped func()) *Coordinator {
	return &Coordinator{
		lock:      lock,
		cfg:       cfg,
		onStarted: onStarted,
		onStopped: onStopped,
	}
}

// NewLeaseLock builds the coordination.k8s.io Lease lock the coordinator
// contests. Identity must be unique per replica; the pod name serves.
func NewLeaseLock(client kubernetes.Interface, namespace, name, identity string) *resourcelock.LeaseLock {
	return &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Client:    client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: identity,
		},
	}
}

// State reports the replica's current election state.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

// IsLeader reports whether this replica currently holds the lease.
func (c *Coordinator) IsLeader() bool {
	return c.State() == StateLeader
}

// Run contests the lease until ctx is cancelled. Each time leadership is
// lost the elector is rebuilt and the replica rejoins the contest, so a
// demoted leader becomes a standby rather than exiting.
func (c *Coordinator) Run(ctx context.Context) error {
	log := logging.WithComponent("leader")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.state.Store(int32(StateAcquiring))
		log.Info().Str("lock", c.lock.Describe()).Str("identity", c.lock.Identity()).
			Msg("contesting leadership lease")

		elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
			Lock:            c.lock,
			LeaseDuration:   c.cfg.LeaseDuration,
			RenewDeadline:   c.cfg.RenewDeadline,
			RetryPeriod:     c.cfg.RetryPeriod,
			ReleaseOnCancel: true,
			Name:            c.lock.Describe(),
			Callbacks: leaderelection.LeaderCallbacks{
				OnStartedLeading: func(leadCtx context.Context) {
					c.state.Store(int32(StateLeader))
					metrics.IsLeader.Set(1)
					log.Info().Msg("acquired leadership, starting work")
					if c.onStarted != nil {
						c.onStarted(leadCtx)
					}
				},
				OnStoppedLeading: func() {
					c.state.Store(int32(StateFollower))
					metrics.IsLeader.Set(0)
					log.Warn().Msg("lost leadership, stopping work")
					if c.onStopped != nil {
						c.onStopped()
					}
				},
				OnNewLeader: func(identity string) {
					if identity != c.lock.Identity() {
						log.Info().Str("leader", identity).Msg("another replica holds the lease")
					}
				},
			},
		})
		if err != nil {
			return err
		}

		// Run blocks until leadership is lost or ctx is cancelled.
		elector.Run(ctx)
		c.state.Store(int32(StateFollower))
	}
}
