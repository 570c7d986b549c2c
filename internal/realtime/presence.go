package realtime

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	wsOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_open_connections",
		Help: "Number of live websocket connections",
	})
	wsOnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_online_users",
		Help: "Number of distinct users with at least one live connection",
	})
	fanoutDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_fanout_deliveries_total",
			Help: "Events delivered to individual connections",
		},
		[]string{"event"},
	)
	fanoutFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "realtime_fanout_failures_total",
		Help: "Per-connection deliveries that failed and were dropped",
	})
)

// InitMetrics registers the realtime metrics. Call this from main.go
func InitMetrics() {
	prometheus.MustRegister(wsOpenConnections)
	prometheus.MustRegister(wsOnlineUsers)
	prometheus.MustRegister(fanoutDeliveries)
	prometheus.MustRegister(fanoutFailures)
}

// Conn is one live delivery channel. Send must not block: implementations
// queue the frame or fail fast.
type Conn interface {
	Send(data []byte) error
}

// Registry maps a user to every connection they currently hold open. A user
// key exists in the map if and only if its connection set is non-empty.
// Connect and disconnect events arrive on independent goroutines with no
// ordering guarantee, so every mutation holds the lock.
type Registry struct {
	mu     sync.RWMutex
	byUser map[int64]map[string]Conn
	owner  map[string]int64
}

func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[int64]map[string]Conn),
		owner:  make(map[string]int64),
	}
}

// Register adds the connection to the user's set. Re-registering the same
// connection id is idempotent; if it was previously attached to a different
// user it is moved.
func (r *Registry) Register(connID string, userID int64, c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.owner[connID]; ok && prev != userID {
		r.removeLocked(connID, prev)
	}

	set, ok := r.byUser[userID]
	if !ok {
		set = make(map[string]Conn)
		r.byUser[userID] = set
	}
	set[connID] = c
	r.owner[connID] = userID

	wsOpenConnections.Set(float64(len(r.owner)))
	wsOnlineUsers.Set(float64(len(r.byUser)))
}

// Unregister removes the connection from whichever user's set holds it.
// Unknown connection ids are a no-op: a disconnect can race the register
// command and lose.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.owner[connID]
	if !ok {
		return
	}
	r.removeLocked(connID, userID)

	wsOpenConnections.Set(float64(len(r.owner)))
	wsOnlineUsers.Set(float64(len(r.byUser)))
}

func (r *Registry) removeLocked(connID string, userID int64) {
	delete(r.owner, connID)
	if set, ok := r.byUser[userID]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(r.byUser, userID)
		}
	}
}

// ConnectionsFor returns a snapshot of the user's live connections. The
// returned map is a copy; callers may range over it without holding any
// lock. Absent users get an empty map, never an error.
func (r *Registry) ConnectionsFor(userID int64) map[string]Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]Conn, len(r.byUser[userID]))
	for id, c := range r.byUser[userID] {
		out[id] = c
	}
	return out
}

// OnlineUserCount reports how many distinct users hold at least one
// connection.
func (r *Registry) OnlineUserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
