package realtime

import "sync"

// Connection is one live push channel to a client device.
type Connection interface {
	Send(payload []byte) error
	Close() error
}

// Registry maps user ids to their live connections. A user may hold several
// at once (multi-device); all of them receive fanout. Mutated concurrently by
// every connection lifecycle, so all access goes through the lock.
type Registry struct {
	lock   sync.RWMutex
	users  map[uint64]map[Connection]struct{}
	owners map[Connection]uint64
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[uint64]map[Connection]struct{}),
		owners: make(map[Connection]uint64),
	}
}

func (r *Registry) Register(userID uint64, conn Connection) {
	r.lock.Lock()
	defer r.lock.Unlock()

	set, ok := r.users[userID]
	if !ok {
		set = make(map[Connection]struct{})
		r.users[userID] = set
	}
	set[conn] = struct{}{}
	r.owners[conn] = userID
}

// Unregister is idempotent: disconnect and timeout paths race, and removing a
// handle that is already gone is a no-op.
func (r *Registry) Unregister(conn Connection) {
	r.lock.Lock()
	defer r.lock.Unlock()

	userID, ok := r.owners[conn]
	if !ok {
		return
	}
	delete(r.owners, conn)

	set := r.users[userID]
	delete(set, conn)
	if len(set) == 0 {
		delete(r.users, userID)
	}
}

func (r *Registry) ConnectionsFor(userID uint64) []Connection {
	r.lock.RLock()
	defer r.lock.RUnlock()

	set := r.users[userID]
	if len(set) == 0 {
		return nil
	}
	conns := make([]Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

func (r *Registry) IsConnected(userID uint64) bool {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.users[userID]) > 0
}

func (r *Registry) ConnectionCount() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.owners)
}
