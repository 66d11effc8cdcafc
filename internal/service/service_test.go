package service

import (
	"sync"
	"testing"

	"chatserver/internal/clog"
	"chatserver/internal/realtime"
	"chatserver/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, repository.Migrate(db))

	store, err := repository.NewStore(db)
	require.NoError(t, err)
	return store
}

type published struct {
	Event realtime.Event
	To    realtime.Recipients
}

// capturingPublisher records everything the services push to fanout.
type capturingPublisher struct {
	lock   sync.Mutex
	events []published
}

func (p *capturingPublisher) Publish(ev realtime.Event, to realtime.Recipients) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.events = append(p.events, published{Event: ev, To: to})
}

func (p *capturingPublisher) PublishToUserConversations(ev realtime.Event) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.events = append(p.events, published{Event: ev})
}

func (p *capturingPublisher) ofType(eventType realtime.EventType) []published {
	p.lock.Lock()
	defer p.lock.Unlock()

	var out []published
	for _, entry := range p.events {
		if entry.Event.Type == eventType {
			out = append(out, entry)
		}
	}
	return out
}

func (p *capturingPublisher) reset() {
	p.lock.Lock()
	p.events = nil
	p.lock.Unlock()
}

type fixture struct {
	store         *repository.Store
	publisher     *capturingPublisher
	conversations ConversationService
	messages      MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newTestStore(t)
	publisher := &capturingPublisher{}
	return &fixture{
		store:         store,
		publisher:     publisher,
		conversations: NewConversationService(store, publisher, clog.Nop()),
		messages:      NewMessageService(store, publisher, clog.Nop()),
	}
}
