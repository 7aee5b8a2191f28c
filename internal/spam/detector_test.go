package spam

import (
	"context"
	"sync"
	"testing"
	"time"

	"warden/internal/blacklist"
	"warden/internal/notify"
	"warden/internal/platform"
	"warden/internal/propagate"
	"warden/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory blacklist.Store.
type memStore struct {
	mu      sync.Mutex
	entries map[string]blacklist.Entry
	addErr  error
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]blacklist.Entry)}
}

func (s *memStore) IsBlocked(ctx context.Context, userID string) (*blacklist.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[userID]; ok {
		return &e, nil
	}
	return nil, nil
}

func (s *memStore) Add(ctx context.Context, entry blacklist.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.entries[entry.UserID] = entry
	return nil
}

func (s *memStore) Remove(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
	return nil
}

func (s *memStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *memStore) List(ctx context.Context) ([]blacklist.Entry, error) {
	return nil, nil
}

// stubFlags serves persisted flags for servers that may be disconnected.
type stubFlags struct {
	flags map[string]registry.Flags
}

func (s *stubFlags) ServerFlags(ctx context.Context, serverID string) (registry.Flags, error) {
	return s.flags[serverID], nil
}

// calls records the outbound side effects of one test run.
type calls struct {
	mu      sync.Mutex
	deleted []string
	banned  []string
	dms     []string
	sent    []string
}

// seen is a race-free copy of the recorded side effects.
type seen struct {
	deleted []string
	banned  []string
	dms     []string
	sent    []string
}

type fixture struct {
	detector *Detector
	registry *registry.Registry
	store    *memStore
	calls    *calls
	flags    *stubFlags
	client   *platform.MockClient
}

func setup(t *testing.T) *fixture {
	c := &calls{}
	store := newMemStore()
	flags := &stubFlags{flags: map[string]registry.Flags{}}

	client := &platform.MockClient{
		DeleteMessageFunc: func(ctx context.Context, channelID, messageID string) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.deleted = append(c.deleted, messageID)
			return nil
		},
		BanFunc: func(ctx context.Context, serverID, userID, reason string, retentionDays int) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.banned = append(c.banned, serverID+"/"+userID)
			return nil
		},
		SendDirectMessageFunc: func(ctx context.Context, userID, content string) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.dms = append(c.dms, userID)
			return nil
		},
		SendMessageFunc: func(ctx context.Context, channelID, content string) error {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.sent = append(c.sent, content)
			return nil
		},
		ResolveInviteFunc: func(ctx context.Context, code string) (*platform.Invite, error) {
			switch code {
			case "home":
				return &platform.Invite{Code: code, ServerID: "home"}, nil
			case "friendly":
				return &platform.Invite{Code: code, ServerID: "trusted-srv"}, nil
			case "offline":
				return &platform.Invite{Code: code, ServerID: "offline-trusted"}, nil
			case "evil":
				return &platform.Invite{Code: code, ServerID: "evil-srv"}, nil
			default:
				return nil, platform.ErrNotFound
			}
		},
	}

	flags.flags["trusted-srv"] = registry.Flags{Trusted: true}
	flags.flags["offline-trusted"] = registry.Flags{Trusted: true}

	reg := registry.New(flags)
	reg.Upsert(context.Background(), registry.Snapshot{ID: "home", Name: "Home", OwnerID: "the-owner"})
	reg.Upsert(context.Background(), registry.Snapshot{ID: "trusted-srv", Name: "Friendly"})

	notifier := notify.New(client, "svc")
	dispatcher := propagate.New(client, reg, notifier, 1, 4)

	detector := New(Config{
		BanJoinPeriod:     30 * 24 * time.Hour,
		SuspiciousTimeout: time.Hour,
		PrimaryServerID:   "primary",
		BotUserID:         "bot-self",
		RetentionDays:     1,
	}, client, reg, flags, store, notifier, dispatcher)

	return &fixture{detector: detector, registry: reg, store: store, calls: c, flags: flags, client: client}
}

func message(userID, content string, joinedAgo time.Duration) *platform.Message {
	return &platform.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		ServerID:  "home",
		Content:   content,
		Author: platform.Member{
			User:     platform.User{ID: userID},
			ServerID: "home",
			JoinedAt: time.Now().Add(-joinedAgo),
		},
	}
}

const resident = 90 * 24 * time.Hour
const newcomer = time.Hour

func (c *calls) snapshot() seen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return seen{deleted: c.deleted, banned: c.banned, dms: c.dms, sent: c.sent}
}

func TestInspectIgnoresCleanMessages(t *testing.T) {
	f := setup(t)
	assert.False(t, f.detector.Inspect(context.Background(), message("u1", "hello there", newcomer)))
	assert.Equal(t, 0, f.detector.Count())
}

func TestInspectExemptions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	content := "example.gg/evil"

	t.Run("bot user", func(t *testing.T) {
		assert.False(t, f.detector.Inspect(ctx, message("bot-self", content, newcomer)))
	})

	t.Run("bot flag", func(t *testing.T) {
		msg := message("some-bot", content, newcomer)
		msg.Author.User.Bot = true
		assert.False(t, f.detector.Inspect(ctx, msg))
	})

	t.Run("server owner", func(t *testing.T) {
		assert.False(t, f.detector.Inspect(ctx, message("the-owner", content, newcomer)))
	})

	t.Run("role holder", func(t *testing.T) {
		msg := message("u-roled", content, newcomer)
		msg.Author.RoleIDs = []string{"any-role"}
		assert.False(t, f.detector.Inspect(ctx, msg))
	})

	assert.Equal(t, 0, f.detector.Count())
	assert.Empty(t, f.calls.snapshot().deleted)
}

func TestInspectWhitelistedInvites(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("own server invite", func(t *testing.T) {
		assert.False(t, f.detector.Inspect(ctx, message("u1", "example.gg/home", newcomer)))
	})

	t.Run("trusted connected server", func(t *testing.T) {
		assert.False(t, f.detector.Inspect(ctx, message("u1", "example.gg/friendly", newcomer)))
	})

	t.Run("trusted but disconnected server", func(t *testing.T) {
		// Not in the live registry; the persisted flags decide.
		assert.False(t, f.detector.Inspect(ctx, message("u1", "example.gg/offline", newcomer)))
	})

	t.Run("mix of trusted and foreign is not whitelisted", func(t *testing.T) {
		assert.True(t, f.detector.Inspect(ctx, message("u1", "example.gg/friendly example.gg/evil", newcomer)))
	})

	t.Run("unresolvable invite counts against the user", func(t *testing.T) {
		assert.True(t, f.detector.Inspect(ctx, message("u2", "example.gg/expired123", newcomer)))
	})
}

func TestResidentFirstOffenseIsSoft(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	consumed := f.detector.Inspect(ctx, message("old-timer", "example.gg/evil", resident))

	// Soft path: nothing deleted, no DM, but the user is on the clock.
	assert.False(t, consumed)
	got := f.calls.snapshot()
	assert.Empty(t, got.deleted)
	assert.Empty(t, got.dms)
	assert.Equal(t, 1, f.detector.Count())
}

func TestResidentRepeatOffenseIsPunished(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.False(t, f.detector.Inspect(ctx, message("old-timer", "example.gg/evil", resident)))
	consumed := f.detector.Inspect(ctx, message("old-timer", "example.gg/evil", resident))

	assert.True(t, consumed)
	got := f.calls.snapshot()
	assert.Equal(t, []string{"msg-1"}, got.deleted)
	assert.Equal(t, []string{"old-timer"}, got.dms)
	// Residents are never auto-blacklisted.
	entry, _ := f.store.IsBlocked(ctx, "old-timer")
	assert.Nil(t, entry)
	assert.Empty(t, got.banned)
}

func TestResidentStrictServerPunishesFirstOffense(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	f.flags.flags["strict-home"] = registry.Flags{Strict: true}
	f.registry.Upsert(ctx, registry.Snapshot{ID: "strict-home", Name: "Strict"})

	msg := message("old-timer", "example.gg/evil", resident)
	msg.ServerID = "strict-home"
	msg.Author.ServerID = "strict-home"

	assert.True(t, f.detector.Inspect(ctx, msg))
	assert.Equal(t, []string{"msg-1"}, f.calls.snapshot().deleted)
}

func TestNonResidentFirstOffenseWarns(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	consumed := f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer))

	assert.True(t, consumed)
	got := f.calls.snapshot()
	assert.Equal(t, []string{"msg-1"}, got.deleted)
	assert.Equal(t, []string{"newbie"}, got.dms)
	assert.Empty(t, got.banned)
	assert.Equal(t, 1, f.detector.Count())

	entry, _ := f.store.IsBlocked(ctx, "newbie")
	assert.Nil(t, entry)
}

func TestNonResidentRepeatOffenseEscalates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.True(t, f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer)))
	consumed := f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer))
	assert.True(t, consumed)

	entry, err := f.store.IsBlocked(ctx, "newbie")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, blacklist.AutoModerator, entry.ModeratorID)
	assert.Equal(t, "home", entry.ServerID)

	got := f.calls.snapshot()
	assert.Contains(t, got.banned, "home/newbie")
	assert.Contains(t, got.banned, "primary/newbie")

	// The suspicion record is resolved by the escalation.
	assert.Equal(t, 0, f.detector.Count())
}

func TestConcurrentNonResidentOffensesEscalate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	// Park both handlers inside the message-delete call so each decision
	// is taken while the other offense is still in flight.
	var mu sync.Mutex
	waiting := 0
	release := make(chan struct{})
	f.client.DeleteMessageFunc = func(ctx context.Context, channelID, messageID string) error {
		mu.Lock()
		waiting++
		if waiting == 2 {
			close(release)
		}
		mu.Unlock()
		<-release
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer)))
		}()
	}
	wg.Wait()

	// Exactly one of the two messages is the repeat offense: the user ends
	// up blacklisted even though neither handler saw the other complete.
	entry, err := f.store.IsBlocked(ctx, "newbie")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, blacklist.AutoModerator, entry.ModeratorID)
	assert.Contains(t, f.calls.snapshot().banned, "home/newbie")
}

func TestEscalationAbortsOnStorageFailure(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.True(t, f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer)))

	f.store.mu.Lock()
	f.store.addErr = assert.AnError
	f.store.mu.Unlock()

	consumed := f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer))
	assert.True(t, consumed)

	// No ban without a stored entry.
	assert.Empty(t, f.calls.snapshot().banned)
}

func TestTimedRecordExpires(t *testing.T) {
	f := setup(t)
	f.detector.cfg.SuspiciousTimeout = 20 * time.Millisecond

	ctx := context.Background()
	require.False(t, f.detector.Inspect(ctx, message("old-timer", "example.gg/evil", resident)))
	require.Equal(t, 1, f.detector.Count())

	assert.Eventually(t, func() bool {
		return f.detector.Count() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestNonResidentMarkerDoesNotExpire(t *testing.T) {
	f := setup(t)
	f.detector.cfg.SuspiciousTimeout = 20 * time.Millisecond

	ctx := context.Background()
	require.True(t, f.detector.Inspect(ctx, message("newbie", "example.gg/evil", newcomer)))
	require.Equal(t, 1, f.detector.Count())

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.detector.Count())
}
