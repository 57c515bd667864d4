package mtproto

import (
	"context"
	"testing"
	"time"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tg-contract-scanner/internal/domain"
)

type fakeAPI struct {
	chats    []tg.ChatClass
	messages []tg.MessageClass
	calls    int
	floodFor int
}

func (f *fakeAPI) ContactsResolveUsername(_ context.Context, req *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	if req.Username == "missing" {
		return nil, tgerr.New(400, "USERNAME_NOT_OCCUPIED")
	}
	return &tg.ContactsResolvedPeer{Chats: f.chats}, nil
}

func (f *fakeAPI) MessagesGetHistory(_ context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	f.calls++
	if f.floodFor > 0 {
		f.floodFor--
		return nil, tgerr.New(420, "FLOOD_WAIT_3")
	}
	var page []tg.MessageClass
	for _, m := range f.messages {
		if req.OffsetID != 0 && m.GetID() >= req.OffsetID {
			continue
		}
		page = append(page, m)
		if len(page) == req.Limit {
			break
		}
	}
	return &tg.MessagesChannelMessages{Messages: page}, nil
}

type memCatalog struct {
	byID map[int64]domain.Channel
}

func (c *memCatalog) UpsertChannel(_ context.Context, ch domain.Channel) (domain.Channel, error) {
	c.byID[ch.TGChannelID] = ch
	return ch, nil
}

func (c *memCatalog) ListChannels(context.Context) ([]domain.Channel, error) { return nil, nil }

func (c *memCatalog) GetChannelByTGID(_ context.Context, id int64) (domain.Channel, error) {
	ch, ok := c.byID[id]
	if !ok {
		return domain.Channel{}, domain.ErrNotFound
	}
	return ch, nil
}

func newTestSource(api historyAPI, catalog domain.ChannelRepo) *Source {
	s := NewSource(api, zerolog.Nop(), WithCatalog(catalog))
	s.limiter = nil
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestParseRef(t *testing.T) {
	cases := []struct {
		in    string
		alias string
		id    int64
	}{
		{"@SolanaVolumeGroup", "solanavolumegroup", 0},
		{"https://t.me/gem_calls", "gem_calls", 0},
		{"t.me/gem_calls/", "gem_calls", 0},
		{"-1001234567890", "", 1234567890},
		{"1234567890", "", 1234567890},
	}
	for _, tc := range cases {
		alias, id, err := ParseRef(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.alias, alias, tc.in)
		require.Equal(t, tc.id, id, tc.in)
	}
	for _, bad := range []string{"", "  ", "a b", "@x", "0"} {
		_, _, err := ParseRef(bad)
		require.ErrorIs(t, err, ErrChannelNotFound, bad)
	}
}

func TestResolveChannelByAliasStoresCatalog(t *testing.T) {
	api := &fakeAPI{chats: []tg.ChatClass{&tg.Channel{ID: 42, AccessHash: 7, Title: "Gems", Username: "Gem_Calls"}}}
	catalog := &memCatalog{byID: map[int64]domain.Channel{}}
	src := newTestSource(api, catalog)

	ch, err := src.ResolveChannel(context.Background(), "@gem_calls")
	require.NoError(t, err)
	require.Equal(t, int64(42), ch.TGChannelID)
	require.Equal(t, "gem_calls", ch.Alias)
	require.Contains(t, catalog.byID, int64(42))

	_, err = src.ResolveChannel(context.Background(), "missing")
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func TestResolveChannelByNumericIDUsesCatalog(t *testing.T) {
	catalog := &memCatalog{byID: map[int64]domain.Channel{99: {TGChannelID: 99, AccessHash: 1, Title: "Private"}}}
	src := newTestSource(&fakeAPI{}, catalog)

	ch, err := src.ResolveChannel(context.Background(), "-1000000000099")
	require.NoError(t, err)
	require.Equal(t, "Private", ch.Title)

	_, err = src.ResolveChannel(context.Background(), "-100123")
	require.ErrorIs(t, err, ErrChannelNotFound)
}

func makeMessages(n int, newest time.Time) []tg.MessageClass {
	out := make([]tg.MessageClass, 0, n)
	for i := 0; i < n; i++ {
		id := n - i
		out = append(out, &tg.Message{ID: id, Date: int(newest.Add(-time.Duration(i) * time.Minute).Unix()), Message: "msg"})
	}
	return out
}

func TestIterHistoryPagesAndStops(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	api := &fakeAPI{messages: makeMessages(250, now)}
	src := newTestSource(api, nil)
	ch := domain.Channel{TGChannelID: 1, Alias: "gem_calls"}

	var posts []domain.Post
	err := src.IterHistory(context.Background(), ch, 0, func(p domain.Post) bool {
		posts = append(posts, p)
		return true
	})
	require.NoError(t, err)
	require.Len(t, posts, 250)
	require.Equal(t, 3, api.calls)
	require.Equal(t, "https://t.me/gem_calls/250", posts[0].URL)
	require.True(t, posts[0].PublishedAt.Equal(now.UTC()))

	api.calls = 0
	count := 0
	err = src.IterHistory(context.Background(), ch, 0, func(domain.Post) bool {
		count++
		return count < 5
	})
	require.NoError(t, err)
	require.Equal(t, 5, count)
	require.Equal(t, 1, api.calls)
}

func TestIterHistoryRetriesFloodWaitOnce(t *testing.T) {
	api := &fakeAPI{messages: makeMessages(3, time.Now()), floodFor: 1}
	src := newTestSource(api, nil)
	count := 0
	err := src.IterHistory(context.Background(), domain.Channel{TGChannelID: 1}, 10, func(p domain.Post) bool {
		require.Empty(t, p.URL)
		count++
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 3, count)

	api = &fakeAPI{floodFor: 2}
	src = newTestSource(api, nil)
	err = src.IterHistory(context.Background(), domain.Channel{TGChannelID: 1}, 10, func(domain.Post) bool { return true })
	require.Error(t, err)
	_, ok := tgerr.AsFloodWait(err)
	require.True(t, ok)
}

type stalledAPI struct{}

func (stalledAPI) ContactsResolveUsername(ctx context.Context, _ *tg.ContactsResolveUsernameRequest) (*tg.ContactsResolvedPeer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (stalledAPI) MessagesGetHistory(ctx context.Context, _ *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestCallsAreBoundedByTimeout(t *testing.T) {
	src := NewSource(stalledAPI{}, zerolog.Nop(), WithCallTimeout(50*time.Millisecond))
	src.limiter = nil

	done := make(chan error, 1)
	go func() {
		done <- src.IterHistory(context.Background(), domain.Channel{TGChannelID: 1}, 10, func(domain.Post) bool { return true })
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
		t.Fatalf("чтение истории зависло без таймаута")
	}

	_, err := src.ResolveChannel(context.Background(), "gem_calls")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
