package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"igbridge/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSource struct {
	threads []domain.Thread
	err     error
	userID  string
}

func (s *fakeSource) ListRecentThreads(_ context.Context, limit int) ([]domain.Thread, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.threads) > limit {
		return s.threads[:limit], nil
	}
	return s.threads, nil
}

func (s *fakeSource) UserID() string { return s.userID }

type fakeFetcher struct {
	emptyFor map[string]bool
	fetched  []string
	cleaned  int
}

func (f *fakeFetcher) Fetch(_ context.Context, msg *domain.DirectMessage) *domain.FetchedContent {
	f.fetched = append(f.fetched, msg.ID)
	if f.emptyFor[msg.ID] {
		return &domain.FetchedContent{}
	}
	return &domain.FetchedContent{Text: "msg " + msg.ID}
}

func (f *fakeFetcher) Cleanup(*domain.FetchedContent) { f.cleaned++ }

type delivery struct {
	sender   string
	threadID string
	itemID   string
}

type fakeDeliverer struct {
	delivered []delivery
	err       error

	mu      sync.Mutex
	notices []string
}

func (d *fakeDeliverer) Deliver(_ context.Context, sender string, _ *domain.FetchedContent, igThreadID, igItemID string) (int, error) {
	if d.err != nil {
		return 0, d.err
	}
	d.delivered = append(d.delivered, delivery{sender, igThreadID, igItemID})
	return len(d.delivered), nil
}

func (d *fakeDeliverer) NotifyError(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notices = append(d.notices, text)
}

func (d *fakeDeliverer) noticeCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.notices)
}

func (d *fakeDeliverer) firstNotice() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.notices[0]
}

type memStore struct {
	seen map[string]bool
}

func newMemStore() *memStore { return &memStore{seen: map[string]bool{}} }

func (s *memStore) IsSeen(_ context.Context, id string) (bool, error) { return s.seen[id], nil }
func (s *memStore) MarkSeen(_ context.Context, id string) error       { s.seen[id] = true; return nil }
func (s *memStore) SaveMapping(context.Context, domain.MessageMapping) error { return nil }
func (s *memStore) GetMapping(context.Context, int, int64) (*domain.MessageMapping, error) {
	return nil, nil
}
func (s *memStore) Stats(context.Context) (int64, int64, error) { return 0, 0, nil }
func (s *memStore) Close() error                                { return nil }

// newestFirst builds a thread whose message slice is ordered newest first,
// the way the inbox API returns it.
func newestFirst(threadID, sender string, ids ...string) domain.Thread {
	msgs := make([]domain.DirectMessage, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		msgs = append(msgs, domain.DirectMessage{ID: ids[i], UserID: "u-" + sender})
	}
	return domain.Thread{
		ID:       threadID,
		Users:    []domain.ThreadUser{{ID: "u-" + sender, Username: sender}},
		Messages: msgs,
	}
}

func newTestPoller(src *fakeSource, allowed map[string]struct{}) (*Poller, *fakeFetcher, *fakeDeliverer, *memStore) {
	fetcher := &fakeFetcher{emptyFor: map[string]bool{}}
	deliverer := &fakeDeliverer{}
	store := newMemStore()
	p := NewPoller(PollerConfig{
		Source:         src,
		Fetcher:        fetcher,
		Deliverer:      deliverer,
		Store:          store,
		Interval:       time.Millisecond,
		ThreadLimit:    10,
		PerThread:      5,
		AllowedSenders: allowed,
		Logger:         testLogger(),
	})
	return p, fetcher, deliverer, store
}

func TestPollForwardsOldestFirst(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{newestFirst("t1", "alice", "m1", "m2", "m3", "m4", "m5")}}
	p, _, deliverer, _ := newTestPoller(src, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	want := []string{"m1", "m2", "m3", "m4", "m5"}
	if len(deliverer.delivered) != len(want) {
		t.Fatalf("delivered %d messages, want %d", len(deliverer.delivered), len(want))
	}
	for i, id := range want {
		if deliverer.delivered[i].itemID != id {
			t.Errorf("delivery %d = %q, want %q", i, deliverer.delivered[i].itemID, id)
		}
		if deliverer.delivered[i].sender != "alice" || deliverer.delivered[i].threadID != "t1" {
			t.Errorf("delivery %d routing = %+v", i, deliverer.delivered[i])
		}
	}
}

func TestPollPerThreadLimit(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{
		newestFirst("t1", "alice", "m1", "m2", "m3", "m4", "m5", "m6", "m7"),
	}}
	p, _, deliverer, _ := newTestPoller(src, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	// Only the five newest survive the cut, still delivered oldest first.
	want := []string{"m3", "m4", "m5", "m6", "m7"}
	if len(deliverer.delivered) != len(want) {
		t.Fatalf("delivered %d messages, want %d", len(deliverer.delivered), len(want))
	}
	for i, id := range want {
		if deliverer.delivered[i].itemID != id {
			t.Errorf("delivery %d = %q, want %q", i, deliverer.delivered[i].itemID, id)
		}
	}
}

func TestPollDedupAcrossPasses(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{newestFirst("t1", "alice", "m1", "m2")}}
	p, fetcher, deliverer, _ := newTestPoller(src, nil)

	for i := 0; i < 3; i++ {
		if err := p.PollOnce(context.Background()); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
	}

	if len(deliverer.delivered) != 2 {
		t.Fatalf("delivered %d messages across identical passes, want 2", len(deliverer.delivered))
	}
	if len(fetcher.fetched) != 2 {
		t.Errorf("fetched %d times, want 2 (seen messages must not be re-fetched)", len(fetcher.fetched))
	}
}

func TestPollSkipsOwnMessages(t *testing.T) {
	thread := newestFirst("t1", "alice", "m1")
	thread.Messages = append(thread.Messages, domain.DirectMessage{ID: "mine", UserID: "self"})
	src := &fakeSource{threads: []domain.Thread{thread}, userID: "self"}
	p, _, deliverer, store := newTestPoller(src, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if len(deliverer.delivered) != 1 || deliverer.delivered[0].itemID != "m1" {
		t.Fatalf("delivered = %+v", deliverer.delivered)
	}
	if store.seen["mine"] {
		t.Error("own message should not be marked seen")
	}
}

func TestPollAllowList(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{
		newestFirst("t1", "alice", "m1"),
		newestFirst("t2", "bob", "m2"),
	}}
	p, _, deliverer, _ := newTestPoller(src, map[string]struct{}{"alice": {}})

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if len(deliverer.delivered) != 1 || deliverer.delivered[0].sender != "alice" {
		t.Fatalf("delivered = %+v, want only alice", deliverer.delivered)
	}
}

func TestPollNilAllowListBridgesEveryone(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{
		newestFirst("t1", "alice", "m1"),
		newestFirst("t2", "bob", "m2"),
	}}
	p, _, deliverer, _ := newTestPoller(src, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(deliverer.delivered) != 2 {
		t.Fatalf("delivered %d, want 2", len(deliverer.delivered))
	}
}

func TestPollUnknownSenderWithoutParticipants(t *testing.T) {
	thread := newestFirst("t1", "alice", "m1")
	thread.Users = nil
	src := &fakeSource{threads: []domain.Thread{thread}}
	p, _, deliverer, _ := newTestPoller(src, nil)

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if len(deliverer.delivered) != 1 || deliverer.delivered[0].sender != "Unknown" {
		t.Fatalf("delivered = %+v", deliverer.delivered)
	}
}

func TestPollEmptyContentSkippedButMarkedSeen(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{newestFirst("t1", "alice", "m1")}}
	p, fetcher, deliverer, store := newTestPoller(src, nil)
	fetcher.emptyFor["m1"] = true

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if len(deliverer.delivered) != 0 {
		t.Fatalf("empty content delivered: %+v", deliverer.delivered)
	}
	if !store.seen["m1"] {
		t.Error("empty message should still count as seen")
	}
	if fetcher.cleaned != 1 {
		t.Errorf("cleanup ran %d times, want 1", fetcher.cleaned)
	}
}

func TestPollCleanupRunsOnDeliveryFailure(t *testing.T) {
	src := &fakeSource{threads: []domain.Thread{newestFirst("t1", "alice", "m1")}}
	p, fetcher, deliverer, store := newTestPoller(src, nil)
	deliverer.err = errors.New("telegram down")

	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}

	if fetcher.cleaned != 1 {
		t.Errorf("cleanup ran %d times, want 1", fetcher.cleaned)
	}
	if !store.seen["m1"] {
		t.Error("message should be marked seen before delivery is attempted")
	}

	// The failure is final: the next pass must not retry the message.
	deliverer.err = nil
	if err := p.PollOnce(context.Background()); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(deliverer.delivered) != 0 {
		t.Fatalf("failed message was re-delivered: %+v", deliverer.delivered)
	}
}

func TestPollListErrorIsReturned(t *testing.T) {
	src := &fakeSource{err: errors.New("login_required")}
	p, _, _, _ := newTestPoller(src, nil)

	err := p.PollOnce(context.Background())
	if err == nil || !strings.Contains(err.Error(), "list inbox threads") {
		t.Fatalf("err = %v", err)
	}
}

func TestRunNotifiesOwnerOnPollFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("login_required")}
	p, _, deliverer, _ := newTestPoller(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for deliverer.noticeCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("no owner notification after poll failure")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	<-done

	if !strings.Contains(deliverer.firstNotice(), "login_required") {
		t.Errorf("notice = %q", deliverer.firstNotice())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	src := &fakeSource{threads: nil}
	p, _, _, _ := newTestPoller(src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
