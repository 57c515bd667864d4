package poll

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-contract-scanner/internal/domain"
	"tg-contract-scanner/internal/usecase/extract"
	"tg-contract-scanner/internal/usecase/report"
)

type stubScanner struct {
	many     extract.ScanResult
	manyErr  error
	single   map[string]extract.ScanResult
	errs     map[string]error
	panicked bool
	calls    int
}

func (s *stubScanner) Scan(_ context.Context, ref string) (extract.ScanResult, error) {
	if err := s.errs[ref]; err != nil {
		return extract.ScanResult{}, err
	}
	return s.single[ref], nil
}

func (s *stubScanner) ScanMany(context.Context, []string) (extract.ScanResult, error) {
	s.calls++
	if s.panicked {
		panic("boom")
	}
	return s.many, s.manyErr
}

type stubSession struct {
	tokens []domain.EnrichedToken
	closed int
	seen   []string
}

func (s *stubSession) Summary(_ context.Context, addresses []string) ([]domain.EnrichedToken, error) {
	s.seen = addresses
	return s.tokens, nil
}

func (s *stubSession) Close() error {
	s.closed++
	return nil
}

type stubNotifier struct {
	mu     sync.Mutex
	sent   []string
	failOn map[int]bool
}

func (n *stubNotifier) Send(_ context.Context, _ int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	idx := len(n.sent)
	n.sent = append(n.sent, text)
	if n.failOn[idx] {
		return errors.New("chat not found")
	}
	return nil
}

type stubReports struct {
	saved []domain.MergedRecord
}

func (r *stubReports) SaveReports(_ context.Context, _ string, records []domain.MergedRecord) error {
	r.saved = append(r.saved, records...)
	return nil
}

func TestRunCycleDeliversAllChunksDespiteFailure(t *testing.T) {
	mentions := []domain.ContractMention{{Address: "A", Channels: []string{"alpha"}, Age: "1 phút trước"}}
	tokens := make([]domain.EnrichedToken, 0, 30)
	for i := 0; i < 30; i++ {
		tokens = append(tokens, domain.EnrichedToken{Address: strings.Repeat("A", 44), Name: "Token", MarketCapLabel: "50K"})
	}
	scanner := &stubScanner{many: extract.ScanResult{Outcome: extract.Found, Mentions: mentions, Messages: 1}}
	sess := &stubSession{tokens: tokens}
	notifier := &stubNotifier{failOn: map[int]bool{0: true}}
	reports := &stubReports{}

	loop := NewLoop(scanner, func() EnrichSession { return sess }, notifier, reports, Config{Channels: []string{"alpha"}, ChunkLimit: 1000}, zerolog.Nop())
	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(notifier.sent) < 2 {
		t.Fatalf("ожидали несколько частей, отправлено %d", len(notifier.sent))
	}
	want := report.FormatTokens(report.Merge(tokens, mentions), 1000)
	if len(notifier.sent) != len(want) {
		t.Fatalf("после ошибки первой части остальные должны отправляться: %d из %d", len(notifier.sent), len(want))
	}
	if sess.closed != 1 {
		t.Fatalf("сессия должна закрываться ровно один раз, закрыта %d", sess.closed)
	}
	if len(reports.saved) != 30 {
		t.Fatalf("ожидали журнал из 30 записей, получили %d", len(reports.saved))
	}
	if len(sess.seen) != 1 || sess.seen[0] != "A" {
		t.Fatalf("в обогащение должны уходить адреса упоминаний: %v", sess.seen)
	}
}

func TestRunCycleEmptySendsPlaceholder(t *testing.T) {
	notifier := &stubNotifier{}
	loop := NewLoop(&stubScanner{many: extract.ScanResult{Outcome: extract.NoMessages}}, func() EnrichSession { return &stubSession{} }, notifier, nil, Config{}, zerolog.Nop())
	if err := loop.RunCycle(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != report.NoTokensText {
		t.Fatalf("ожидали заглушку, получили %q", notifier.sent)
	}
}

func TestRunSurvivesFailuresAndPanics(t *testing.T) {
	scanner := &stubScanner{manyErr: errors.New("all channels failed")}
	loop := NewLoop(scanner, func() EnrichSession { return &stubSession{} }, &stubNotifier{}, nil, Config{Interval: time.Hour, Backoff: time.Minute}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	var waits []time.Duration
	loop.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		switch len(waits) {
		case 1:
			scanner.manyErr = nil
			scanner.panicked = true
		case 2:
			scanner.panicked = false
		case 3:
			cancel()
			return context.Canceled
		}
		return nil
	}

	err := loop.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали остановку по отмене, получили %v", err)
	}
	if scanner.calls != 3 {
		t.Fatalf("ожидали 3 цикла, получили %d", scanner.calls)
	}
	want := []time.Duration{time.Minute, time.Minute, time.Hour}
	for i := range want {
		if waits[i] != want[i] {
			t.Fatalf("пауза %d: ожидали %v, получили %v", i, want[i], waits[i])
		}
	}
}

type stubQueue struct {
	jobs   []domain.ExtractJob
	acks   []bool
	calls  int
	cancel context.CancelFunc
}

func (q *stubQueue) Enqueue(_ context.Context, job domain.ExtractJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

// Receive отменяет контекст, когда задачи закончились.
func (q *stubQueue) Receive(ctx context.Context) (domain.ExtractJob, domain.AckFunc, error) {
	if q.calls >= len(q.jobs) {
		if q.cancel != nil {
			q.cancel()
		}
		return domain.ExtractJob{}, nil, ctx.Err()
	}
	job := q.jobs[q.calls]
	q.calls++
	return job, func(ok bool) error {
		q.acks = append(q.acks, ok)
		return nil
	}, nil
}

func TestWorkerReplies(t *testing.T) {
	scanner := &stubScanner{
		single: map[string]extract.ScanResult{
			"quiet": {Outcome: extract.NoMessages},
			"chat":  {Outcome: extract.NoContracts, Messages: 3},
			"gems":  {Outcome: extract.Found, Messages: 1, Mentions: []domain.ContractMention{{Address: "A", Age: "1 phút trước"}}},
		},
		errs: map[string]error{
			"ghost":  extract.ErrChannelNotFound,
			"broken": errors.New("rpc <timeout>"),
		},
	}
	w := NewWorker(&stubQueue{}, scanner, &stubNotifier{}, 3*time.Hour, zerolog.Nop())
	ctx := context.Background()

	cases := map[string]string{
		"quiet":  "❌ Không tìm thấy tin nhắn trong 3 giờ gần nhất.",
		"chat":   report.NoContractsText,
		"ghost":  "❌ Không tồn tại channel_id hoặc username: <code>ghost</code>",
		"broken": "Chi tiết lỗi: <code>rpc &lt;timeout&gt;</code>",
		"gems":   "🔹 <code>A</code>",
	}
	for channel, want := range cases {
		got := strings.Join(w.Reply(ctx, channel), "\n")
		if !strings.Contains(got, want) {
			t.Fatalf("канал %s: ожидали %q в %q", channel, want, got)
		}
	}
}

func TestWorkerRunAcksJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue := &stubQueue{
		jobs: []domain.ExtractJob{
			{ID: "1", ChatID: 10, Channel: "gems"},
			{ID: "2", ChatID: 0, Channel: "gems"},
			{ID: "3", ChatID: 10, Channel: "gems"},
		},
		cancel: cancel,
	}
	scanner := &stubScanner{single: map[string]extract.ScanResult{"gems": {Outcome: extract.NoMessages}}}
	notifier := &stubNotifier{failOn: map[int]bool{1: true}}
	w := NewWorker(queue, scanner, notifier, 0, zerolog.Nop())

	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидали остановку по отмене, получили %v", err)
	}
	want := []bool{true, true, false}
	if len(queue.acks) != len(want) {
		t.Fatalf("ожидали %d подтверждений, получили %v", len(want), queue.acks)
	}
	for i := range want {
		if queue.acks[i] != want[i] {
			t.Fatalf("подтверждение %d: ожидали %v, получили %v", i, want[i], queue.acks[i])
		}
	}
}

func TestHandleKeepsSendingAfterFailedChunk(t *testing.T) {
	mentions := make([]domain.ContractMention, 0, 200)
	for i := 0; i < 200; i++ {
		mentions = append(mentions, domain.ContractMention{
			Address: fmt.Sprintf("%044d", i),
			Links:   []string{fmt.Sprintf("https://t.me/gem_calls/%d", i)},
			Age:     "1 phút trước",
		})
	}
	scanner := &stubScanner{single: map[string]extract.ScanResult{
		"gems": {Outcome: extract.Found, Messages: 200, Mentions: mentions},
	}}
	notifier := &stubNotifier{failOn: map[int]bool{0: true}}
	w := NewWorker(&stubQueue{}, scanner, notifier, 0, zerolog.Nop())

	chunks := w.Reply(context.Background(), "gems")
	if len(chunks) < 2 {
		t.Fatalf("ожидали ответ из нескольких частей, получили %d", len(chunks))
	}
	if err := w.Handle(context.Background(), domain.ExtractJob{ChatID: 10, Channel: "gems"}); err != nil {
		t.Fatalf("частичный сбой не должен давать ошибку: %v", err)
	}
	if len(notifier.sent) != len(chunks) {
		t.Fatalf("ожидали %d попыток отправки, получили %d", len(chunks), len(notifier.sent))
	}

	allFail := &stubNotifier{failOn: map[int]bool{}}
	for i := range chunks {
		allFail.failOn[i] = true
	}
	w = NewWorker(&stubQueue{}, scanner, allFail, 0, zerolog.Nop())
	if err := w.Handle(context.Background(), domain.ExtractJob{ChatID: 10, Channel: "gems"}); err == nil {
		t.Fatalf("если не ушла ни одна часть, ожидали ошибку")
	}
}
