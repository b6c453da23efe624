package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/observability"
	"github.com/tbourn/go-anon-relay/internal/session"
)

// ----- Fakes -----

type fakeUserRepo struct {
	users []domain.User
	err   error
}

func (r *fakeUserRepo) UpsertUser(ctx context.Context, db *gorm.DB, u domain.User, now time.Time) error {
	if r.err != nil {
		return r.err
	}
	r.users = append(r.users, u)
	return nil
}

type fakeRelayRepo struct {
	mu   sync.Mutex
	recs []domain.RelayRecord
	err  error
}

func (r *fakeRelayRepo) AppendRelayRecord(ctx context.Context, db *gorm.DB, rec *domain.RelayRecord, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if rec.Timestamp == "" {
		rec.Timestamp = domain.FormatTimestamp(now)
	}
	r.recs = append(r.recs, *rec)
	return nil
}

type sent struct {
	chatID  int64
	content domain.Content // nil for plain text
	text    string
}

type fakeOutbound struct {
	mu      sync.Mutex
	sent    []sent
	err     error
	textErr error // SendText only
}

func (o *fakeOutbound) SendText(ctx context.Context, chatID int64, html string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	if o.textErr != nil {
		return o.textErr
	}
	o.sent = append(o.sent, sent{chatID: chatID, text: html})
	return nil
}

func (o *fakeOutbound) SendContent(ctx context.Context, chatID int64, c domain.Content, caption string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.sent = append(o.sent, sent{chatID: chatID, content: c, text: caption})
	return nil
}

type relayFixture struct {
	svc     *RelayService
	links   *LinkService
	users   *fakeUserRepo
	records *fakeRelayRepo
	out     *fakeOutbound
	store   *session.MemoryStore
}

func newRelayFixture() *relayFixture {
	f := &relayFixture{
		links:   newTestLinkService(newFakeLinkRepo()),
		users:   &fakeUserRepo{},
		records: &fakeRelayRepo{},
		out:     &fakeOutbound{},
		store:   session.NewMemoryStore(0),
	}
	f.svc = NewRelayService(nil, f.users, f.records, f.links, f.store, f.out)
	f.svc.Location = time.UTC
	f.svc.Now = func() time.Time { return time.Date(2024, 5, 1, 12, 34, 0, 0, time.UTC) }
	return f
}

var (
	owner    = domain.Sender{ID: 1, DisplayName: "Owner Person", Username: "owner"}
	stranger = domain.Sender{ID: 2, DisplayName: "Secret Stranger", Username: "stranger_handle"}
)

// ----- Tests -----

func TestOpenLink_Branches(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)

	res, err := f.svc.OpenLink(ctx, owner, tok)
	if err != nil || res != OpenedOwnLink {
		t.Fatalf("own link: res=%v err=%v", res, err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("opening own link must not create a session")
	}

	if _, err := f.svc.OpenLink(ctx, stranger, "bogus"); !errors.Is(err, ErrLinkNotFound) {
		t.Fatalf("invalid token err = %v", err)
	}
	if f.store.Len() != 0 {
		t.Fatalf("invalid link must not create a session")
	}

	res, err = f.svc.OpenLink(ctx, stranger, tok)
	if err != nil || res != OpenedCompose {
		t.Fatalf("stranger: res=%v err=%v", res, err)
	}
	if f.store.Len() != 1 {
		t.Fatalf("compose session not opened")
	}
}

func TestRelay_TextScenario(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	before := testutil.ToFloat64(observability.RelaysTotal.WithLabelValues("text", observability.OutcomeDelivered))

	if _, err := f.svc.OpenLink(ctx, stranger, tok); err != nil {
		t.Fatalf("OpenLink: %v", err)
	}
	kind, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Text: "hello"})
	if err != nil || kind != domain.KindText {
		t.Fatalf("Relay = %s, %v", kind, err)
	}

	if len(f.out.sent) != 1 || f.out.sent[0].chatID != owner.ID {
		t.Fatalf("unexpected deliveries: %+v", f.out.sent)
	}
	msg := f.out.sent[0].text
	if !strings.Contains(msg, "hello") || !strings.Contains(msg, "12:34") {
		t.Fatalf("forwarded text missing content or stamp: %q", msg)
	}
	for _, leak := range []string{"Secret Stranger", "stranger_handle"} {
		if strings.Contains(msg, leak) {
			t.Fatalf("forwarded message leaks sender identity %q: %q", leak, msg)
		}
	}

	if len(f.records.recs) != 1 {
		t.Fatalf("records = %d; want 1", len(f.records.recs))
	}
	rec := f.records.recs[0]
	if rec.Token != tok || rec.SenderID != stranger.ID || rec.Kind != domain.KindText || rec.Summary != "hello" || rec.SenderDisplayName != "Secret Stranger" {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if f.store.Len() != 0 {
		t.Fatalf("session should be consumed")
	}
	if got := testutil.ToFloat64(observability.RelaysTotal.WithLabelValues("text", observability.OutcomeDelivered)); got != before+1 {
		t.Fatalf("delivered counter = %v; want %v", got, before+1)
	}

	// Second message without reopening the link.
	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Text: "again"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("second relay err = %v; want ErrNoSession", err)
	}
	if len(f.out.sent) != 1 || len(f.records.recs) != 1 {
		t.Fatalf("no forwarding or audit expected without a session")
	}
}

func TestRelay_LastOpenedLinkWins(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	t1 := f.links.IssueOrFetch(ctx, 10)
	t2 := f.links.IssueOrFetch(ctx, 20)

	_, _ = f.svc.OpenLink(ctx, stranger, t1)
	_, _ = f.svc.OpenLink(ctx, stranger, t2)
	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Text: "for 20"}); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if f.out.sent[0].chatID != 20 || f.records.recs[0].Token != t2 {
		t.Fatalf("relay went to %d via %q; want 20 via %q", f.out.sent[0].chatID, f.records.recs[0].Token, t2)
	}
}

func TestRelay_UnsupportedConsumesSessionWithoutRecord(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)

	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{}); !errors.Is(err, ErrUnsupportedContent) {
		t.Fatalf("err = %v; want ErrUnsupportedContent", err)
	}
	if len(f.records.recs) != 0 || len(f.out.sent) != 0 {
		t.Fatalf("unsupported payload must not be recorded or forwarded")
	}
	if f.store.Len() != 0 {
		t.Fatalf("session must be consumed even for unsupported payloads")
	}
}

func TestRelay_DeliveryFailure(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)
	f.out.err = errors.New("Forbidden: bot was blocked by the user")

	kind, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Photo: &domain.Photo{FileID: "p1", FileSize: 4096}})
	if !errors.Is(err, ErrDeliveryFailed) || kind != domain.KindPhoto {
		t.Fatalf("Relay = %s, %v; want photo, ErrDeliveryFailed", kind, err)
	}
	if strings.Contains(err.Error(), "blocked") {
		t.Fatalf("delivery error must stay generic: %v", err)
	}
	// Audit happens before forwarding.
	if len(f.records.recs) != 1 || f.records.recs[0].Summary != "Photo (4 KB)" {
		t.Fatalf("unexpected records: %+v", f.records.recs)
	}
	if f.store.Len() != 0 {
		t.Fatalf("session must be closed after a failed delivery")
	}
}

func TestRelay_AuditFailureDoesNotBlockDelivery(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)
	f.records.err = errors.New("disk full")

	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Voice: &domain.Voice{FileID: "v", Duration: 3}}); err != nil {
		t.Fatalf("Relay err = %v; want nil", err)
	}
	if len(f.out.sent) != 1 || f.out.sent[0].content == nil || f.out.sent[0].content.Kind() != domain.KindVoice {
		t.Fatalf("voice not forwarded: %+v", f.out.sent)
	}
}

func TestRelay_CaptionlessKindsSendNoticeSeparately(t *testing.T) {
	for _, in := range []*domain.Incoming{
		{Sticker: &domain.Sticker{FileID: "s"}},
		{VideoNote: &domain.VideoNote{FileID: "vn", Duration: 5}},
	} {
		f := newRelayFixture()
		ctx := context.Background()
		tok := f.links.IssueOrFetch(ctx, owner.ID)
		_, _ = f.svc.OpenLink(ctx, stranger, tok)

		if _, err := f.svc.Relay(ctx, stranger, in); err != nil {
			t.Fatalf("Relay: %v", err)
		}
		if len(f.out.sent) != 2 {
			t.Fatalf("expected media + notice, got %+v", f.out.sent)
		}
		if f.out.sent[0].content == nil || f.out.sent[0].text != "" {
			t.Fatalf("media should go out without caption: %+v", f.out.sent[0])
		}
		if f.out.sent[1].content != nil || !strings.Contains(f.out.sent[1].text, "Replies are not possible") {
			t.Fatalf("notice should follow as text: %+v", f.out.sent[1])
		}
	}
}

func TestRelay_LostNoticeStillCountsAsDelivered(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)
	f.out.textErr = errors.New("Too Many Requests: retry after 1")

	kind, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Sticker: &domain.Sticker{FileID: "s"}})
	if err != nil || kind != domain.KindSticker {
		t.Fatalf("Relay = %s, %v; want sticker, nil", kind, err)
	}
	if len(f.out.sent) != 1 || f.out.sent[0].content == nil {
		t.Fatalf("sticker should have reached the owner: %+v", f.out.sent)
	}
}

func TestRelay_LongTextArrivesUnchanged(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()
	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)

	body := strings.Repeat("z", 4096)
	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Text: body}); err != nil {
		t.Fatalf("Relay: %v", err)
	}
	if len(f.out.sent) != 2 || f.out.sent[0].text != body {
		t.Fatalf("expected the full body then the envelope, got %d sends", len(f.out.sent))
	}
	if !strings.Contains(f.out.sent[1].text, "New anonymous message") || strings.Contains(f.out.sent[1].text, "Secret Stranger") {
		t.Fatalf("envelope = %q", f.out.sent[1].text)
	}
}

func TestRemember_And_Discard(t *testing.T) {
	f := newRelayFixture()
	ctx := context.Background()

	f.svc.Remember(ctx, stranger)
	if len(f.users.users) != 1 || f.users.users[0].ID != stranger.ID || f.users.users[0].Username != "stranger_handle" {
		t.Fatalf("user not remembered: %+v", f.users.users)
	}
	f.users.err = errors.New("locked")
	f.svc.Remember(ctx, stranger) // logged, not fatal

	tok := f.links.IssueOrFetch(ctx, owner.ID)
	_, _ = f.svc.OpenLink(ctx, stranger, tok)
	f.svc.Discard(ctx, stranger.ID)
	if _, err := f.svc.Relay(ctx, stranger, &domain.Incoming{Text: "late"}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("discarded session still relayed: %v", err)
	}
}
