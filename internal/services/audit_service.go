package services

import (
	"context"
	"html"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-anon-relay/internal/domain"
	"github.com/tbourn/go-anon-relay/internal/observability"
)

const (
	// MaxReportRunes is the platform's message length limit.
	MaxReportRunes = 4096
	// MaxAuditLimit caps how many records one report may request.
	MaxAuditLimit = 100

	textPreviewRunes = 50
	footerReserve    = 64
)

// AuditRepo reads the relay audit trail.
type AuditRepo interface {
	RecentRelayRecords(ctx context.Context, db *gorm.DB, limit int) ([]domain.RelayRecord, error)
	RelayStats(ctx context.Context, db *gorm.DB) (int64, *time.Time, error)
}

// AuditService renders recent relay records for the administrator.
type AuditService struct {
	DB   *gorm.DB
	Repo AuditRepo

	// AdminID is the only identity allowed to read reports; 0 disables them.
	AdminID      int64
	DefaultLimit int
	Location     *time.Location
}

// NewAuditService constructs an AuditService.
func NewAuditService(db *gorm.DB, r AuditRepo, adminID int64, defaultLimit int) *AuditService {
	return &AuditService{DB: db, Repo: r, AdminID: adminID, DefaultLimit: defaultLimit, Location: time.UTC}
}

// FormatRecent renders up to limit records, newest first, as HTML. Text
// summaries are cut to a short preview and tokens to an 8-character
// prefix. The report never exceeds MaxReportRunes.
func (s *AuditService) FormatRecent(ctx context.Context, requesterID int64, limit int) (string, error) {
	if s.AdminID == 0 || requesterID != s.AdminID {
		observability.AuditReadsTotal.WithLabelValues("refused").Inc()
		log.Warn().Int64("user_id", requesterID).Bool("admin_configured", s.AdminID != 0).Msg("audit read refused")
		return "", ErrUnauthorized
	}

	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > MaxAuditLimit {
		limit = MaxAuditLimit
	}

	recs, err := s.Repo.RecentRelayRecords(ctx, s.DB, limit)
	if err != nil {
		observability.AuditReadsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	observability.AuditReadsTotal.WithLabelValues("ok").Inc()
	if len(recs) == 0 {
		return "📭 No relay records yet.", nil
	}

	var b strings.Builder
	b.WriteString("📋 <b>Recent anonymous messages:</b>\n\n")
	used := utf8.RuneCountInString(b.String())
	shown := 0
	for _, r := range recs {
		entry := s.entry(r)
		n := utf8.RuneCountInString(entry)
		if used+n > MaxReportRunes-footerReserve {
			break
		}
		b.WriteString(entry)
		used += n
		shown++
	}

	b.WriteString("📊 Shown " + strconv.Itoa(shown))
	if total, _, err := s.Repo.RelayStats(ctx, s.DB); err == nil {
		b.WriteString(" of " + strconv.FormatInt(total, 10) + " stored")
	} else {
		log.Error().Err(err).Msg("relay stats failed")
	}

	log.Info().Int64("admin_id", requesterID).Int("shown", shown).Msg("audit report sent")
	return b.String(), nil
}

func (s *AuditService) entry(r domain.RelayRecord) string {
	when := r.Timestamp
	if t, err := domain.ParseTimestamp(r.Timestamp); err == nil {
		when = t.In(s.Location).Format("2006-01-02 15:04:05")
	}
	who := r.SenderDisplayName
	if who == "" {
		who = "ID:" + strconv.FormatInt(r.SenderID, 10)
	} else {
		who += " (ID:" + strconv.FormatInt(r.SenderID, 10) + ")"
	}

	var b strings.Builder
	b.WriteString("🕒 <b>" + html.EscapeString(when) + "</b>\n")
	b.WriteString("👤 <b>" + html.EscapeString(who) + "</b>\n")
	b.WriteString("📁 <b>" + strings.ToUpper(string(r.Kind)) + "</b>\n")
	if r.Kind == domain.KindText {
		preview := clipRunes(r.Summary, textPreviewRunes)
		b.WriteString("💬 " + html.EscapeString(preview))
		if preview != r.Summary {
			b.WriteString("...")
		}
	} else {
		b.WriteString("📄 " + html.EscapeString(r.Summary))
	}
	b.WriteString("\n🔗 " + html.EscapeString(TokenPrefix(r.Token)) + "...\n")
	b.WriteString(strings.Repeat("─", 30) + "\n\n")
	return b.String()
}
