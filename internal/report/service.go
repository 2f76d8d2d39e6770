package report

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/wrap-tracker/internal/parsing"
	"github.com/zombor/wrap-tracker/internal/photo"
)

var (
	// ErrMissingSender is returned when a request carries no sender identity
	ErrMissingSender = errors.New("sender id required")

	// ErrInvalidPassword is returned by Login for a wrong or unset password
	ErrInvalidPassword = errors.New("invalid admin password")
)

// IDGenerator generates unique IDs for reports and photos
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Parser turns report text into priced entries
type Parser interface {
	Parse(text string) (*parsing.Result, error)
}

// UnrecognizedLog lists phrases that matched no catalog entry
type UnrecognizedLog interface {
	Records() ([]parsing.UnrecognizedPhrase, error)
}

// CatalogCache is a catalog source that can drop its memoized copy
type CatalogCache interface {
	Invalidate()
}

// Options configures optional Service behavior
type Options struct {
	// AdminPassword unlocks admin mode; empty disables Login
	AdminPassword string
	// PhotoTTL bounds how long uncaptioned photos wait for a report
	PhotoTTL time.Duration
	// SingleReport stores one report per message under the final date marker
	// instead of one report per distinct entry date.
	SingleReport bool
	Unrecognized UnrecognizedLog
	Catalog      CatalogCache
}

// Submission is the outcome of an accepted message
type Submission struct {
	Date         string        `json:"date"`
	Reports      []*WorkReport `json:"reports"`
	Cars         int           `json:"cars"`
	LaborCost    float64       `json:"labor_cost"`
	Photos       int           `json:"photos"`
	Buffered     bool          `json:"buffered,omitempty"`
	Unrecognized []string      `json:"unrecognized,omitempty"`
	Message      string        `json:"message"`
}

// Service handles report intake and aggregation
type Service struct {
	db          DB
	parser      Parser
	storage     Storage
	photos      *PhotoBuffer
	opts        Options
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, parser Parser, storage Storage, opts Options) *Service {
	return NewServiceWithDeps(db, parser, storage, opts, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, parser Parser, storage Storage, opts Options, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		parser:      parser,
		storage:     storage,
		photos:      NewPhotoBuffer(opts.PhotoTTL, timeSrc),
		opts:        opts,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// RegisterUser records a sender on first contact and returns the stored user
func (s *Service) RegisterUser(id, name string) (*User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMissingSender
	}
	user := &User{ID: id, Name: strings.TrimSpace(name), CreatedAt: s.timeSource.Now()}
	if err := s.db.AddUser(user); err != nil {
		return nil, fmt.Errorf("adding user: %w", err)
	}
	stored, err := s.db.GetUser(id)
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return stored, nil
}

// Login grants admin mode when the password matches
func (s *Service) Login(id, password string) error {
	if s.opts.AdminPassword == "" ||
		subtle.ConstantTimeCompare([]byte(password), []byte(s.opts.AdminPassword)) != 1 {
		slog.Warn("Rejected admin login", "user_id", id)
		return ErrInvalidPassword
	}
	if _, err := s.RegisterUser(id, ""); err != nil {
		return err
	}
	if err := s.db.SetAdmin(id); err != nil {
		return fmt.Errorf("granting admin: %w", err)
	}
	slog.Info("Admin mode granted", "user_id", id)
	return nil
}

// IsAdmin reports whether a sender is in admin mode. Unknown senders are not.
func (s *Service) IsAdmin(id string) (bool, error) {
	user, err := s.db.GetUser(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting user: %w", err)
	}
	return user.IsAdmin, nil
}

// SubmitReport parses a text report, stores it and links buffered photos
func (s *Service) SubmitReport(sender, name, text string) (*Submission, error) {
	return s.submit(sender, name, text, nil)
}

// SubmitPhoto stores a photo. With a caption the caption is processed as a
// report and the photo is linked to it; without one the photo waits in the
// sender's buffer for the next report.
func (s *Service) SubmitPhoto(sender, name, filename string, data []byte, contentType, caption string) (*Submission, error) {
	if _, err := s.RegisterUser(sender, name); err != nil {
		return nil, err
	}

	img, err := photo.Normalize(data, contentType)
	if err != nil {
		slog.Error("Failed to normalize photo",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("normalizing photo: %w", err)
	}

	id := s.idGenerator.Generate()
	now := s.timeSource.Now()
	savedName, err := s.storage.Save(fmt.Sprintf("%s/%s.%s", now.Format(monthLayout), id, img.Ext), img.Data)
	if err != nil {
		return nil, fmt.Errorf("saving photo file: %w", err)
	}

	p := &Photo{
		ID:          id,
		UserID:      sender,
		Filename:    savedName,
		ContentType: img.ContentType,
		CreatedAt:   now,
	}

	if strings.TrimSpace(caption) == "" {
		s.photos.Add(sender, p)
		return &Submission{
			Reports:  []*WorkReport{},
			Buffered: true,
			Message:  "📸 Фото получено. Пришли теперь текст отчета, чтобы связать с фото.",
		}, nil
	}

	return s.submit(sender, name, caption, []*Photo{p})
}

// submit stores the report parsed from text. Attached photos that cannot be
// linked go back to the sender's buffer.
func (s *Service) submit(sender, name, text string, attached []*Photo) (*Submission, error) {
	if _, err := s.RegisterUser(sender, name); err != nil {
		s.photos.Add(sender, attached...)
		return nil, err
	}

	result, err := s.parser.Parse(text)
	if err != nil {
		s.photos.Add(sender, attached...)
		return nil, fmt.Errorf("processing report: %w", err)
	}

	if len(result.Entries) == 0 {
		s.photos.Add(sender, attached...)
		return &Submission{
			Date:     result.Date,
			Reports:  []*WorkReport{},
			Buffered: len(attached) > 0,
			Message:  "Номера машин не найдены, отчет не сохранен.",
		}, nil
	}

	reports := s.buildReports(sender, result)
	if err := s.db.SaveReports(reports...); err != nil {
		s.photos.Add(sender, attached...)
		return nil, fmt.Errorf("saving report for %s: %w", result.Date, err)
	}

	live, expired := s.photos.Take(sender)
	s.removeFiles(expired)
	pending := append(live, attached...)
	target := photoTarget(reports, result.Date)
	for i, p := range pending {
		p.ReportID = target.ID
		p.Date = target.Date
		if err := s.db.SavePhoto(p); err != nil {
			s.photos.Add(sender, pending[i:]...)
			return nil, fmt.Errorf("saving photo: %w", err)
		}
	}

	sub := &Submission{
		Date:    result.Date,
		Reports: reports,
		Cars:    len(result.Entries),
		Photos:  len(pending),
	}
	for _, e := range result.Entries {
		sub.LaborCost += e.LaborCost
		sub.Unrecognized = append(sub.Unrecognized, e.Unrecognized...)
	}
	prefix := "✅ Отчет"
	if len(attached) > 0 {
		prefix = "✅ Отчет с фото"
	}
	sub.Message = fmt.Sprintf("%s за %s принят. Машин: %d\n🔧 Общая стоимость работ: %s ₽",
		prefix, result.Date, sub.Cars, formatNumber(sub.LaborCost))

	slog.Info("Report accepted",
		"user_id", sender,
		"date", result.Date,
		"reports", len(reports),
		"cars", sub.Cars,
		"photos", sub.Photos,
	)
	return sub, nil
}

// buildReports groups entries into one report per entry date, in order of
// first appearance, or into a single report when so configured.
func (s *Service) buildReports(userID string, result *parsing.Result) []*WorkReport {
	now := s.timeSource.Now()
	newReport := func(date string) *WorkReport {
		return &WorkReport{
			ID:        s.idGenerator.Generate(),
			UserID:    userID,
			Date:      date,
			Cars:      []Car{},
			CreatedAt: now,
		}
	}

	if s.opts.SingleReport {
		r := newReport(result.Date)
		for _, e := range result.Entries {
			r.Cars = append(r.Cars, carFromEntry(e))
		}
		return []*WorkReport{r}
	}

	var reports []*WorkReport
	byDate := make(map[string]*WorkReport)
	for _, e := range result.Entries {
		r, ok := byDate[e.Date]
		if !ok {
			r = newReport(e.Date)
			byDate[e.Date] = r
			reports = append(reports, r)
		}
		r.Cars = append(r.Cars, carFromEntry(e))
	}
	return reports
}

func carFromEntry(e parsing.ParsedEntry) Car {
	return Car{
		Plate:       e.Plate,
		Description: e.Description,
		Area:        e.Area,
		Cost:        e.Cost,
		LaborCost:   e.LaborCost,
		Date:        e.Date,
	}
}

// photoTarget picks the report dated with the message's final date marker
func photoTarget(reports []*WorkReport, date string) *WorkReport {
	for _, r := range reports {
		if r.Date == date {
			return r
		}
	}
	return reports[0]
}

// SweepPhotos deletes files of buffered photos whose TTL ran out
func (s *Service) SweepPhotos() int {
	expired := s.photos.Expire()
	s.removeFiles(expired)
	if len(expired) > 0 {
		slog.Info("Expired buffered photos", "count", len(expired))
	}
	return len(expired)
}

// PendingPhotos returns how many photos a sender has waiting for a report
func (s *Service) PendingPhotos(sender string) int {
	return s.photos.Len(sender)
}

func (s *Service) removeFiles(photos []*Photo) {
	for _, p := range photos {
		if err := s.storage.Delete(p.Filename); err != nil {
			slog.Warn("Failed to delete file", "filename", p.Filename, "error", err)
		}
	}
}

// ListPhotos returns photos linked to reports within the period
func (s *Service) ListPhotos(period Period) ([]*Photo, error) {
	photos, err := s.db.ListPhotos(period.From, period.To)
	if err != nil {
		return nil, fmt.Errorf("listing photos: %w", err)
	}
	sort.SliceStable(photos, func(i, j int) bool {
		if photos[i].Date != photos[j].Date {
			return photos[i].Date < photos[j].Date
		}
		return photos[i].CreatedAt.Before(photos[j].CreatedAt)
	})
	return photos, nil
}

// GetPhotoFile retrieves the file data for a photo
func (s *Service) GetPhotoFile(id string) ([]byte, string, error) {
	p, err := s.db.GetPhoto(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting photo: %w", err)
	}
	data, err := s.storage.Get(p.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting file: %w", err)
	}
	return data, p.ContentType, nil
}

// UnrecognizedPhrases returns the phrases logged as unknown so far
func (s *Service) UnrecognizedPhrases() ([]parsing.UnrecognizedPhrase, error) {
	if s.opts.Unrecognized == nil {
		return []parsing.UnrecognizedPhrase{}, nil
	}
	records, err := s.opts.Unrecognized.Records()
	if err != nil {
		return nil, fmt.Errorf("reading unrecognized phrases: %w", err)
	}
	return records, nil
}

// ReloadCatalog makes the next report re-read the catalog file
func (s *Service) ReloadCatalog() {
	if s.opts.Catalog == nil {
		return
	}
	s.opts.Catalog.Invalidate()
	slog.Info("Catalog cache invalidated")
}
