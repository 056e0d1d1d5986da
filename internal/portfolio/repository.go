package portfolio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/metrics"
	"github.com/pbaille/cvvault/internal/store"
)

// Store is the durable key/value storage the repository writes through to
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Repository owns the experience and education collections, newest first
type Repository struct {
	mu          sync.Mutex
	store       Store
	log         *slog.Logger
	metrics     metrics.Recorder
	now         func() time.Time
	newID       func() string
	experiences []domain.Experience
	education   []domain.Education
}

// Option configures a Repository
type Option func(*Repository)

func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.log = l }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithClock overrides the clock used for default experience dates
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator overrides identifier generation
func WithIDGenerator(f func() string) Option {
	return func(r *Repository) { r.newID = f }
}

// New creates an empty Repository; call Load to read the stored collections
func New(s Store, opts ...Option) *Repository {
	r := &Repository{
		store:   s,
		log:     slog.Default(),
		metrics: metrics.Nop{},
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load reads both collections. A missing, unreadable or malformed record
// leaves only its own collection empty.
func (r *Repository) Load(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.experiences = loadCollection[domain.Experience](ctx, r.store, r.log, domain.KindExperience)
	r.education = loadCollection[domain.Education](ctx, r.store, r.log, domain.KindEducation)

	r.log.Info("portfolio loaded",
		"experiences", len(r.experiences),
		"education", len(r.education),
	)
}

func loadCollection[T domain.Entry](ctx context.Context, s Store, log *slog.Logger, kind domain.Kind) []T {
	log = log.With("kind", kind, "key", kind.Key())

	data, err := s.Get(ctx, kind.Key())
	if errors.Is(err, store.ErrNotFound) {
		log.Debug("no stored collection")
		return []T{}
	}
	if err != nil {
		log.Warn("read collection failed, starting empty", "error", err)
		return []T{}
	}

	var entries []T
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn("malformed collection, starting empty", "error", err)
		return []T{}
	}

	// Keep the first occurrence of any repeated identifier
	seen := make(map[string]bool, len(entries))
	out := make([]T, 0, len(entries))
	for _, e := range entries {
		if seen[e.EntryID()] {
			log.Warn("dropping duplicate entry", "id", e.EntryID())
			continue
		}
		seen[e.EntryID()] = true
		out = append(out, e)
	}
	return out
}

// AddExperience validates in, prepends a new experience and persists it
func (r *Repository) AddExperience(ctx context.Context, in domain.ExperienceInput) (domain.Experience, error) {
	if err := in.Validate(); err != nil {
		return domain.Experience{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	category := domain.CategoryMath
	if in.Category != "" {
		category, _ = domain.ParseCategory(string(in.Category))
	}
	date := in.Date
	if strings.TrimSpace(date) == "" {
		date = r.now().Format(time.DateOnly)
	}

	entry := domain.Experience{
		ID:        r.newID(),
		Title:     in.Title,
		Category:  category,
		Date:      date,
		Challenge: in.Challenge,
		Learning:  in.Learning,
		Link:      in.Link,
	}

	next := prepend(r.experiences, entry)
	if err := r.write(ctx, domain.KindExperience, next); err != nil {
		return domain.Experience{}, err
	}
	r.experiences = next
	r.metrics.RecordMutation(string(domain.KindExperience), "create")

	r.log.Info("experience added", "id", entry.ID, "title", entry.Title)
	return entry, nil
}

// AddEducation validates in, prepends a new education entry and persists it
func (r *Repository) AddEducation(ctx context.Context, in domain.EducationInput) (domain.Education, error) {
	if err := in.Validate(); err != nil {
		return domain.Education{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := domain.Education{
		ID:            r.newID(),
		School:        in.School,
		Qualification: in.Qualification,
		Dates:         in.Dates,
		Subjects:      in.Subjects,
		Notes:         in.Notes,
	}

	next := prepend(r.education, entry)
	if err := r.write(ctx, domain.KindEducation, next); err != nil {
		return domain.Education{}, err
	}
	r.education = next
	r.metrics.RecordMutation(string(domain.KindEducation), "create")

	r.log.Info("education added", "id", entry.ID, "school", entry.School)
	return entry, nil
}

// Delete removes the entry with id. Deleting an absent id writes nothing.
func (r *Repository) Delete(ctx context.Context, kind domain.Kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case domain.KindExperience:
		next, ok := without(r.experiences, id)
		if !ok {
			return nil
		}
		if err := r.write(ctx, kind, next); err != nil {
			return err
		}
		r.experiences = next
	case domain.KindEducation:
		next, ok := without(r.education, id)
		if !ok {
			return nil
		}
		if err := r.write(ctx, kind, next); err != nil {
			return err
		}
		r.education = next
	default:
		return fmt.Errorf("unknown entry kind %q", kind)
	}

	r.metrics.RecordMutation(string(kind), "delete")
	r.log.Info("entry deleted", "kind", kind, "id", id)
	return nil
}

// SetReflection overwrites the reflection of entry id. It reports false,
// without error, when the entry no longer exists.
func (r *Repository) SetReflection(ctx context.Context, kind domain.Kind, id, text string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case domain.KindExperience:
		i := indexOf(r.experiences, id)
		if i < 0 {
			return false, nil
		}
		next := slices.Clone(r.experiences)
		next[i].Reflection = text
		if err := r.write(ctx, kind, next); err != nil {
			return false, err
		}
		r.experiences = next
	case domain.KindEducation:
		i := indexOf(r.education, id)
		if i < 0 {
			return false, nil
		}
		next := slices.Clone(r.education)
		next[i].Reflection = text
		if err := r.write(ctx, kind, next); err != nil {
			return false, err
		}
		r.education = next
	default:
		return false, fmt.Errorf("unknown entry kind %q", kind)
	}

	r.metrics.RecordMutation(string(kind), "reflect")
	return true, nil
}

// Experiences returns a copy of the experience collection, newest first
func (r *Repository) Experiences() []domain.Experience {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.experiences)
}

// Education returns a copy of the education collection, newest first
func (r *Repository) Education() []domain.Education {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.education)
}

// List returns the collection of kind as a sequence of entries
func (r *Repository) List(kind domain.Kind) []domain.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case domain.KindExperience:
		return asEntries(r.experiences)
	case domain.KindEducation:
		return asEntries(r.education)
	}
	return nil
}

// Get returns a snapshot of entry id
func (r *Repository) Get(kind domain.Kind, id string) (domain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case domain.KindExperience:
		if i := indexOf(r.experiences, id); i >= 0 {
			return r.experiences[i], true
		}
	case domain.KindEducation:
		if i := indexOf(r.education, id); i >= 0 {
			return r.education[i], true
		}
	}
	return nil, false
}

// Resolve expands an identifier prefix to the single matching full id
func (r *Repository) Resolve(kind domain.Kind, prefix string) (string, error) {
	if prefix == "" {
		return "", fmt.Errorf("entry id is required")
	}

	var match string
	for _, e := range r.List(kind) {
		if !strings.HasPrefix(e.EntryID(), prefix) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("ambiguous id prefix %q", prefix)
		}
		match = e.EntryID()
	}
	if match == "" {
		return "", fmt.Errorf("entry not found: %s", prefix)
	}
	return match, nil
}

// Backup is a full export of both collections
type Backup struct {
	ExportedAt  time.Time           `json:"exported_at" yaml:"exported_at"`
	Experiences []domain.Experience `json:"experiences" yaml:"experiences"`
	Education   []domain.Education  `json:"education" yaml:"education"`
}

// Export snapshots both collections at the same instant
func (r *Repository) Export() Backup {
	r.mu.Lock()
	defer r.mu.Unlock()

	return Backup{
		ExportedAt:  r.now().UTC(),
		Experiences: slices.Clone(r.experiences),
		Education:   slices.Clone(r.education),
	}
}

// write persists a candidate collection; callers commit it only on success
func (r *Repository) write(ctx context.Context, kind domain.Kind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s collection: %w", kind, err)
	}
	if err := r.store.Put(ctx, kind.Key(), data); err != nil {
		r.metrics.RecordPersistFailure(string(kind))
		r.log.Error("persist failed", "kind", kind, "error", err)
		return fmt.Errorf("persist %s collection: %w", kind, err)
	}
	return nil
}

func prepend[T any](s []T, v T) []T {
	out := make([]T, 0, len(s)+1)
	out = append(out, v)
	return append(out, s...)
}

func indexOf[T domain.Entry](s []T, id string) int {
	return slices.IndexFunc(s, func(e T) bool { return e.EntryID() == id })
}

func without[T domain.Entry](s []T, id string) ([]T, bool) {
	i := indexOf(s, id)
	if i < 0 {
		return s, false
	}
	out := make([]T, 0, len(s)-1)
	out = append(out, s[:i]...)
	return append(out, s[i+1:]...), true
}

func asEntries[T domain.Entry](s []T) []domain.Entry {
	out := make([]domain.Entry, len(s))
	for i, e := range s {
		out[i] = e
	}
	return out
}
