package enrich

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pbaille/cvvault/internal/domain"
	"github.com/pbaille/cvvault/internal/portfolio"
	"github.com/pbaille/cvvault/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedReflector blocks every call until release is closed, then delegates.
type gatedReflector struct {
	release chan struct{}
	calls   atomic.Int32
	next    Reflector
	text    string
}

func newGated(next Reflector) *gatedReflector {
	return &gatedReflector{release: make(chan struct{}), next: next}
}

func (g *gatedReflector) Reflect(ctx context.Context, e domain.Entry) string {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
	}
	if g.next != nil {
		return g.next.Reflect(ctx, e)
	}
	return g.text
}

type recordingEntries struct {
	Entries
	mu    sync.Mutex
	texts []string
}

func (r *recordingEntries) SetReflection(ctx context.Context, kind domain.Kind, id, text string) (bool, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return r.Entries.SetReflection(ctx, kind, id, text)
}

func newRepo(t *testing.T) *portfolio.Repository {
	t.Helper()
	r := portfolio.New(store.NewMemory(), portfolio.WithLogger(quiet))
	r.Load(context.Background())
	return r
}

func addResearch(t *testing.T, r *portfolio.Repository) domain.Experience {
	t.Helper()
	e, err := r.AddExperience(context.Background(), domain.ExperienceInput{
		Title: "Research Project", Category: domain.CategoryMath, Date: "2024-01-01", Challenge: "X", Learning: "Y",
	})
	require.NoError(t, err)
	return e
}

func TestCoordinator_NoCredentialScenario(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	e := addResearch(t, repo)

	list := repo.Experiences()
	require.Len(t, list, 1)
	assert.Equal(t, "Research Project", list[0].Title)
	assert.Empty(t, list[0].Reflection)

	gate := newGated(newTestClient(t, Settings{}))
	rec := &recordingEntries{Entries: repo}
	c := NewCoordinator(rec, gate, WithCoordinatorLogger(quiet))

	require.True(t, c.Trigger(ctx, domain.KindExperience, e.ID))
	assert.True(t, c.IsPending(domain.KindExperience, e.ID))

	close(gate.release)
	c.Wait()

	assert.False(t, c.IsPending(domain.KindExperience, e.ID))
	got, ok := repo.Get(domain.KindExperience, e.ID)
	require.True(t, ok)
	assert.Equal(t, ExperienceNoCredential, got.ReflectionText())
	assert.Equal(t, []string{ExperienceNoCredential}, rec.texts)
}

func TestCoordinator_AtMostOneInFlight(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	e := addResearch(t, repo)

	gate := newGated(nil)
	gate.text = "generated"
	c := NewCoordinator(repo, gate, WithCoordinatorLogger(quiet))

	assert.True(t, c.Trigger(ctx, domain.KindExperience, e.ID))
	assert.False(t, c.Trigger(ctx, domain.KindExperience, e.ID))

	close(gate.release)
	c.Wait()

	assert.Equal(t, int32(1), gate.calls.Load())

	// Idle again, so a new request is accepted
	assert.True(t, c.Trigger(ctx, domain.KindExperience, e.ID))
	c.Wait()
	assert.Equal(t, int32(2), gate.calls.Load())
}

func TestCoordinator_ConcurrentEntries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	a := addResearch(t, repo)
	b := addResearch(t, repo)
	edu, err := repo.AddEducation(ctx, domain.EducationInput{School: "Hill"})
	require.NoError(t, err)

	gate := newGated(nil)
	gate.text = "done"
	c := NewCoordinator(repo, gate, WithCoordinatorLogger(quiet))

	assert.True(t, c.Trigger(ctx, domain.KindExperience, a.ID))
	assert.True(t, c.Trigger(ctx, domain.KindExperience, b.ID))
	assert.True(t, c.Trigger(ctx, domain.KindEducation, edu.ID))
	assert.Equal(t, 3, c.Pending())
	assert.False(t, c.IsPending(domain.KindEducation, a.ID))

	close(gate.release)
	c.Wait()

	assert.Equal(t, 0, c.Pending())
	for _, e := range repo.Experiences() {
		assert.Equal(t, "done", e.Reflection)
	}
	assert.Equal(t, "done", repo.Education()[0].Reflection)
}

func TestCoordinator_DeleteWhilePending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	e := addResearch(t, repo)

	var res Resolution
	gate := newGated(nil)
	gate.text = "late"
	c := NewCoordinator(repo, gate,
		WithCoordinatorLogger(quiet),
		OnResolved(func(r Resolution) { res = r }),
	)

	require.True(t, c.Trigger(ctx, domain.KindExperience, e.ID))
	require.NoError(t, repo.Delete(ctx, domain.KindExperience, e.ID))

	close(gate.release)
	c.Wait()

	assert.Empty(t, repo.Experiences())
	assert.False(t, c.IsPending(domain.KindExperience, e.ID))
	assert.False(t, res.Applied)
	assert.NoError(t, res.Err)
	assert.Equal(t, "late", res.Text)
}

func TestCoordinator_MissingEntry(t *testing.T) {
	repo := newRepo(t)
	gate := newGated(nil)
	c := NewCoordinator(repo, gate, WithCoordinatorLogger(quiet))

	assert.False(t, c.Trigger(context.Background(), domain.KindEducation, "nope"))
	assert.Equal(t, int32(0), gate.calls.Load())
}

func TestCoordinator_CallerCancellationDoesNotAbort(t *testing.T) {
	repo := newRepo(t)
	e := addResearch(t, repo)

	gate := newGated(nil)
	gate.text = "kept"
	c := NewCoordinator(repo, gate, WithCoordinatorLogger(quiet))

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, c.Trigger(ctx, domain.KindExperience, e.ID))
	cancel()

	close(gate.release)
	c.Wait()

	got, _ := repo.Get(domain.KindExperience, e.ID)
	assert.Equal(t, "kept", got.ReflectionText())
}

func TestCoordinator_TimeoutResolvesToFallback(t *testing.T) {
	repo := newRepo(t)
	edu, err := repo.AddEducation(context.Background(), domain.EducationInput{School: "Hill"})
	require.NoError(t, err)

	// Never released: only the timeout ends the call
	gate := newGated(nil)
	gate.text = ""
	slow := reflectorFunc(func(ctx context.Context, e domain.Entry) string {
		gate.Reflect(ctx, e)
		if ctx.Err() != nil {
			return EducationFailed
		}
		return "unexpected"
	})
	c := NewCoordinator(repo, slow, WithCoordinatorLogger(quiet), WithTimeout(20*time.Millisecond))

	require.True(t, c.Trigger(context.Background(), domain.KindEducation, edu.ID))
	c.Wait()

	got, _ := repo.Get(domain.KindEducation, edu.ID)
	assert.Equal(t, EducationFailed, got.ReflectionText())
	assert.False(t, c.IsPending(domain.KindEducation, edu.ID))
}

type reflectorFunc func(ctx context.Context, e domain.Entry) string

func (f reflectorFunc) Reflect(ctx context.Context, e domain.Entry) string { return f(ctx, e) }
