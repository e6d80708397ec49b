package popup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/use-agent/plugscrape/engine"
	"github.com/use-agent/plugscrape/exporter"
	"github.com/use-agent/plugscrape/i18n"
	"github.com/use-agent/plugscrape/models"
	"github.com/use-agent/plugscrape/prefs"
)

const pluginPage = `<html><body><table class="generaltable"><tbody>
<tr class="additional status-uptodate">
  <td class="pluginname"><span class="displayname"><img src="i.png"> Foo Activity </span><span class="componentname">mod_foo</span></td>
  <td class="version"><span class="release">1.2</span><span class="versionnumber">2024010100</span></td>
</tr>
<tr class="additional status-uptodate">
  <td class="pluginname"><span class="displayname">Bar Block</span><span class="componentname"> </span></td>
  <td class="version"><span class="release">3.0</span><span class="versionnumber">2024030300</span></td>
</tr>
</tbody></table></body></html>`

type fakeFetcher struct {
	html    string
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) Fetch(ctx context.Context, req *engine.FetchRequest) (*engine.FetchResult, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &engine.FetchResult{HTML: f.html, FinalURL: req.URL, EngineName: "fake"}, nil
}

type fakeRenderer struct {
	html string
}

func (r *fakeRenderer) RenderPDF(_ context.Context, html string, _ exporter.PageConfig) ([]byte, error) {
	r.html = html
	return []byte("%PDF"), nil
}

type memorySaver struct {
	mu    sync.Mutex
	saved []*exporter.Artifact
}

func (m *memorySaver) Save(_ context.Context, a *exporter.Artifact) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, a)
	return "mem://" + a.Filename, nil
}

func (m *memorySaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newDeps(t *testing.T, fetcher engine.Engine, store prefs.Store, renderer exporter.DocumentRenderer) Deps {
	t.Helper()
	if store == nil {
		store = prefs.NewMemory(nil)
	}
	return Deps{
		Store:   store,
		Catalog: i18n.Builtin(),
		Fetcher: fetcher,
		Builder: exporter.New(renderer, nil),
		Now:     func() time.Time { return testNow },
	}
}

func openSession(t *testing.T, deps Deps) *Session {
	t.Helper()
	s, err := Open(context.Background(), deps)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

const target = "https://lms.example.edu/admin/plugins.php"

func TestOpen_PersistsDefaultLanguage(t *testing.T) {
	store := prefs.NewMemory(nil)
	s := openSession(t, newDeps(t, &fakeFetcher{}, store, nil))

	if s.Language() != "en" {
		t.Errorf("Language = %q, want en", s.Language())
	}
	v, ok, _ := store.Get(context.Background(), prefs.AreaSync, prefs.KeyLanguage)
	if !ok || v != "en" {
		t.Errorf("stored language = %q, %v; want en persisted", v, ok)
	}
	if st := s.Status(); st.Outcome != OutcomeIdle {
		t.Errorf("initial status = %+v", st)
	}
}

func TestOpen_RequiresDeps(t *testing.T) {
	if _, err := Open(context.Background(), Deps{}); err == nil {
		t.Error("Open without deps should fail")
	}
}

func TestLanguage_SyncsAcrossSessions(t *testing.T) {
	store := prefs.NewMemory(nil)
	a := openSession(t, newDeps(t, &fakeFetcher{}, store, nil))
	b := openSession(t, newDeps(t, &fakeFetcher{}, store, nil))

	events, cancel := b.Watch()
	defer cancel()

	if err := a.SetLanguage(context.Background(), "fr"); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Type != EventLanguage || e.Language != "fr" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second session did not observe the language change")
	}
	if b.Language() != "fr" || b.Strings().NothingFound != "Aucun plugin additionnel trouvé." {
		t.Errorf("second session language = %q", b.Language())
	}
}

func TestSetLanguage_Unsupported(t *testing.T) {
	s := openSession(t, newDeps(t, &fakeFetcher{}, nil, nil))
	err := s.SetLanguage(context.Background(), "xx")
	if models.CodeOf(err) != models.ErrCodeInvalidInput {
		t.Errorf("err = %v, want %s", err, models.ErrCodeInvalidInput)
	}
	if s.Language() != "en" {
		t.Error("language should be unchanged")
	}
}

// interleavingStore lets another writer land right after the first write
// of trigger, before the writing session gets control back.
type interleavingStore struct {
	*prefs.Memory
	trigger, other string
	once           sync.Once
}

func (s *interleavingStore) Set(ctx context.Context, area, key, value string) (uint64, error) {
	rev, err := s.Memory.Set(ctx, area, key, value)
	if err == nil && value == s.trigger {
		s.once.Do(func() {
			_, err = s.Memory.Set(ctx, area, key, s.other)
		})
	}
	return rev, err
}

// stalledStore never delivers changes to its subscribers.
type stalledStore struct {
	*prefs.Memory
}

func (s stalledStore) Subscribe(string) (<-chan prefs.Change, uint64, func()) {
	return make(chan prefs.Change), 0, func() {}
}

func eventually(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestSetLanguage_ReflectsOwnWrite(t *testing.T) {
	s := openSession(t, newDeps(t, &fakeFetcher{}, nil, nil))
	if err := s.SetLanguage(context.Background(), " fr "); err != nil {
		t.Fatal(err)
	}
	if s.Language() != "fr" {
		t.Errorf("Language right after SetLanguage = %q, want fr", s.Language())
	}
}

func TestSetLanguage_ConcurrentWriterWins(t *testing.T) {
	tests := []struct {
		name          string
		trigger, want string
	}{
		{name: "other writer after fr", trigger: "fr", want: "en"},
		{name: "other writer after en", trigger: "en", want: "fr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mem := prefs.NewMemory(nil)
			if _, err := mem.Set(ctx, prefs.AreaSync, prefs.KeyLanguage, "de"); err != nil {
				t.Fatal(err)
			}
			store := &interleavingStore{Memory: mem, trigger: tt.trigger, other: tt.want}
			s := openSession(t, newDeps(t, &fakeFetcher{}, store, nil))
			peer := openSession(t, newDeps(t, &fakeFetcher{}, mem, nil))

			if err := s.SetLanguage(ctx, tt.trigger); err != nil {
				t.Fatal(err)
			}
			stored, _, err := mem.Get(ctx, prefs.AreaSync, prefs.KeyLanguage)
			if err != nil || stored != tt.want {
				t.Fatalf("stored = %q, %v; want %q", stored, err, tt.want)
			}
			for name, sess := range map[string]*Session{"writer": s, "peer": peer} {
				if !eventually(t, func() bool { return sess.Language() == stored }) {
					t.Errorf("%s language = %q, store holds %q", name, sess.Language(), stored)
				}
			}
		})
	}
}

func TestSetLanguage_WaitsForChangeStream(t *testing.T) {
	s := openSession(t, newDeps(t, &fakeFetcher{}, stalledStore{prefs.NewMemory(nil)}, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.SetLanguage(ctx, "fr"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	if s.Language() != "en" {
		t.Errorf("Language = %q; only the change stream may update it", s.Language())
	}
}

func TestSetLanguage_CloseReleasesWaiter(t *testing.T) {
	s := openSession(t, newDeps(t, &fakeFetcher{}, stalledStore{prefs.NewMemory(nil)}, nil))

	errc := make(chan error, 1)
	go func() { errc <- s.SetLanguage(context.Background(), "fr") }()
	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-errc:
		if models.CodeOf(err) != models.ErrCodeSessionNotFound {
			t.Errorf("err = %v, want %s", err, models.ErrCodeSessionNotFound)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("SetLanguage still blocked after Close")
	}
}

func TestExport_TextSkipsEmptyComponents(t *testing.T) {
	saver := &memorySaver{}
	s := openSession(t, newDeps(t, &fakeFetcher{html: pluginPage}, nil, nil))

	res, err := s.Export(context.Background(), Target{URL: target, Kind: models.KindText}, saver)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Count != 1 || res.Filename != "plugins_lmsexampleedu_2024-06-01.txt" || res.Engine != "fake" {
		t.Errorf("result = %+v", res)
	}
	if saver.count() != 1 || string(saver.saved[0].Content) != "mod_foo" {
		t.Fatalf("saved = %+v", saver.saved)
	}
	st := s.Status()
	if st.Outcome != OutcomeDone || st.Level != LevelNormal || st.Message != "Extraction completed. 1 plugin(s) exported." {
		t.Errorf("status = %+v", st)
	}
	if s.Busy() {
		t.Error("session still busy after export")
	}
}

func TestExport_DocumentKeepsAllRows(t *testing.T) {
	saver := &memorySaver{}
	renderer := &fakeRenderer{}
	s := openSession(t, newDeps(t, &fakeFetcher{html: pluginPage}, nil, renderer))

	res, err := s.Export(context.Background(), Target{URL: target, Kind: models.KindDocument}, saver)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if res.Count != 2 || !strings.HasSuffix(res.Filename, ".pdf") {
		t.Errorf("result = %+v", res)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(renderer.html))
	if err != nil {
		t.Fatal(err)
	}
	rows := doc.Find("tbody tr")
	if rows.Length() != 2 {
		t.Fatalf("table rows = %d, want 2", rows.Length())
	}
	first := rows.Eq(0).Find("td")
	if first.Eq(0).Text() != "Foo Activity" || first.Eq(1).Text() != "mod_foo" {
		t.Errorf("row A = %q", first.Text())
	}
	second := rows.Eq(1).Find("td")
	if second.Eq(0).Text() != "Bar Block" || second.Eq(1).Text() != "" || second.Eq(2).Text() != "3.0" || second.Eq(3).Text() != "2024030300" {
		t.Errorf("row B = %q", second.Text())
	}
}

func TestExport_NothingFoundSavesNothing(t *testing.T) {
	saver := &memorySaver{}
	s := openSession(t, newDeps(t, &fakeFetcher{html: "<html><body><p>Log in</p></body></html>"}, nil, nil))

	for _, kind := range []models.ExportKind{models.KindText, models.KindDocument} {
		_, err := s.Export(context.Background(), Target{URL: target, Kind: kind}, saver)
		if !errors.Is(err, exporter.ErrNothingFound) {
			t.Errorf("%s: err = %v, want ErrNothingFound", kind, err)
		}
	}
	if saver.count() != 0 {
		t.Errorf("saver called %d times", saver.count())
	}
	st := s.Status()
	if st.Outcome != OutcomeNothingFound || st.Level != LevelError || st.Message != "No additional plugins found." {
		t.Errorf("status = %+v", st)
	}
}

func TestExport_FetchFailureShowsGenericError(t *testing.T) {
	saver := &memorySaver{}
	store := prefs.NewMemory(nil)
	s := openSession(t, newDeps(t, &fakeFetcher{err: errors.New("dial tcp: connection refused")}, store, nil))
	if err := s.SetLanguage(context.Background(), "fr"); err != nil {
		t.Fatal(err)
	}

	_, err := s.Export(context.Background(), Target{URL: target}, saver)
	if models.CodeOf(err) != models.ErrCodePageUnavailable {
		t.Errorf("err = %v, want %s", err, models.ErrCodePageUnavailable)
	}
	st := s.Status()
	if st.Outcome != OutcomeError || st.Message != "Erreur pendant l'extraction." {
		t.Errorf("status = %+v", st)
	}
	if strings.Contains(st.Message, "refused") {
		t.Error("status leaks error detail")
	}
	if saver.count() != 0 {
		t.Error("nothing should be saved")
	}
}

func TestExport_TimeoutCode(t *testing.T) {
	deps := newDeps(t, &fakeFetcher{html: pluginPage, release: make(chan struct{})}, nil, nil)
	deps.Timeout = 20 * time.Millisecond
	s := openSession(t, deps)

	_, err := s.Export(context.Background(), Target{URL: target}, &memorySaver{})
	if models.CodeOf(err) != models.ErrCodeTimeout {
		t.Errorf("err = %v, want %s", err, models.ErrCodeTimeout)
	}
}

func TestExport_RejectsOverlappingRuns(t *testing.T) {
	fetcher := &fakeFetcher{html: pluginPage, release: make(chan struct{}), started: make(chan struct{})}
	s := openSession(t, newDeps(t, fetcher, nil, nil))
	saver := &memorySaver{}

	var (
		wg       sync.WaitGroup
		firstErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, firstErr = s.Export(context.Background(), Target{URL: target}, saver)
	}()

	<-fetcher.started
	if st := s.Status(); st.Outcome != OutcomeRunning || st.Message != "Analysis in progress…" {
		t.Errorf("status while running = %+v", st)
	}
	if _, err := s.Export(context.Background(), Target{URL: target}, saver); !errors.Is(err, ErrBusy) {
		t.Errorf("second export err = %v, want ErrBusy", err)
	}

	close(fetcher.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first export: %v", firstErr)
	}
	if saver.count() != 1 {
		t.Errorf("saved %d artifacts, want 1", saver.count())
	}
}

func TestExport_InvalidTarget(t *testing.T) {
	s := openSession(t, newDeps(t, &fakeFetcher{}, nil, nil))
	if _, err := s.Export(context.Background(), Target{}, &memorySaver{}); models.CodeOf(err) != models.ErrCodeInvalidInput {
		t.Errorf("empty URL: err = %v", err)
	}
	if _, err := s.Export(context.Background(), Target{URL: target, Kind: "csv"}, &memorySaver{}); models.CodeOf(err) != models.ErrCodeInvalidInput {
		t.Errorf("bad kind: err = %v", err)
	}
}

func TestExport_NotifierSeesProgress(t *testing.T) {
	var (
		mu       sync.Mutex
		events   []Outcome
		sessions []string
	)
	deps := newDeps(t, &fakeFetcher{html: pluginPage}, nil, nil)
	deps.Notifier = NotifierFunc(func(e Event) {
		if e.Type == EventStatus {
			mu.Lock()
			events = append(events, e.Notice.Outcome)
			sessions = append(sessions, e.Session)
			mu.Unlock()
		}
	})
	s := openSession(t, deps)
	if _, err := s.Export(context.Background(), Target{URL: target}, &memorySaver{}); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 || events[0] != OutcomeRunning || events[1] != OutcomeDone {
		t.Errorf("events = %v, want [running done]", events)
	}
	for _, id := range sessions {
		if id != s.ID() {
			t.Errorf("event session = %q, want %q", id, s.ID())
		}
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(newDeps(t, &fakeFetcher{}, nil, nil))
	s, err := r.Open(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got, ok := r.Get(s.ID(), ""); !ok || got != s {
		t.Error("Get should return the opened session")
	}
	if r.Len() != 1 || len(r.IDs()) != 1 {
		t.Errorf("Len = %d", r.Len())
	}

	events, _ := s.Watch()
	if !r.Close(s.ID(), "") {
		t.Error("Close should report an existing session")
	}
	if _, ok := <-events; ok {
		t.Error("watch channel should close with the session")
	}
	if r.Close(s.ID(), "") {
		t.Error("second Close should report a missing session")
	}

	if _, err := r.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	r.CloseAll()
	if r.Len() != 0 {
		t.Errorf("Len after CloseAll = %d", r.Len())
	}
}

func TestRegistry_SessionsBelongToTheirOwner(t *testing.T) {
	r := NewRegistry(newDeps(t, &fakeFetcher{}, nil, nil))
	defer r.CloseAll()
	s, err := r.Open(context.Background(), "key-a")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		owner string
		found bool
	}{
		{owner: "key-a", found: true},
		{owner: "key-b", found: false},
		{owner: "", found: false},
	}
	for _, tt := range tests {
		if _, ok := r.Get(s.ID(), tt.owner); ok != tt.found {
			t.Errorf("Get as %q: found = %v, want %v", tt.owner, ok, tt.found)
		}
	}
	if r.Close(s.ID(), "key-b") {
		t.Error("another owner closed the session")
	}
	if !r.Close(s.ID(), "key-a") {
		t.Error("owner could not close the session")
	}
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRegistry_ReapsIdleSessions(t *testing.T) {
	clock := &manualClock{now: testNow}
	r := NewRegistry(newDeps(t, &fakeFetcher{}, nil, nil), WithIdleTTL(10*time.Minute))
	r.now = clock.Now
	defer r.CloseAll()

	open := func() *Session {
		t.Helper()
		s, err := r.Open(context.Background(), "")
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	idle, used, watched := open(), open(), open()
	_, stopWatching := watched.Watch()

	clock.Advance(6 * time.Minute)
	if _, ok := r.Get(used.ID(), ""); !ok {
		t.Fatal("used session vanished")
	}

	clock.Advance(6 * time.Minute)
	if n := r.Len(); n != 2 {
		t.Fatalf("Len = %d, want 2 after the idle session is reaped", n)
	}
	select {
	case <-idle.done:
	default:
		t.Error("reaped session was not closed")
	}
	if _, ok := r.Get(idle.ID(), ""); ok {
		t.Error("reaped session still reachable")
	}
	if _, ok := r.Get(watched.ID(), ""); !ok {
		t.Error("session with an open watch was reaped")
	}

	stopWatching()
	clock.Advance(11 * time.Minute)
	if n := r.Len(); n != 0 {
		t.Errorf("Len = %d, want 0 once every session is idle", n)
	}
}

func TestRegistry_SessionCap(t *testing.T) {
	clock := &manualClock{now: testNow}
	r := NewRegistry(newDeps(t, &fakeFetcher{}, nil, nil), WithIdleTTL(10*time.Minute), WithMaxSessions(2))
	r.now = clock.Now
	defer r.CloseAll()

	first, err := r.Open(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(5 * time.Minute)
	if _, err := r.Open(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Open(context.Background(), ""); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third Open err = %v, want ErrTooManySessions", err)
	}

	// Once the first session has gone idle there is room again.
	clock.Advance(5*time.Minute + time.Second)
	if _, err := r.Open(context.Background(), ""); err != nil {
		t.Fatalf("Open after idle expiry: %v", err)
	}
	if _, ok := r.Get(first.ID(), ""); ok {
		t.Error("idle session should have made room")
	}
}
