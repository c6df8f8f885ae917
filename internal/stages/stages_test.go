package stages

import (
	"bytes"
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kylegalloway/applyflow/internal/browser"
	"github.com/kylegalloway/applyflow/internal/logging"
)

const listingsURL = "https://portal.test/internships/"

// syncBuffer guards a bytes.Buffer shared by the logger.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testSelectors() Selectors {
	return Selectors{
		LoginButton:     browser.Select("#login"),
		Email:           browser.Select("#email"),
		Password:        browser.Select("#password"),
		LoginSubmit:     browser.Select("#login-submit"),
		InternshipsLink: browser.Select("#internships"),
		WorkFromHome:    browser.Select("#wfh", "#wfh-alt"),
		PartTime:        browser.Select("#part-time"),
		SearchInput:     browser.Select("input.search"),
		Listing:         browser.Select(".listing", ".listing-alt"),
		Continue:        browser.Select("#continue"),
		CoverLetter:     browser.Select("#cover"),
		Submit:          browser.Select("#submit"),
		Question:        browser.Select(".question"),
		AnswerField:     browser.Select("textarea"),
		QuestionLabel:   "label",
	}
}

func testDeps(page browser.Page) (Deps, *syncBuffer) {
	logs := &syncBuffer{}
	return Deps{
		Exec: browser.NewExecutor(page, browser.Options{Timeout: 50 * time.Millisecond, PollInterval: 2 * time.Millisecond}),
		Sel:  testSelectors(),
		Timing: Timing{
			MaxRetries:    3,
			RetryDelay:    time.Millisecond,
			FilterTimeout: 20 * time.Millisecond,
		},
		Log: logging.NewWriter(logs, logs),
	}, logs
}

func contains(calls []string, want string) bool {
	for _, c := range calls {
		if c == want {
			return true
		}
	}
	return false
}

func TestAuthenticationSuccess(t *testing.T) {
	page := browser.NewFakePage(map[string]int{
		"#login": 1, "#email": 1, "#password": 1, "#login-submit": 1,
	})
	deps, _ := testDeps(page)
	auth := &Authentication{Deps: deps, BaseURL: "https://portal.test/"}

	if err := auth.Run(context.Background(), Credentials{Email: "a@b.c", Password: "pw"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := page.Typed("#email", 0); got != "a@b.c" {
		t.Errorf("email typed %q", got)
	}
	if got := page.Typed("#password", 0); got != "pw" {
		t.Errorf("password typed %q", got)
	}
	calls := page.Calls()
	if calls[0] != "navigate https://portal.test/" {
		t.Errorf("first call = %q", calls[0])
	}
	if calls[len(calls)-1] != "wait-navigation" {
		t.Errorf("last call = %q, want wait-navigation", calls[len(calls)-1])
	}
}

func TestAuthenticationFailureIsFatal(t *testing.T) {
	page := browser.NewFakePage(map[string]int{"#email": 1})
	deps, _ := testDeps(page)
	auth := &Authentication{Deps: deps, BaseURL: "https://portal.test/"}

	err := auth.Run(context.Background(), Credentials{Email: "a@b.c", Password: "pw"})
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FatalError", err)
	}
	if fe.Stage != StageAuthentication {
		t.Errorf("stage = %q", fe.Stage)
	}
	if !errors.Is(err, browser.ErrElementNotFound) {
		t.Errorf("err = %v, want ErrElementNotFound in chain", err)
	}
}

func TestAuthenticationNavigationTimeoutIsFatal(t *testing.T) {
	page := browser.NewFakePage(map[string]int{
		"#login": 1, "#email": 1, "#password": 1, "#login-submit": 1,
	})
	page.WaitNavErr = context.DeadlineExceeded
	deps, _ := testDeps(page)
	auth := &Authentication{Deps: deps, BaseURL: "https://portal.test/"}

	err := auth.Run(context.Background(), Credentials{Email: "a", Password: "b"})
	if !IsFatal(err) || !errors.Is(err, browser.ErrNavigationTimeout) {
		t.Errorf("err = %v, want fatal navigation timeout", err)
	}
}

func searchPage() *browser.FakePage {
	return browser.NewFakePage(map[string]int{
		"#internships": 1, "#wfh": 1, "#part-time": 1, "input.search": 2,
	})
}

func TestSearchAppliesFiltersAndKeywords(t *testing.T) {
	page := searchPage()
	deps, _ := testDeps(page)
	s := &SearchAndFilter{
		Deps:        deps,
		ListingsURL: listingsURL,
		Prefs: Preferences{
			Profile:      "Go\nDeveloper",
			Location:     "Pune",
			WorkFromHome: true,
			PartTime:     true,
		},
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	clicked := page.Clicked()
	for _, want := range []string{"#internships[0]", "#wfh[0]", "#part-time[0]", "input.search[0]", "input.search[1]"} {
		if !contains(clicked, want) {
			t.Errorf("clicked %v, missing %s", clicked, want)
		}
	}
	if got := page.Typed("input.search", 0); got != "Go Developer" {
		t.Errorf("profile typed %q, want single line", got)
	}
	if got := page.Typed("input.search", 1); got != "Pune" {
		t.Errorf("location typed %q", got)
	}
	if contains(page.Calls(), "navigate "+listingsURL) {
		t.Error("should not navigate directly when the link works")
	}
}

func TestSearchFallsBackToListingsURL(t *testing.T) {
	page := browser.NewFakePage(map[string]int{"input.search": 1})
	deps, _ := testDeps(page)
	s := &SearchAndFilter{Deps: deps, ListingsURL: listingsURL, Prefs: Preferences{Profile: "Go"}}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(page.Calls(), "navigate "+listingsURL) {
		t.Errorf("calls %v, want direct navigation", page.Calls())
	}
}

func TestSearchListingsUnreachableIsFatal(t *testing.T) {
	page := browser.NewFakePage(nil)
	page.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	deps, _ := testDeps(page)
	s := &SearchAndFilter{Deps: deps, ListingsURL: listingsURL, Prefs: Preferences{Profile: "Go"}}

	err := s.Run(context.Background())
	var fe *FatalError
	if !errors.As(err, &fe) || fe.Stage != StageSearch {
		t.Errorf("err = %v, want fatal search error", err)
	}
}

func TestSearchMissingFiltersAreLogged(t *testing.T) {
	page := browser.NewFakePage(map[string]int{"#internships": 1, "#wfh-alt": 1, "input.search": 1})
	deps, logs := testDeps(page)
	s := &SearchAndFilter{
		Deps:  deps,
		Prefs: Preferences{Profile: "Go", WorkFromHome: true, PartTime: true},
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !contains(page.Clicked(), "#wfh-alt[0]") {
		t.Error("work from home filter should use the fallback selector")
	}
	if !strings.Contains(logs.String(), "Failed to apply part-time filter") {
		t.Errorf("logs missing part-time failure:\n%s", logs.String())
	}
}

func TestSearchProfileRetriesThenSucceeds(t *testing.T) {
	page := searchPage()
	var mu sync.Mutex
	failures := 2
	page.EvalFunc = func(s browser.Script, out any) error {
		mu.Lock()
		defer mu.Unlock()
		if failures > 0 {
			failures--
			return errors.New("detached node")
		}
		return nil
	}
	deps, logs := testDeps(page)
	s := &SearchAndFilter{Deps: deps, Prefs: Preferences{Profile: "Go"}}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := page.Typed("input.search", 0); got != "Go" {
		t.Errorf("typed %q, want exactly one successful entry", got)
	}
	if n := strings.Count(logs.String(), "Profile search attempt"); n != 2 {
		t.Errorf("logged %d retries, want 2", n)
	}
}

func TestSearchProfileExhaustionIsNotFatal(t *testing.T) {
	page := browser.NewFakePage(map[string]int{"#internships": 1})
	deps, logs := testDeps(page)
	s := &SearchAndFilter{Deps: deps, Prefs: Preferences{Profile: "Go"}}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	out := logs.String()
	if !strings.Contains(out, "Failed to enter profile search") || !strings.Contains(out, "retry exhausted after 3 attempt(s)") {
		t.Errorf("logs missing exhaustion:\n%s", out)
	}
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name     string
		elements map[string]int
		wantN    int
		wantSel  string
	}{
		{"none", nil, 0, ""},
		{"primary", map[string]int{".listing": 3}, 3, ".listing"},
		{"fallback", map[string]int{".listing-alt": 2}, 2, ".listing-alt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps, _ := testDeps(browser.NewFakePage(tt.elements))
			items, err := Discover(context.Background(), deps)
			if err != nil {
				t.Fatalf("Discover: %v", err)
			}
			if len(items) != tt.wantN {
				t.Fatalf("len(items) = %d, want %d", len(items), tt.wantN)
			}
			for i, it := range items {
				if it.Index != i || it.Locator.Index != i || it.Outcome != Pending {
					t.Errorf("item %d = %+v", i, it)
				}
				if !reflect.DeepEqual(it.Locator.Candidates, []string{tt.wantSel}) {
					t.Errorf("item %d candidates = %v", i, it.Locator.Candidates)
				}
			}
		})
	}
}

func submissionPage() *browser.FakePage {
	return browser.NewFakePage(map[string]int{
		".listing": 2, "#continue": 1, "#cover": 1, "#submit": 1,
	})
}

func TestSubmissionSuccess(t *testing.T) {
	page := submissionPage()
	deps, _ := testDeps(page)
	sub := &ApplicationSubmission{
		Deps:        deps,
		CoverLetter: "Dear team,\r\nhello",
		Assessment:  &AssessmentAnswering{Deps: deps},
	}
	item := Item{Index: 1, Locator: browser.Select(".listing").Nth(1)}

	if err := sub.Run(context.Background(), &item); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if item.Outcome != Applied {
		t.Errorf("outcome = %v, want applied", item.Outcome)
	}
	want := []string{".listing[1]", "#continue[0]", "#submit[0]"}
	if got := page.Clicked(); !reflect.DeepEqual(got, want) {
		t.Errorf("clicked %v, want %v", got, want)
	}
	if got := page.Typed("#cover", 0); got != "Dear team,\nhello" {
		t.Errorf("cover letter typed %q", got)
	}
}

func TestSubmissionFailureStopsItem(t *testing.T) {
	page := browser.NewFakePage(map[string]int{".listing": 1, "#cover": 1, "#submit": 1})
	deps, _ := testDeps(page)
	sub := &ApplicationSubmission{Deps: deps, CoverLetter: "x"}
	item := Item{Index: 0, Locator: browser.Select(".listing").Nth(0)}

	err := sub.Run(context.Background(), &item)
	if err == nil {
		t.Fatal("expected error when continue is missing")
	}
	if IsFatal(err) {
		t.Error("item failures must not be fatal")
	}
	if item.Outcome != Failed {
		t.Errorf("outcome = %v, want failed", item.Outcome)
	}
	if contains(page.Clicked(), "#submit[0]") {
		t.Error("submit should not be clicked after a failed step")
	}
}

// assessmentPage renders n question blocks. Questions listed in unscoped
// keep their text area outside the block.
func assessmentPage(n int, unscoped map[int]bool, labelErr map[int]bool) (*browser.FakePage, *[]string) {
	page := browser.NewFakePage(map[string]int{".question": n, "textarea": n})
	var mu sync.Mutex
	var filled []string
	page.EvalFunc = func(s browser.Script, out any) error {
		mu.Lock()
		defer mu.Unlock()
		switch s.Func {
		case labelScript:
			if labelErr[s.Target.Index] {
				return errors.New("stale element")
			}
			*out.(*string) = "Question " + string(rune('A'+s.Target.Index))
		case scopedAnswerScript:
			ok := !unscoped[s.Target.Index]
			if ok {
				filled = append(filled, s.Target.String())
			}
			*out.(*bool) = ok
		case answerScript:
			filled = append(filled, s.Target.String())
			*out.(*bool) = true
		}
		return nil
	}
	return page, &filled
}

func TestAssessmentSkipsLeadingElement(t *testing.T) {
	page, filled := assessmentPage(3, nil, nil)
	deps, _ := testDeps(page)
	var asked []string
	a := &AssessmentAnswering{
		Deps: deps,
		Answer: func(q string) string {
			asked = append(asked, q)
			return "answer"
		},
	}

	n, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Errorf("answered %d, want 2", n)
	}
	if want := []string{"Question B", "Question C"}; !reflect.DeepEqual(asked, want) {
		t.Errorf("asked %v, want %v", asked, want)
	}
	if want := []string{".question[1]", ".question[2]"}; !reflect.DeepEqual(*filled, want) {
		t.Errorf("filled %v, want %v", *filled, want)
	}
}

func TestAssessmentIncludeFirst(t *testing.T) {
	page, _ := assessmentPage(3, nil, nil)
	deps, _ := testDeps(page)
	a := &AssessmentAnswering{Deps: deps, IncludeFirst: true, Answer: FixedAnswer("x")}

	n, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 3 {
		t.Errorf("answered %d, want 3", n)
	}
}

func TestAssessmentFallsBackToGlobalField(t *testing.T) {
	page, filled := assessmentPage(3, map[int]bool{2: true}, nil)
	deps, _ := testDeps(page)
	a := &AssessmentAnswering{Deps: deps, Answer: FixedAnswer("x")}

	if _, err := a.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{".question[1]", "textarea[1]"}; !reflect.DeepEqual(*filled, want) {
		t.Errorf("filled %v, want %v", *filled, want)
	}
}

func TestAssessmentQuestionFailureIsLogged(t *testing.T) {
	page, _ := assessmentPage(4, nil, map[int]bool{2: true})
	deps, logs := testDeps(page)
	a := &AssessmentAnswering{Deps: deps, Answer: FixedAnswer("x")}

	n, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 2 {
		t.Errorf("answered %d, want 2", n)
	}
	if !strings.Contains(logs.String(), "Failed to answer question 2") {
		t.Errorf("logs missing question failure:\n%s", logs.String())
	}
}

func TestAssessmentNoQuestions(t *testing.T) {
	tests := []struct {
		name string
		n    int
	}{
		{"none", 0},
		{"only the leading block", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, _ := assessmentPage(tt.n, nil, nil)
			deps, _ := testDeps(page)
			a := &AssessmentAnswering{Deps: deps}
			n, err := a.Run(context.Background())
			if err != nil || n != 0 {
				t.Errorf("Run = %d, %v; want 0, nil", n, err)
			}
		})
	}
}

func TestFatalErrorFormatting(t *testing.T) {
	err := &FatalError{Stage: StageLaunch, Err: errors.New("no chrome")}
	if err.Error() != "launch failed: no chrome" {
		t.Errorf("Error() = %q", err.Error())
	}
	if fatal(StageSearch, nil) != nil {
		t.Error("fatal(nil) should be nil")
	}
}
