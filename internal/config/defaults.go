package config

import (
	"strings"
	"time"
)

// DefaultAnswer is typed into every free-text assessment field unless
// assessment.default_answer overrides it.
const DefaultAnswer = "I am passionate about technology and eager to learn. " +
	"I believe my skills and enthusiasm make me a strong candidate for this position."

func applyDefaults(cfg *Config) {
	if cfg.SchemaVersion == 0 {
		cfg.SchemaVersion = CurrentSchemaVersion
	}
	if cfg.Portal.BaseURL == "" {
		cfg.Portal.BaseURL = "https://internshala.com/"
	}
	if cfg.Portal.ListingsURL == "" {
		cfg.Portal.ListingsURL = strings.TrimRight(cfg.Portal.BaseURL, "/") + "/internships/"
	}

	// Search defaults
	if cfg.Search.MaxApplications == 0 {
		cfg.Search.MaxApplications = 5
	}

	// Timing defaults
	if cfg.Timing.ActionDelay == 0 {
		cfg.Timing.ActionDelay = 2 * time.Second
	}
	if cfg.Timing.SettleDelay == 0 {
		cfg.Timing.SettleDelay = 5 * time.Second
	}
	if cfg.Timing.KeyDelay == 0 {
		cfg.Timing.KeyDelay = 100 * time.Millisecond
	}
	if cfg.Timing.CoverKeyDelay == 0 {
		cfg.Timing.CoverKeyDelay = 10 * time.Millisecond
	}
	if cfg.Timing.MaxRetries == 0 {
		cfg.Timing.MaxRetries = 3
	}
	if cfg.Timing.RetryDelay == 0 {
		cfg.Timing.RetryDelay = 2 * time.Second
	}
	if cfg.Timing.OperationTimeout == 0 {
		cfg.Timing.OperationTimeout = 60 * time.Second
	}
	if cfg.Timing.FilterTimeout == 0 {
		cfg.Timing.FilterTimeout = 5 * time.Second
	}
	if cfg.Timing.PollInterval == 0 {
		cfg.Timing.PollInterval = 250 * time.Millisecond
	}

	applySelectorDefaults(&cfg.Selectors)

	// Cover letter defaults
	if cfg.CoverLetter.Template == "" {
		cfg.CoverLetter.Template = "fullStack"
	}

	// Assessment defaults
	if cfg.Assessment.DefaultAnswer == "" {
		cfg.Assessment.DefaultAnswer = DefaultAnswer
	}
	if cfg.Assessment.MissingQuestion == "" {
		cfg.Assessment.MissingQuestion = "No question text found"
	}

	// Session defaults
	if cfg.Sessions.Retention == 0 {
		cfg.Sessions.Retention = time.Hour
	}
	if cfg.Sessions.SweepInterval == 0 {
		cfg.Sessions.SweepInterval = cfg.Sessions.Retention
	}
	if cfg.Sessions.MaxConcurrent == 0 {
		cfg.Sessions.MaxConcurrent = 2
	}
	if cfg.Sessions.MinRAMPerBrowserMB == 0 {
		cfg.Sessions.MinRAMPerBrowserMB = 512
	}
	if cfg.Sessions.StateDir == "" {
		cfg.Sessions.StateDir = ".applyflow"
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3000"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Log.Dir == "" {
		cfg.Log.Dir = "logs"
	}
	if cfg.History.Path == "" {
		cfg.History.Path = "applyflow.sqlite"
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = "none"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}

	if cfg.Artifacts.Backend == "" {
		cfg.Artifacts.Backend = "none"
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = "artifacts"
	}
	if cfg.Artifacts.Region == "" {
		cfg.Artifacts.Region = "us-east-1"
	}
}

func applySelectorDefaults(s *SelectorsConfig) {
	if s.LoginButton == nil {
		s.LoginButton = []string{`button[data-toggle="modal"][data-target="#login-modal"].login-cta`}
	}
	if s.Email == nil {
		s.Email = []string{"#modal_email"}
	}
	if s.Password == nil {
		s.Password = []string{"#modal_password"}
	}
	if s.LoginSubmit == nil {
		s.LoginSubmit = []string{"button#modal_login_submit"}
	}
	if s.InternshipsLink == nil {
		s.InternshipsLink = []string{"a.nav-link.dropdown-toggle.internship_link"}
	}
	if s.WorkFromHome == nil {
		s.WorkFromHome = []string{
			"#work_from_home",
			"input[type='checkbox'][name='work_from_home']",
			".filter_container input[type='checkbox']",
		}
	}
	if s.PartTime == nil {
		s.PartTime = []string{"#part_time"}
	}
	if s.SearchInput == nil {
		s.SearchInput = []string{`input[placeholder*="e.g."]`}
	}
	if s.Listing == nil {
		s.Listing = []string{"div.individual_internship_details.individual_internship_internship"}
	}
	if s.Continue == nil {
		s.Continue = []string{"button#continue_button.btn.btn-large"}
	}
	if s.CoverLetter == nil {
		s.CoverLetter = []string{"#cover_letter_holder"}
	}
	if s.Submit == nil {
		s.Submit = []string{"#submit"}
	}
	if s.Question == nil {
		s.Question = []string{".assessment_question"}
	}
	if s.QuestionLabel == "" {
		s.QuestionLabel = "label"
	}
	if s.AnswerField == nil {
		s.AnswerField = []string{"textarea.textarea.form-control", "textarea"}
	}
}
