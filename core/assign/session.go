package assign

// State of a contributor session.
type State string

const (
	NotStarted     State = "not_started"
	TitleSelection State = "title_selection"
	Annotating     State = "annotating"
	Submitted      State = "submitted"
	TitleExhausted State = "title_exhausted"
)

// Session is the per-contributor progress value. Transitions never mutate
// their input; they return an updated copy.
type Session struct {
	Contributor string          `json:"contributor"`
	State       State           `json:"state"`
	Title       string          `json:"title,omitempty"`
	Cursors     map[string]int  `json:"cursors,omitempty"`
	Exhausted   map[string]bool `json:"exhausted,omitempty"`
	// Submitted holds segment keys saved during this session. They stay in
	// the unprocessed list so cursor positions remain stable.
	Submitted map[string]bool `json:"submitted,omitempty"`
}

// Cursor returns the position within the current title.
func (s Session) Cursor() int {
	return s.Cursors[s.Title]
}

// started is false for the zero Session as well as an explicit NotStarted one.
func (s Session) started() bool {
	return s.Contributor != "" && s.State != "" && s.State != NotStarted
}

func (s Session) clone() Session {
	out := s
	out.Cursors = make(map[string]int, len(s.Cursors))
	for k, v := range s.Cursors {
		out.Cursors[k] = v
	}
	out.Exhausted = make(map[string]bool, len(s.Exhausted))
	for k, v := range s.Exhausted {
		out.Exhausted[k] = v
	}
	out.Submitted = make(map[string]bool, len(s.Submitted))
	for k, v := range s.Submitted {
		out.Submitted[k] = v
	}
	return out
}

// View is what the front end renders for the current state.
type View struct {
	State     State  `json:"state"`
	Title     string `json:"title,omitempty"`
	Segment   string `json:"segment,omitempty"`
	Position  int    `json:"position"`
	Remaining int    `json:"remaining"`
	// Unprocessed is the size of the session's work list for the title.
	Unprocessed int `json:"unprocessed"`
	Total       int `json:"total"`
	// GloballyCompleted is set once every segment of the title has an
	// annotation from someone.
	GloballyCompleted bool `json:"globallyCompleted"`
}
