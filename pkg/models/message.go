package models

// Message kinds. Polls are stored as messages with Type == KindPoll so the
// feed stays a single ordered sequence.
const (
	KindUser   = "user"
	KindAdmin  = "admin"
	KindSystem = "system"
	KindPoll   = "poll"
)

// Message is the stored and wire representation of a feed record.
//
// Reactions maps an emoji to the ordered list of voter identities; each
// identity appears at most once per emoji and an emoji with no voters must
// not be present in the map. Seq records the insertion sequence assigned by
// the store and breaks ordering ties between messages sharing a timestamp.
type Message struct {
	ID              string              `json:"id"`
	Name            string              `json:"name,omitempty"`
	Body            string              `json:"message,omitempty"`
	Type            string              `json:"type"`
	TS              int64               `json:"timestamp"`
	Seq             uint64              `json:"seq,omitempty"`
	Identity        string              `json:"identity,omitempty"`
	ThreadID        string              `json:"threadId,omitempty"`
	ParentMessageID string              `json:"parentMessageId,omitempty"`
	Reactions       map[string][]string `json:"reactions,omitempty"`
	Attachments     []Attachment        `json:"attachments,omitempty"`
	VoiceNote       *VoiceNote          `json:"voiceNote,omitempty"`

	// Poll fields, populated only when Type == KindPoll.
	Question   string        `json:"question,omitempty"`
	Options    []PollOption  `json:"options,omitempty"`
	Settings   *PollSettings `json:"settings,omitempty"`
	TotalVotes int           `json:"totalVotes,omitempty"`
	Closed     bool          `json:"closed,omitempty"`
}

// Attachment is an opaque reference to an uploaded file; storage and
// transcoding live outside this server.
type Attachment struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Mime string `json:"mime,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// VoiceNote references a stored voice recording by id.
type VoiceNote struct {
	ID       string  `json:"id"`
	Duration float64 `json:"duration"`
}

// PollOption holds one choice with its voter set. Votes always equals
// len(Voters); both are persisted so clients need no derivation.
type PollOption struct {
	ID     string   `json:"id"`
	Text   string   `json:"text"`
	Votes  int      `json:"votes"`
	Voters []string `json:"voters"`
}

type PollSettings struct {
	Multiple  bool  `json:"multiple"`
	Anonymous bool  `json:"anonymous"`
	EndsAt    int64 `json:"endsAt,omitempty"`
}

// IsPoll reports whether the message carries poll state.
func (m *Message) IsPoll() bool { return m.Type == KindPoll }

// HasContent reports whether the message carries at least one of body text,
// an attachment or a voice note.
func (m *Message) HasContent() bool {
	return m.Body != "" || len(m.Attachments) > 0 || m.VoiceNote != nil
}

// HasReaction reports whether voter is present in the emoji's voter set.
func (m *Message) HasReaction(emoji, voter string) bool {
	for _, v := range m.Reactions[emoji] {
		if v == voter {
			return true
		}
	}
	return false
}

// Sanitized returns a copy safe for read views: anonymous polls have their
// voter identities suppressed (counts survive).
func (m Message) Sanitized() Message {
	if !m.IsPoll() || m.Settings == nil || !m.Settings.Anonymous {
		return m
	}
	opts := make([]PollOption, len(m.Options))
	for i, o := range m.Options {
		o.Voters = nil
		opts[i] = o
	}
	m.Options = opts
	return m
}
