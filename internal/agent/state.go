package agent

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goaide/internal/providers"
	"github.com/nextlevelbuilder/goaide/internal/tools"
)

// node names the states of the reasoning machine. Serialized into
// checkpoints so a restarted process knows where to pick up.
type node string

const (
	nodeAgent     node = "agent"
	nodeTools     node = "tools"
	nodeSummarize node = "summarize"
	nodeEnd       node = "end"
)

// StateMessage is a conversation message with a stable identity. User
// messages carry the transport message id; generated messages get a
// fresh uuid. The reducer deduplicates on it.
type StateMessage struct {
	ID string `json:"id"`
	providers.Message
}

func newStateMessage(msg providers.Message) StateMessage {
	return StateMessage{ID: uuid.NewString(), Message: msg}
}

// StructuredSummary is the running conversation summary the summarize
// node produces. Active topics are still in play; inactive ones keep
// older context reachable without replaying messages.
type StructuredSummary struct {
	Summary        string   `json:"summary"`
	ActiveTopics   []string `json:"active_topics,omitempty"`
	InactiveTopics []string `json:"inactive_topics,omitempty"`
}

// State is the checkpointed conversation state of one thread.
// Iterations counts reasoning cycles since the last user input.
type State struct {
	Messages   []StateMessage     `json:"messages"`
	Summary    *StructuredSummary `json:"structured_summary,omitempty"`
	Iterations int                `json:"iterations"`
	UserID     string             `json:"user_id,omitempty"`
	Channel    string             `json:"channel,omitempty"`
	TaskState  *tools.TaskState   `json:"task_state,omitempty"`
}

// append adds messages to the state, skipping any whose ID is already
// present. Order of first appearance is preserved, so replayed
// envelopes and checkpoint resumes cannot double-append.
func (s *State) append(msgs ...StateMessage) {
	for _, m := range msgs {
		if m.ID != "" && s.hasMessage(m.ID) {
			continue
		}
		if m.ID == "" {
			m.ID = uuid.NewString()
		}
		s.Messages = append(s.Messages, m)
	}
}

func (s *State) hasMessage(id string) bool {
	for _, m := range s.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// lastMessage returns the most recent message, or nil when empty.
func (s *State) lastMessage() *StateMessage {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// conversationalCount counts user and assistant messages. Tool results
// do not count toward the summarization threshold.
func (s *State) conversationalCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == "user" || m.Role == "assistant" {
			n++
		}
	}
	return n
}

// history converts the stored messages into provider messages.
func (s *State) history() []providers.Message {
	msgs := make([]providers.Message, len(s.Messages))
	for i, m := range s.Messages {
		msgs[i] = m.Message
	}
	return msgs
}

// snapshot is the checkpoint payload: the machine position plus the
// full state, so a restart resumes at the last persisted node.
type snapshot struct {
	Node  node  `json:"node"`
	State State `json:"state"`
}

func encodeSnapshot(n node, st *State) (json.RawMessage, error) {
	return json.Marshal(snapshot{Node: n, State: *st})
}

func decodeSnapshot(raw json.RawMessage) (*snapshot, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	if snap.Node == "" {
		snap.Node = nodeEnd
	}
	return &snap, nil
}
