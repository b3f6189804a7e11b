package chatmsg

// PendingMessage buffers inbound content that has not yet been folded into
// the chat history by a submit(). System messages accumulate in arrival
// order; at most one user message is buffered, and a new AddMessage(User, ..)
// replaces it rather than appending.
type PendingMessage struct {
	System []string
	User   *string
}

// AddSystem appends a system contribution to the pending buffer.
func (p *PendingMessage) AddSystem(content string) {
	p.System = append(p.System, content)
}

// SetUser replaces any previously buffered user message.
func (p *PendingMessage) SetUser(content string) {
	c := content
	p.User = &c
}

// IsEmpty reports whether there is nothing buffered.
func (p *PendingMessage) IsEmpty() bool {
	return len(p.System) == 0 && p.User == nil
}

// Drain returns the buffered content as ChatMessages in fixed order - system
// contributions first in arrival order, then the single user message if
// present - and resets the buffer.
func (p *PendingMessage) Drain() []ChatMessage {
	var out []ChatMessage
	for _, s := range p.System {
		out = append(out, System(s))
	}
	if p.User != nil {
		out = append(out, User(*p.User))
	}
	p.System = nil
	p.User = nil
	return out
}
