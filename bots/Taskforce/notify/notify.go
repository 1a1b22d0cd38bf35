package notify

import "context"

// Field is an optional named value shown under the body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Content is what gets delivered to a user. Rendering is up to the sink.
type Content struct {
	Title  string
	Body   string
	Fields []Field
	Footer string
}

// WithField returns a copy of c with one more field.
func (c Content) WithField(name, value string, inline bool) Content {
	fields := make([]Field, len(c.Fields), len(c.Fields)+1)
	copy(fields, c.Fields)
	c.Fields = append(fields, Field{Name: name, Value: value, Inline: inline})
	return c
}

// Handle addresses a delivered notification so it can be edited later.
type Handle struct {
	ChatID    int64
	MessageID int
}

// Sink is the outbound channel to users. Each call is a single atomic
// operation from the caller's point of view.
type Sink interface {
	// Deliver sends content to the owner and returns a handle for later edits.
	Deliver(ctx context.Context, owner int64, c Content) (Handle, error)
	// Edit replaces a delivered notification. It fails if the handle is no
	// longer addressable; callers should deliver a fresh one then.
	Edit(ctx context.Context, h Handle, c Content) (Handle, error)
}
