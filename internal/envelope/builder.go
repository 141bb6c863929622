package envelope

// Builder constructs Response envelopes using a fluent API.
type Builder struct {
	resp *Response
}

// New creates a new envelope builder.
func New() *Builder {
	return &Builder{
		resp: &Response{
			SchemaVersion: CurrentSchemaVersion,
		},
	}
}

// Data sets the tool-specific payload.
func (b *Builder) Data(data interface{}) *Builder {
	b.resp.Data = data
	return b
}

// Validated marks the result as grammar-validated.
func (b *Builder) Validated() *Builder {
	b.confidence().Score = 1.0
	b.confidence().Tier = TierHigh
	return b
}

// Healed marks the result as validated only after an auto-heal round trip.
func (b *Builder) Healed() *Builder {
	c := b.confidence()
	c.Score = 0.7
	c.Tier = TierMedium
	c.Reasons = append(c.Reasons, "auto-healed")
	return b
}

// Fallback marks the result as produced by the textual path, where validity
// means bracket balance and size sanity rather than a clean parse.
func (b *Builder) Fallback() *Builder {
	c := b.confidence()
	c.Score = 0.4
	c.Tier = TierLow
	c.Reasons = append(c.Reasons, "no-grammar-fallback")
	return b
}

func (b *Builder) confidence() *Confidence {
	if b.resp.Meta == nil {
		b.resp.Meta = &Meta{}
	}
	if b.resp.Meta.Confidence == nil {
		b.resp.Meta.Confidence = &Confidence{}
	}
	return b.resp.Meta.Confidence
}

// Warning adds a warning message.
func (b *Builder) Warning(msg string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, Warning{Message: msg})
	return b
}

// WarningWithCode adds a warning with a code.
func (b *Builder) WarningWithCode(code, msg string) *Builder {
	b.resp.Warnings = append(b.resp.Warnings, Warning{Code: code, Message: msg})
	return b
}

// Error sets the error field.
func (b *Builder) Error(err error) *Builder {
	b.resp.Error = NewErrorInfo(err)
	return b
}

// SuggestCall appends a follow-up tool call recommendation.
func (b *Builder) SuggestCall(tool string, params map[string]interface{}, reason string) *Builder {
	b.resp.SuggestedNextCalls = append(b.resp.SuggestedNextCalls, SuggestedCall{
		Tool:   tool,
		Params: params,
		Reason: reason,
	})
	return b
}

// Build returns the completed response envelope.
func (b *Builder) Build() *Response {
	return b.resp
}

// Operational creates a simple envelope for operational tools.
// These always have high confidence and no validation concerns.
func Operational(data interface{}) *Response {
	return &Response{
		SchemaVersion: CurrentSchemaVersion,
		Data:          data,
		Meta: &Meta{
			Confidence: &Confidence{
				Score: 1.0,
				Tier:  TierHigh,
			},
		},
	}
}
