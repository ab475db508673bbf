package domain

// ContentMeta describes the submitted content as declared by the client and as
// sniffed by the transport layer. The gateway only inspects this metadata; it
// never judges content validity beyond size and type.
type ContentMeta struct {
	DeclaredSizeBytes int64
	DeclaredType      string
	SniffedType       string
}

// ContentLimits are the admission bounds applied before any upstream call.
type ContentLimits struct {
	MaxSizeBytes int64
	AllowedTypes map[string]struct{}
}

// Allows reports whether t is an accepted content type. An empty allow set
// accepts everything.
func (l ContentLimits) Allows(t string) bool {
	if len(l.AllowedTypes) == 0 {
		return true
	}
	_, ok := l.AllowedTypes[t]
	return ok
}

// FailureSignal is the abstracted union of everything known about a failed
// attempt: an optional upstream status, an optional upstream error code and
// message, the transport error, and the content metadata.
type FailureSignal struct {
	StatusCode int // 0 when no HTTP-style status is available
	ErrorCode  string
	Message    string
	Err        error
	Meta       *ContentMeta
	Limits     ContentLimits
}
