// ABOUTME: Tagged lane value: the main thread or a per-role consultation thread
// ABOUTME: Parses and formats the "main" / "consult:<role>" wire tags

package lane

import "strings"

const (
	// MainTag is the wire tag of the main lane.
	MainTag = "main"
	// ConsultPrefix prefixes consultation lane tags.
	ConsultPrefix = "consult:"

	unknownRole = "unknown"
)

// Kind distinguishes the main lane from consultation lanes.
type Kind int

const (
	KindMain Kind = iota
	KindConsult
)

// Lane identifies a sub-channel of a conversation. The zero value is the
// main lane.
type Lane struct {
	kind Kind
	role string
}

// Main returns the main lane.
func Main() Lane { return Lane{kind: KindMain} }

// Consult returns the consultation lane for role. An empty role maps to
// "unknown".
func Consult(role string) Lane {
	if role == "" {
		role = unknownRole
	}
	return Lane{kind: KindConsult, role: role}
}

// Parse converts a wire tag into a Lane. The empty tag is the main lane.
// Tags that are neither main nor consult:<role> are rejected.
func Parse(tag string) (Lane, bool) {
	switch {
	case tag == "" || tag == MainTag:
		return Main(), true
	case strings.HasPrefix(tag, ConsultPrefix):
		role := strings.TrimPrefix(tag, ConsultPrefix)
		if i := strings.IndexByte(role, ':'); i >= 0 {
			role = role[:i]
		}
		return Consult(role), true
	default:
		return Lane{}, false
	}
}

func (l Lane) Kind() Kind { return l.kind }

func (l Lane) IsMain() bool { return l.kind == KindMain }

// Role returns the consultation role, or "" for the main lane.
func (l Lane) Role() string { return l.role }

// String returns the wire tag.
func (l Lane) String() string {
	if l.kind == KindMain {
		return MainTag
	}
	return ConsultPrefix + l.role
}
