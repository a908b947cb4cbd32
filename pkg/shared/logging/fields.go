// Package logging provides a small structured-fields builder layered on
// top of logrus.Fields so call sites compose log context with named
// helpers instead of hand-rolled map literals.
package logging

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Fields is a fluent builder around logrus.Fields.
type Fields logrus.Fields

// NewFields returns an empty builder.
func NewFields() Fields {
	return Fields{}
}

func (f Fields) Component(name string) Fields {
	f["component"] = name
	return f
}

func (f Fields) Operation(name string) Fields {
	f["operation"] = name
	return f
}

func (f Fields) Resource(kind, name string) Fields {
	f["resource_type"] = kind
	if name != "" {
		f["resource_name"] = name
	}
	return f
}

func (f Fields) Duration(d time.Duration) Fields {
	f["duration_ms"] = d.Milliseconds()
	return f
}

func (f Fields) Error(err error) Fields {
	if err != nil {
		f["error"] = err.Error()
	}
	return f
}

func (f Fields) UserID(id string) Fields {
	if id != "" {
		f["user_id"] = id
	}
	return f
}

func (f Fields) RequestID(id string) Fields {
	if id != "" {
		f["request_id"] = id
	}
	return f
}

func (f Fields) TraceID(id string) Fields {
	if id != "" {
		f["trace_id"] = id
	}
	return f
}

func (f Fields) StatusCode(code int) Fields {
	f["status_code"] = code
	return f
}

// VTID attaches the platform task identifier.
func (f Fields) VTID(vtid string) Fields {
	if vtid != "" {
		f["vtid"] = vtid
	}
	return f
}

// Domain attaches the task's domain classification.
func (f Fields) Domain(domain string) Fields {
	if domain != "" {
		f["domain"] = domain
	}
	return f
}

// Logrus converts the builder to logrus.Fields for use with a *logrus.Entry.
func (f Fields) Logrus() logrus.Fields {
	return logrus.Fields(f)
}
