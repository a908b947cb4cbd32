package logging

import (
	"errors"
	"testing"
	"time"
)

func TestNewFields(t *testing.T) {
	fields := NewFields()
	if fields == nil {
		t.Fatal("NewFields() returned nil")
	}
	if len(fields) != 0 {
		t.Errorf("NewFields() should be empty, got %d fields", len(fields))
	}
}

func TestFields_Component(t *testing.T) {
	fields := NewFields().Component("orchestrator")
	if fields["component"] != "orchestrator" {
		t.Errorf("Component() = %v, want %v", fields["component"], "orchestrator")
	}
}

func TestFields_Resource(t *testing.T) {
	fields := NewFields().Resource("task", "VTID-00042")
	if fields["resource_type"] != "task" || fields["resource_name"] != "VTID-00042" {
		t.Errorf("Resource() = %v", fields)
	}
}

func TestFields_ResourceWithoutName(t *testing.T) {
	fields := NewFields().Resource("task", "")
	if _, exists := fields["resource_name"]; exists {
		t.Error("Resource() should not set resource_name when empty")
	}
}

func TestFields_Duration(t *testing.T) {
	fields := NewFields().Duration(150 * time.Millisecond)
	if fields["duration_ms"] != int64(150) {
		t.Errorf("Duration() = %v, want 150", fields["duration_ms"])
	}
}

func TestFields_Error(t *testing.T) {
	fields := NewFields().Error(errors.New("boom"))
	if fields["error"] != "boom" {
		t.Errorf("Error() = %v, want boom", fields["error"])
	}
}

func TestFields_ErrorNil(t *testing.T) {
	fields := NewFields().Error(nil)
	if _, exists := fields["error"]; exists {
		t.Error("Error(nil) should not set error field")
	}
}

func TestFields_VTID(t *testing.T) {
	fields := NewFields().VTID("VTID-00042")
	if fields["vtid"] != "VTID-00042" {
		t.Errorf("VTID() = %v", fields["vtid"])
	}
}

func TestFields_DomainEmpty(t *testing.T) {
	fields := NewFields().Domain("")
	if _, exists := fields["domain"]; exists {
		t.Error("Domain(\"\") should not set the field")
	}
}

func TestFields_Logrus(t *testing.T) {
	fields := NewFields().Component("x")
	lf := fields.Logrus()
	if lf["component"] != "x" {
		t.Errorf("Logrus() did not carry through fields: %v", lf)
	}
}
