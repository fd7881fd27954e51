package postgresql

import "testing"

func TestDialectPlaceholderIndexes(t *testing.T) {
	d := NewDialect()
	if d.GetPlaceholder(1) != "$1" || d.GetPlaceholder(8) != "$8" {
		t.Errorf("postgresql placeholders should be positional")
	}
}

func TestDialectBoolConversion(t *testing.T) {
	d := NewDialect()
	if d.ConvertBoolToStorage(true) != true {
		t.Errorf("postgresql stores native bools")
	}
	if !d.ConvertBoolFromStorage(true) || d.ConvertBoolFromStorage(false) {
		t.Errorf("bool from storage conversion wrong")
	}
	if d.ConvertBoolFromStorage(int64(1)) {
		t.Errorf("non-bool storage type should read as false")
	}
}

func TestDriverName(t *testing.T) {
	if NewDialect().GetDriverName() != "postgresql" {
		t.Errorf("unexpected driver name")
	}
}
