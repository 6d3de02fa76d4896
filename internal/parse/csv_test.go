package parse

import (
	"errors"
	"testing"
)

func TestCSVWithHeaders(t *testing.T) {
	data := []byte("Full Name,Phone Number,Email Address\nJohn Doe,08123456789,john@doe.com\nJane Smith,07012345678,\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	if contacts[0].Name != "John Doe" || contacts[0].Mobile != "+2348123456789" || contacts[0].Email != "john@doe.com" {
		t.Fatalf("first contact: %+v", contacts[0])
	}
	if contacts[1].Mobile != "+2347012345678" {
		t.Fatalf("second mobile = %q", contacts[1].Mobile)
	}
}

func TestCSVSemicolonDelimiter(t *testing.T) {
	data := []byte("name;mobile;email\nAda;08123456789;ada@x.com\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if contacts[0].Name != "Ada" || contacts[0].Email != "ada@x.com" {
		t.Fatalf("contact: %+v", contacts[0])
	}
}

func TestCSVTabDelimiter(t *testing.T) {
	data := []byte("name\twhatsapp\nGrace\t08123456789\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if contacts[0].Name != "Grace" || contacts[0].Mobile != "+2348123456789" {
		t.Fatalf("contact: %+v", contacts[0])
	}
}

func TestCSVQuotedFields(t *testing.T) {
	data := []byte("name,phone\n\"Doe, John \"\"JD\"\"\",08123456789\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if contacts[0].Name != `Doe, John "JD"` {
		t.Fatalf("name = %q", contacts[0].Name)
	}
}

func TestCSVNoHeaderFallsBackToPositional(t *testing.T) {
	data := []byte("John Doe,08123456789\nJane Smith,07012345678\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	if contacts[0].Name != "John Doe" || contacts[0].Mobile != "+2348123456789" {
		t.Fatalf("first contact: %+v", contacts[0])
	}
}

func TestCSVPassesColumnPreserved(t *testing.T) {
	data := []byte("name,phone,passes\nAda,08123456789,4\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if contacts[0].Passes != 4 {
		t.Fatalf("passes = %d, want 4", contacts[0].Passes)
	}
}

func TestCSVEmpty(t *testing.T) {
	if _, err := CSV([]byte("")); !errors.Is(err, ErrNoContacts) {
		t.Fatalf("err = %v, want ErrNoContacts", err)
	}
	if _, err := CSV([]byte("name,phone\n")); !errors.Is(err, ErrNoContacts) {
		t.Fatalf("header-only err = %v, want ErrNoContacts", err)
	}
}

func TestCSVSkipsBOM(t *testing.T) {
	data := []byte("\xEF\xBB\xBFname,phone\nAda,08123456789\n")
	contacts, err := CSV(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if contacts[0].Name != "Ada" {
		t.Fatalf("contact: %+v", contacts[0])
	}
}
