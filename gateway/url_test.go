package gateway

import (
	"strings"
	"testing"
)

func TestParseGatewayURL(t *testing.T) {
	g, err := ParseGatewayURL("wss://gateway.example.com/?compress=1", "tok-123")
	if err != nil {
		t.Fatalf("ParseGatewayURL: %v", err)
	}
	if g.Host != "gateway.example.com" || g.Port != "443" || !g.Compress {
		t.Fatalf("unexpected parse result: %+v", g)
	}
	if g.Resume != nil {
		t.Fatalf("expected no resume state, got %+v", g.Resume)
	}
}

func TestParseGatewayURLWithResume(t *testing.T) {
	g, err := ParseGatewayURL("wss://gateway.example.com/?compress=0&resume=1&sn=42&session_id=abc", "tok-123")
	if err != nil {
		t.Fatalf("ParseGatewayURL: %v", err)
	}
	if g.Resume == nil || g.Resume.SN != 42 || g.Resume.SessionID != "abc" {
		t.Fatalf("unexpected resume state: %+v", g.Resume)
	}
}

func TestParseGatewayURLRejectsResumeWithoutSN(t *testing.T) {
	if _, err := ParseGatewayURL("wss://gateway.example.com/?resume=1&session_id=abc", "tok-123"); err == nil {
		t.Fatal("expected error for resume=1 missing sn")
	}
}

func TestParseGatewayURLIgnoresSNWithoutResumeFlag(t *testing.T) {
	g, err := ParseGatewayURL("wss://gateway.example.com/?sn=42&session_id=abc", "tok-123")
	if err != nil {
		t.Fatalf("ParseGatewayURL: %v", err)
	}
	if g.Resume != nil {
		t.Fatalf("expected no resume state without resume=1, got %+v", g.Resume)
	}
}

func TestParseGatewayURLRejectsBadSchema(t *testing.T) {
	if _, err := ParseGatewayURL("http://gateway.example.com/", "tok"); err == nil {
		t.Fatal("expected error for non-websocket schema")
	}
}

func TestParseGatewayURLRejectsMissingToken(t *testing.T) {
	if _, err := ParseGatewayURL("wss://gateway.example.com/", ""); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestGatewayURLStringRoundTrip(t *testing.T) {
	g, err := ParseGatewayURL("wss://gateway.example.com:1234/ws?compress=1", "tok-123")
	if err != nil {
		t.Fatalf("ParseGatewayURL: %v", err)
	}

	encoded := g.String()
	if !strings.HasPrefix(encoded, "wss://gateway.example.com:1234/ws?") {
		t.Fatalf("unexpected encoded url: %s", encoded)
	}

	reparsed, err := ParseGatewayURL(encoded, "tok-123")
	if err != nil {
		t.Fatalf("re-parse round trip: %v", err)
	}
	if reparsed.Host != g.Host || reparsed.Port != g.Port || reparsed.Compress != g.Compress {
		t.Fatalf("round trip mismatch: %+v vs %+v", g, reparsed)
	}
}

func TestGatewayURLWithResumeEncodesResumeParams(t *testing.T) {
	g, err := ParseGatewayURL("wss://gateway.example.com/", "tok-123")
	if err != nil {
		t.Fatalf("ParseGatewayURL: %v", err)
	}

	resumed := g.WithResume(&ResumeState{SN: 7, SessionID: "sess-1"})
	encoded := resumed.String()
	if !strings.Contains(encoded, "resume=1") || !strings.Contains(encoded, "sn=7") || !strings.Contains(encoded, "session_id=sess-1") {
		t.Fatalf("expected resume params in encoded url, got %s", encoded)
	}
}
