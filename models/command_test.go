package models

import (
	"encoding/json"
	"testing"
)

func TestCommandParseParams(t *testing.T) {
	tests := []struct {
		name    string
		params  json.RawMessage
		want    string
		wantErr bool
	}{
		{"missing", nil, "", false},
		{"null", json.RawMessage("null"), "", false},
		{"site", json.RawMessage(`{"site":"crowdvolt"}`), "crowdvolt", false},
		{"malformed", json.RawMessage(`{"site":`), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &Command{Command: CmdScrapeNow, Params: tt.params}
			params, err := cmd.ParseParams()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseParams: %v", err)
			}
			if params.Site != tt.want {
				t.Fatalf("expected site %q, got %q", tt.want, params.Site)
			}
		})
	}
}
