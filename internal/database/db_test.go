package database

import (
	"testing"

	"github.com/Alias1177/fxsignal/internal/model"
)

func TestConnString(t *testing.T) {
	tests := []struct {
		name   string
		params ConnectionParams
		want   string
	}{
		{
			name:   "explicit ssl mode",
			params: ConnectionParams{Host: "db", Port: "5432", User: "fx", Password: "secret", DBName: "fxsignal", SSLMode: "require"},
			want:   "host=db port=5432 user=fx password=secret dbname=fxsignal sslmode=require",
		},
		{
			name:   "default ssl mode",
			params: ConnectionParams{Host: "localhost", Port: "5433", User: "postgres", DBName: "journal"},
			want:   "host=localhost port=5433 user=postgres password= dbname=journal sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.params.ConnString(); got != tt.want {
				t.Errorf("ConnString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTimeframeStrings(t *testing.T) {
	got := timeframeStrings([]model.Timeframe{model.H1, model.D1})
	if len(got) != 2 || got[0] != "H1" || got[1] != "D1" {
		t.Errorf("timeframeStrings() = %v", got)
	}
	if got := timeframeStrings(nil); len(got) != 0 {
		t.Errorf("timeframeStrings(nil) = %v", got)
	}
}
