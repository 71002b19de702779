package version

import (
	"encoding/json"
	"runtime"
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version = "0.4.0"
	Commit = "9f1c2e7ab3d0"
	Date = "2026-03-01T08:00:00Z"
	defer func() {
		Version, Commit, Date = origVersion, origCommit, origDate
	}()

	info := GetInfo()

	if info.Version != "0.4.0" {
		t.Errorf("GetInfo().Version = %v, want 0.4.0", info.Version)
	}
	if info.Commit != "9f1c2e7ab3d0" {
		t.Errorf("GetInfo().Commit = %v, want 9f1c2e7ab3d0", info.Commit)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GetInfo().GoVersion = %v, want %v", info.GoVersion, runtime.Version())
	}
	if want := runtime.GOOS + "/" + runtime.GOARCH; info.Platform != want {
		t.Errorf("GetInfo().Platform = %v, want %v", info.Platform, want)
	}
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name string
		info Info
		want []string
	}{
		{
			name: "full version info",
			info: Info{
				Version:   "1.0.0",
				Commit:    "abc123def456",
				Date:      "2026-01-01T12:00:00Z",
				GoVersion: "go1.24.0",
				Platform:  "linux/amd64",
			},
			want: []string{"Wayfinder", "1.0.0", "(abc123de)", "2026-01-01T12:00:00Z", "go1.24.0", "linux/amd64"},
		},
		{
			name: "short commit hash",
			info: Info{Version: "1.0.0", Commit: "abc123", Platform: "darwin/arm64"},
			want: []string{"Wayfinder", "(abc123)", "darwin/arm64"},
		},
		{
			name: "dev version",
			info: Info{Version: "dev", Commit: "unknown", Date: "unknown"},
			want: []string{"Wayfinder dev", "unknown"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.info.String()
			for _, substr := range tt.want {
				if !strings.Contains(got, substr) {
					t.Errorf("Info.String() = %v, missing substring %v", got, substr)
				}
			}
		})
	}
}

func TestInfoShort(t *testing.T) {
	for _, v := range []string{"1.0.0", "dev", "1.0.0-rc1"} {
		if got := (Info{Version: v}).Short(); got != v {
			t.Errorf("Info.Short() = %v, want %v", got, v)
		}
	}
}

func TestUserAgent(t *testing.T) {
	got := Info{Version: "0.4.0", Platform: "linux/arm64"}.UserAgent()
	if got != "wayfinder-cli/0.4.0 (linux/arm64)" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestInfoJSON(t *testing.T) {
	data, err := json.Marshal(Info{Version: "1.2.3", GoVersion: "go1.24.0"})
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{`"version":"1.2.3"`, `"go_version":"go1.24.0"`} {
		if !strings.Contains(string(data), key) {
			t.Errorf("json %s missing %s", data, key)
		}
	}
}
