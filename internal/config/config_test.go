package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	o := cfg.Overlay
	if !o.Enabled || !o.Watch {
		t.Errorf("overlay should be enabled and watching by default: %+v", o)
	}
	if o.MaxMessages != 50 || o.MaxMessageAge != 28800 || o.MaxSpacers != 10 {
		t.Errorf("unexpected limits: %+v", o)
	}
	if o.ChatSpeed != 1/60.0 {
		t.Errorf("ChatSpeed = %v, want 1/60", o.ChatSpeed)
	}
	if o.PollInterval() != 250*time.Millisecond || o.RenderInterval() != 2*time.Second {
		t.Errorf("unexpected intervals: %v %v", o.PollInterval(), o.RenderInterval())
	}
	if o.Snapshot != "yarrdb_data.jsonl" || o.Log != "yarrdb_log.jsonl" {
		t.Errorf("unexpected resources: %q %q", o.Snapshot, o.Log)
	}
	if o.ProviderTags["twitch"] != "Tw@" || o.ProviderTags["matrix"] != "Mx@" {
		t.Errorf("unexpected provider tags: %v", o.ProviderTags)
	}
	if cfg.Database.MaxSize != 100 || cfg.Uploader.MaxRetries != 3 {
		t.Errorf("unexpected collector defaults: %+v %+v", cfg.Database, cfg.Uploader)
	}
}

func TestParseProviderTagOverride(t *testing.T) {
	cfg, err := Parse([]byte(`
overlay:
  provider_tags:
    twitch: "TW "
    irc: "IRC@"
`))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	tags := cfg.Overlay.ProviderTags
	if tags["twitch"] != "TW " || tags["irc"] != "IRC@" || tags["matrix"] != "Mx@" {
		t.Errorf("unexpected provider tags: %v", tags)
	}
}

func TestParseEnvOverrides(t *testing.T) {
	t.Setenv("TWITCH_OAUTH", "oauth:secret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse([]byte("twitch:\n  oauth: from-file\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.Twitch.OAuth != "oauth:secret" {
		t.Errorf("OAuth = %q, want env override", cfg.Twitch.OAuth)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "nothing enabled",
			yaml:    "overlay:\n  enabled: false\n",
			wantErr: "at least one of",
		},
		{
			name:    "database without providers",
			yaml:    "database:\n  enabled: true\n",
			wantErr: "at least one chat provider",
		},
		{
			name:    "database with same paths",
			yaml:    "database:\n  enabled: true\n  log_path: a.jsonl\n  checkpoint_path: a.jsonl\ntwitch:\n  channels: [deavidsedice]\n",
			wantErr: "must differ",
		},
		{
			name:    "s3 source without credentials",
			yaml:    "overlay:\n  log: s3://bucket/yarrdb_log.jsonl\ns3:\n  region: eu-west-1\n",
			wantErr: "either s3.role_arn",
		},
		{
			name:    "uploader without bucket",
			yaml:    "database:\n  enabled: true\ntwitch:\n  channels: [x]\nuploader:\n  enabled: true\ns3:\n  region: eu-west-1\n  role_arn: arn:aws:iam::1:role/r\n",
			wantErr: "s3.bucket is required",
		},
		{
			name:    "static key without secret",
			yaml:    "overlay:\n  snapshot: s3://b/k\ns3:\n  region: eu-west-1\n  access_key_id: AKIA\n",
			wantErr: "s3.secret_access_key is required",
		},
		{
			name:    "matrix without token",
			yaml:    "matrix:\n  homeserver: https://matrix.org\n  user_id: '@bot:matrix.org'\n  room_id: '!room:matrix.org'\n",
			wantErr: "matrix.access_token is required",
		},
		{
			name:    "matrix room list without homeserver",
			yaml:    "matrix:\n  access_token: t\n  room_ids: ['!a:matrix.org']\n",
			wantErr: "matrix.homeserver and matrix.user_id are required",
		},
		{
			name: "matrix rooms feed the database",
			yaml: "database:\n  enabled: true\nmatrix:\n  homeserver: https://matrix.org\n  user_id: '@bot:matrix.org'\n  access_token: t\n  room_ids: ['!a:matrix.org']\n",
		},
		{
			name:    "kick without channels",
			yaml:    "kick:\n  enabled: true\n",
			wantErr: "at least one kick channel",
		},
		{
			name:    "negative limits",
			yaml:    "overlay:\n  max_spacers: -1\n",
			wantErr: "must not be negative",
		},
		{
			name: "valid collector",
			yaml: "database:\n  enabled: true\ntwitch:\n  channels: [deavidsedice]\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("overlay:\n  max_messages: 20\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Overlay.MaxMessages != 20 {
		t.Errorf("MaxMessages = %d, want 20", cfg.Overlay.MaxMessages)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestMatrixRooms(t *testing.T) {
	m := MatrixConfig{RoomID: "!a:matrix.org", RoomIDs: []string{"!b:matrix.org", "!a:matrix.org", ""}}
	got := m.Rooms()
	if len(got) != 2 || got[0] != "!a:matrix.org" || got[1] != "!b:matrix.org" {
		t.Errorf("Rooms() = %v", got)
	}
	if rooms := (MatrixConfig{}).Rooms(); len(rooms) != 0 {
		t.Errorf("empty config Rooms() = %v", rooms)
	}
}
