package assets

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"studio/internal/domain"
)

func TestResolve(t *testing.T) {
	r := NewResolver("https://media.example.com/")
	cases := map[string]string{
		"":                           "",
		"null":                       "",
		"undefined":                  "",
		"  ":                         "",
		"x.png":                      "https://media.example.com/x.png",
		"/users/u1/x.png":            "https://media.example.com/users/u1/x.png",
		"https://cdn.example.com/a":  "https://cdn.example.com/a",
		"http://localhost:8080/b.png": "http://localhost:8080/b.png",
	}
	for in, want := range cases {
		if got := r.Resolve(in); got != want {
			t.Fatalf("Resolve(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSelectPicksNewestCandidates(t *testing.T) {
	now := time.Now()
	rows := []domain.AssetRecord{
		{URL: "clip.mp4", Role: domain.AssetRoleResult, Type: domain.AssetTypeVideo, CreatedAt: now},
		{URL: "after-2.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: now.Add(-time.Second)},
		{URL: "src-2.png", Role: domain.AssetRoleSource, Type: domain.AssetTypeImage, CreatedAt: now.Add(-2 * time.Second)},
		{URL: "after-1.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: now.Add(-3 * time.Second)},
	}
	got := Select(rows, NewResolver("https://m.example.com"))
	want := &Latest{
		BeforeKey: "src-2.png",
		AfterKey:  "after-2.png",
		VideoKey:  "clip.mp4",
		BeforeURL: "https://m.example.com/src-2.png",
		AfterURL:  "https://m.example.com/after-2.png",
		VideoURL:  "https://m.example.com/clip.mp4",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Select mismatch (-want +got):\n%s", diff)
	}
	if !got.Ready(domain.ModePhoto) || !got.Ready(domain.ModeVideo) {
		t.Fatalf("Ready = false, want true for both modes")
	}
}

func TestSelectVideoRoles(t *testing.T) {
	rows := []domain.AssetRecord{{URL: "v.mp4", Role: domain.AssetRoleVideoResult, Type: domain.AssetTypeImage}}
	got := Select(rows, NewResolver(""))
	if got.VideoKey != "v.mp4" {
		t.Fatalf("VideoKey = %q, want v.mp4", got.VideoKey)
	}
	if got.Ready(domain.ModePhoto) {
		t.Fatalf("photo must not be ready without a result image")
	}
	var empty *Latest
	if empty.Ready(domain.ModeVideo) {
		t.Fatalf("nil Latest must not be ready")
	}
}

func TestSelectSinceSkipsEarlierResults(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	rows := []domain.AssetRecord{
		{URL: "old-after.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: start.Add(-time.Minute)},
		{URL: "old-clip.mp4", Role: domain.AssetRoleVideo, Type: domain.AssetTypeVideo, CreatedAt: start.Add(-2 * time.Minute)},
		{URL: "src.png", Role: domain.AssetRoleSource, Type: domain.AssetTypeImage, CreatedAt: start.Add(-time.Hour)},
	}
	r := NewResolver("https://m.example.com")

	photo := SelectSince(rows, r, domain.ModePhoto, start)
	if photo.Ready(domain.ModePhoto) {
		t.Fatalf("photo job must not see a result from before it started: %+v", photo)
	}
	if photo.BeforeKey != "src.png" || photo.VideoKey != "old-clip.mp4" {
		t.Fatalf("photo job before=%q video=%q, want older rows of other kinds kept", photo.BeforeKey, photo.VideoKey)
	}

	video := SelectSince(rows, r, domain.ModeVideo, start)
	if video.Ready(domain.ModeVideo) || video.AfterKey != "old-after.png" {
		t.Fatalf("video job = %+v, want no video and the existing after kept", video)
	}

	rows = append([]domain.AssetRecord{{URL: "new-after.png", Role: domain.AssetRoleResult, Type: domain.AssetTypeImage, CreatedAt: start}}, rows...)
	if got := SelectSince(rows, r, domain.ModePhoto, start); got.AfterKey != "new-after.png" {
		t.Fatalf("AfterKey = %q, want the result created at job start", got.AfterKey)
	}
}

func TestTrusted(t *testing.T) {
	r := NewResolver("https://media.example.com/", " CDN.example.com ")
	cases := map[string]bool{
		"uploads/u/p/a.png":                          true,
		"https://media.example.com/x.png":            true,
		"https://cdn.example.com/y.png":              true,
		"https://cdn.example.com:443/y.png":          true,
		"https://media.example.com.evil.test/x.png":  false,
		"https://media.example.com@169.254.169.254/": false,
		"http://169.254.169.254/latest/meta-data":    false,
		"http://localhost:5432/":                     false,
		"":                                           false,
	}
	for in, want := range cases {
		if got := r.Trusted(in); got != want {
			t.Fatalf("Trusted(%q) = %v, want %v", in, got, want)
		}
	}
	if NewResolver("").Trusted("uploads/a.png") {
		t.Fatalf("bare keys must not be trusted without a media gateway")
	}
}
