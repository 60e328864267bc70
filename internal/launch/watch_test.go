package launch

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcher_RediscoversOnManifestChange(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "studio.yaml", studioYAML)

	changes := make(chan DiscoveryResult, 4)
	w, err := NewWatcher([]string{root}, nil, nil, func(r DiscoveryResult) { changes <- r })
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	writeManifest(t, root, "nuke.toml", nukeTOML)

	select {
	case r := <-changes:
		if len(r.Files) != 2 {
			t.Errorf("Files = %v, want 2 manifests", r.Files)
		}
		found := false
		for _, d := range r.Pre {
			if d.Source == filepath.Join(root, "nuke.toml") {
				found = true
			}
		}
		if !found {
			t.Error("new manifest hooks not discovered")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no rediscovery after manifest change")
	}
}
