package controller

import (
	"testing"
	"testing/fstest"

	"climate-server/internal/modules/climate/views"
)

// withoutTemplates runs fn with a template set that has no index page.
func withoutTemplates(t *testing.T, fn func()) {
	t.Helper()
	err := views.LoadTemplatesFS(fstest.MapFS{
		"templates/other.html": {Data: []byte("other")},
	}, "templates")
	if err != nil {
		t.Fatalf("LoadTemplatesFS: %v", err)
	}
	t.Cleanup(func() {
		if err := views.LoadTemplates(); err != nil {
			t.Errorf("LoadTemplates(): %v", err)
		}
	})
	fn()
}
