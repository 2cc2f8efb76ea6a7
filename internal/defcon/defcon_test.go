package defcon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmitFlagDisabledWhenNoURL(t *testing.T) {
	c := New("")
	result, err := c.SubmitFlag(context.Background(), "flag{x}")
	if err != nil {
		t.Fatal(err)
	}
	if result != nil {
		t.Errorf("result = %+v, want nil", result)
	}
}

func TestSubmitFlagPostsToExpectedPath(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotMethod = r.URL.Path, r.Method
		w.Write([]byte(`{"message":"ALREADY_SUBMITTED"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	result, err := c.SubmitFlag(context.Background(), "flag{abc}")
	if err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/api/submit_flag/flag{abc}" {
		t.Errorf("path = %q", gotPath)
	}
	if result.Message != "ALREADY_SUBMITTED" {
		t.Errorf("message = %q", result.Message)
	}
}
