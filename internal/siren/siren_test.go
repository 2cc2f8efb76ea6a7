package siren

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTeamsAndProblems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/teams":
			json.NewEncoder(w).Encode([]Team{{ID: 1, Name: "Blue", Slug: "blue"}})
		case "/api/problems":
			json.NewEncoder(w).Encode([]Problem{{ID: 2, Name: "high", Slug: "high", Enabled: true}})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	teams, err := c.Teams(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(teams) != 1 || teams[0].Slug != "blue" {
		t.Errorf("teams = %+v", teams)
	}

	problems, err := c.Problems(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(problems) != 1 || problems[0].Slug != "high" {
		t.Errorf("problems = %+v", problems)
	}
}

func TestCurrentRound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]int{"round": 7})
	}))
	defer srv.Close()

	c := New(srv.URL)
	round, err := c.CurrentRound(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if round != 7 {
		t.Errorf("round = %d, want 7", round)
	}
}

func TestEndpointPostsJSONBody(t *testing.T) {
	var gotMethod string
	var gotBody map[string]int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Endpoint{Host: "10.0.0.1", Port: "1337"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ep, err := c.Endpoint(context.Background(), 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if ep.Host != "10.0.0.1" || ep.Port != "1337" {
		t.Errorf("endpoint = %+v", ep)
	}
	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotBody["teamId"] != 1 || gotBody["problemId"] != 2 {
		t.Errorf("body = %v", gotBody)
	}
}

func TestCreateTaskAndReportStatus(t *testing.T) {
	var lastMethod, lastPath string
	var lastBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastMethod, lastPath = r.Method, r.URL.Path
		json.NewDecoder(r.Body).Decode(&lastBody)
		if r.URL.Path == "/api/tasks" && r.Method == http.MethodPost {
			json.NewEncoder(w).Encode(map[string]int{"id": 42})
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	taskID, err := c.CreateTask(context.Background(), 3, "img123", 1)
	if err != nil {
		t.Fatal(err)
	}
	if taskID != 42 {
		t.Errorf("taskID = %d, want 42", taskID)
	}
	if lastBody["exploitKey"] != "img123" {
		t.Errorf("body = %v", lastBody)
	}

	if err := c.ReportStatus(context.Background(), taskID, "RUNNING", "out", "err", "note"); err != nil {
		t.Fatal(err)
	}
	if lastMethod != http.MethodPut || lastPath != "/api/tasks/42" {
		t.Errorf("last request = %s %s", lastMethod, lastPath)
	}
	if lastBody["statusMessage"] != "note" {
		t.Errorf("body = %v", lastBody)
	}
}

func TestNon2xxReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if _, err := c.Teams(context.Background()); err == nil {
		t.Error("expected error on 500")
	}
}

func TestDeleteExploitUsesDeleteMethod(t *testing.T) {
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.DeleteExploit(context.Background(), 1, "ground"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
}
