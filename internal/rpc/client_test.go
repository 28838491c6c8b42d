package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func headInfoServer(t *testing.T, height string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req["method"] != "chain.get_head_info" {
			t.Errorf("unexpected method %v", req["method"])
		}
		resp := map[string]any{
			"jsonrpc": "2.0",
			"id":      1,
			"result": map[string]any{
				"head_topology": map[string]any{
					"height": height,
					"id":     "0x1220ab",
				},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHeightClient_HeadHeight(t *testing.T) {
	srv := headInfoServer(t, "42718031")
	defer srv.Close()

	c := NewHeightClient(srv.URL, time.Second)
	height, err := c.HeadHeight(context.Background())
	if err != nil {
		t.Fatalf("HeadHeight: %v", err)
	}
	if height != 42718031 {
		t.Errorf("expected 42718031, got %d", height)
	}
}

func TestHeightClient_UnparseableHeight(t *testing.T) {
	srv := headInfoServer(t, "not-a-number")
	defer srv.Close()

	c := NewHeightClient(srv.URL, time.Second)
	if _, err := c.HeadHeight(context.Background()); err == nil {
		t.Fatal("expected error for unparseable height")
	}
}

func TestHeightClient_MissingHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
	defer srv.Close()

	c := NewHeightClient(srv.URL, time.Second)
	if _, err := c.HeadHeight(context.Background()); err == nil {
		t.Fatal("expected error for missing height")
	}
}

func TestHeightClient_RPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32603,"message":"internal error"}}`))
	}))
	defer srv.Close()

	c := NewHeightClient(srv.URL, time.Second)
	if _, err := c.HeadHeight(context.Background()); err == nil {
		t.Fatal("expected error from rpc error response")
	}
}

func TestHeightClient_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHeightClient(srv.URL, time.Second)
	if _, err := c.HeadHeight(context.Background()); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}
