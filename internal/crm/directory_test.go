package crm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcCall captures one JSON-RPC invocation for assertions.
type rpcCall struct {
	Service string
	Method  string
	Args    []json.RawMessage
}

func newTestCRM(t *testing.T, snapshotJSON string) (*Client, *[]rpcCall) {
	t.Helper()
	calls := &[]rpcCall{}
	b64 := base64.StdEncoding.EncodeToString([]byte(snapshotJSON))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Params struct {
				Service string            `json:"service"`
				Method  string            `json:"method"`
				Args    []json.RawMessage `json:"args"`
			} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		*calls = append(*calls, rpcCall{req.Params.Service, req.Params.Method, req.Params.Args})

		respond := func(result any) {
			raw, _ := json.Marshal(result)
			json.NewEncoder(w).Encode(map[string]json.RawMessage{"result": raw})
		}
		if req.Params.Service == "common" {
			respond(7)
			return
		}
		// object.execute_kw: args are [db, uid, key, model, method, ...]
		var model, method string
		json.Unmarshal(req.Params.Args[3], &model)
		json.Unmarshal(req.Params.Args[4], &method)
		switch {
		case model == "documents.document" && method == "read":
			respond([]map[string]string{{"spreadsheet_snapshot": b64}})
		case model == "documents.document" && method == "dispatch_spreadsheet_message":
			respond(true)
		default:
			respond(nil)
		}
	}))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, "db", "bot", "apikey", 5*time.Second, nil)
	c.HTTPClient = srv.Client()
	return c, calls
}

const testSnapshot = `{
	"revisionId": "rev-42",
	"sheets": [{"cells": {
		"A2": "Acme", "B2": "Ana Gomez", "C2": "Ana", "D2": "+57 300 1234567", "E2": "cliente", "F2": "", "G2": "",
		"A3": "Globex", "B3": "Luis Pardo", "C3": "", "D3": "573009876543", "E3": "empleado", "F3": "s3cret", "G3": "SI"
	}]
}`

func TestReadDirectory(t *testing.T) {
	c, _ := newTestCRM(t, testSnapshot)

	users, err := c.ReadDirectory(context.Background(), 114)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "Acme", users[0].Company)
	assert.Equal(t, "Ana Gomez", users[0].Name)
	assert.Equal(t, 2, users[0].Row)
	assert.Equal(t, "s3cret", users[1].Secret)
	assert.Equal(t, "SI", users[1].Blocked)
}

func TestFindUserByPhoneSuffixMatch(t *testing.T) {
	c, _ := newTestCRM(t, testSnapshot)

	// same last 10 digits, different formatting and country prefix
	u, err := c.FindUserByPhone(context.Background(), 114, "+57-300-123-4567")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "Ana Gomez", u.Name)

	u, err = c.FindUserByPhone(context.Background(), 114, "+1 555 000 0000")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestCellObjectShape(t *testing.T) {
	c, _ := newTestCRM(t, `{
		"revisionId": "rev-1",
		"sheets": [{"cells": {"A2": {"content": "Initech"}, "B2": {"content": "Peter"}, "D2": "111222333444"}}]
	}`)

	users, err := c.ReadDirectory(context.Background(), 114)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "Initech", users[0].Company)
	assert.Equal(t, "Peter", users[0].Name)
}

func TestUpdateCellDispatchesRevision(t *testing.T) {
	c, calls := newTestCRM(t, testSnapshot)

	err := c.UpdateCell(context.Background(), 114, 2, ColNickname, "Anita")
	require.NoError(t, err)

	last := (*calls)[len(*calls)-1]
	assert.Equal(t, "object", last.Service)
	var method string
	json.Unmarshal(last.Args[4], &method)
	assert.Equal(t, "dispatch_spreadsheet_message", method)

	var message struct {
		Type             string `json:"type"`
		NextRevisionID   string `json:"nextRevisionId"`
		ServerRevisionID string `json:"serverRevisionId"`
		Commands         []struct {
			Type    string `json:"type"`
			Row     int    `json:"row"`
			Col     int    `json:"col"`
			Content string `json:"content"`
		} `json:"commands"`
	}
	var args []json.RawMessage
	json.Unmarshal(last.Args[5], &args)
	require.Len(t, args, 2)
	require.NoError(t, json.Unmarshal(args[1], &message))
	assert.Equal(t, "REMOTE_REVISION", message.Type)
	assert.Equal(t, "rev-42", message.ServerRevisionID)
	assert.NotEmpty(t, message.NextRevisionID)
	require.Len(t, message.Commands, 1)
	assert.Equal(t, "UPDATE_CELL", message.Commands[0].Type)
	assert.Equal(t, 1, message.Commands[0].Row) // zero-based on the wire
	assert.Equal(t, ColNickname, message.Commands[0].Col)
	assert.Equal(t, "Anita", message.Commands[0].Content)
}

func TestAddUserPicksNextRow(t *testing.T) {
	c, calls := newTestCRM(t, testSnapshot)

	row, err := c.AddUser(context.Background(), 114, DirectoryUser{
		Company: "Hooli", Name: "Gavin", Phone: "5551112222", Role: "cliente",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, row)
	assert.NotEmpty(t, *calls)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("", "", "", "", 0, nil)
	_, err := c.ReadDirectory(context.Background(), 114)
	assert.ErrorIs(t, err, ErrNotConfigured)
}
