// Package wire defines the JSON responses shared by the TCP server and the C
// bindings.
package wire

import (
	"encoding/json"
	"time"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/val"
)

// Request is one client request.
type Request struct {
	Query string `json:"query"`
}

// Response is the server's reply to one request. Code is the stable error
// category of a failed request.
type Response struct {
	Success bool            `json:"success"`
	Code    string          `json:"code,omitempty"`
	Error   string          `json:"error,omitempty"`
	Type    string          `json:"type,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

const (
	HelloType    = "hello"
	IdentityType = "identity"
	QueryType    = "query"
	WriteType    = "write"
	VersionType  = "version"
)

// HelloResponse greets a new connection.
type HelloResponse struct {
	ConnectionID string `json:"connection_id"`
	Version      string `json:"version"`
	Branch       string `json:"branch"`
}

// IdentityResponse confirms the author used for the connection's commits.
type IdentityResponse struct {
	Identity string `json:"identity"`
}

// QueryResponse contains tabular query results. Cells are JSON numbers,
// strings, booleans or null; dates are formatted strings.
type QueryResponse struct {
	Columns     []string `json:"columns"`
	Data        [][]any  `json:"data"`
	RecordsRead int      `json:"records_read"`
	TimeMs      float64  `json:"time_ms"`
}

// WriteResponse contains DDL and DML results.
type WriteResponse struct {
	Root           string  `json:"root,omitempty"`
	InTransaction  bool    `json:"in_transaction,omitempty"`
	TablesCreated  int     `json:"tables_created,omitempty"`
	TablesDeleted  int     `json:"tables_deleted,omitempty"`
	RecordsWritten int     `json:"records_written,omitempty"`
	RecordsDeleted int     `json:"records_deleted,omitempty"`
	TimeMs         float64 `json:"time_ms"`
}

// VersionResponse contains the result of a version control statement.
type VersionResponse struct {
	Branch    string    `json:"branch"`
	Commit    string    `json:"commit,omitempty"`
	Author    string    `json:"author,omitempty"`
	When      time.Time `json:"when,omitzero"`
	Message   string    `json:"message"`
	Conflicts int       `json:"conflicts,omitempty"`
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	err := json.Unmarshal(data, &req)
	return req, err
}

// Success wraps result as the payload of a successful response.
func Success(typ string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return Failure(err)
	}
	return Response{Success: true, Type: typ, Result: data}
}

// Failure reports err with its stable error code.
func Failure(err error) Response {
	return Response{Success: false, Code: core.ErrorCode(err), Error: err.Error()}
}

// Encode converts an engine result into a response.
func Encode(result db.Result) Response {
	switch r := result.(type) {
	case db.QueryResult:
		data := make([][]any, len(r.Rows))
		for i, row := range r.Rows {
			data[i] = make([]any, len(row))
			for j, cell := range row {
				data[i][j] = jsonCell(cell)
			}
		}
		return Success(QueryType, QueryResponse{
			Columns:     r.Columns,
			Data:        data,
			RecordsRead: r.RecordsRead,
			TimeMs:      r.ExecutionTimeSec * 1000,
		})
	case db.WriteResult:
		wr := WriteResponse{
			InTransaction:  r.InTransaction,
			TablesCreated:  r.TablesCreated,
			TablesDeleted:  r.TablesDeleted,
			RecordsWritten: r.RecordsWritten,
			RecordsDeleted: r.RecordsDeleted,
			TimeMs:         r.ExecutionTimeSec * 1000,
		}
		if !r.Root.IsEmpty() {
			wr.Root = r.Root.String()
		}
		return Success(WriteType, wr)
	case db.VersionResult:
		return Success(VersionType, VersionResponse{
			Branch:    r.Branch,
			Commit:    r.Transaction.Id,
			Author:    r.Transaction.Author,
			When:      r.Transaction.When,
			Message:   r.Message,
			Conflicts: r.Conflicts,
		})
	default:
		return Response{Success: true, Type: "unknown"}
	}
}

func jsonCell(cell any) any {
	switch v := cell.(type) {
	case time.Time:
		return val.Format(v)
	default:
		return v
	}
}
