package main

/*
#include <stdlib.h>
*/
import "C"
import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"unsafe"

	"github.com/nickyhof/TreeDB"
	"github.com/nickyhof/TreeDB/config"
	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/ps"
	"github.com/nickyhof/TreeDB/wire"
)

// Handle represents an open repository and the engine bound to it.
type Handle struct {
	mu       sync.Mutex
	instance *TreeDB.Instance
	engine   *db.Engine
}

var (
	handlesMu  sync.Mutex
	handles    = make(map[int]*Handle)
	nextHandle = 1
)

var bindingIdentity = core.Identity{Name: "TreeDB Python", Email: "python@treedb.local"}

func register(instance *TreeDB.Instance) C.int {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	handle := nextHandle
	nextHandle++
	handles[handle] = &Handle{
		instance: instance,
		engine:   instance.Engine(bindingIdentity),
	}
	return C.int(handle)
}

func lookup(handle C.int) (*Handle, bool) {
	handlesMu.Lock()
	defer handlesMu.Unlock()
	h, ok := handles[int(handle)]
	return h, ok
}

//export treedb_open_memory
func treedb_open_memory() C.int {
	persistence, err := ps.NewMemoryPersistence(ps.Options{Identity: bindingIdentity})
	if err != nil {
		return -1
	}
	return register(TreeDB.Open(persistence))
}

// treedb_open opens the repository at path, creating it when create is
// non-zero and none exists.
//
//export treedb_open
func treedb_open(path *C.char, create C.int) C.int {
	dir := C.GoString(path)
	ctx := context.Background()

	instance, err := TreeDB.OpenDir(ctx, dir, nil)
	if err != nil && create != 0 {
		cfg := config.Default()
		cfg.User = bindingIdentity
		instance, err = TreeDB.Init(ctx, dir, cfg, nil)
	}
	if err != nil {
		return -1
	}
	return register(instance)
}

//export treedb_close
func treedb_close(handle C.int) {
	handlesMu.Lock()
	h, ok := handles[int(handle)]
	delete(handles, int(handle))
	handlesMu.Unlock()
	if ok {
		h.mu.Lock()
		h.instance.Close()
		h.mu.Unlock()
	}
}

// treedb_execute runs one statement and returns a JSON response that the
// caller releases with treedb_free.
//
//export treedb_execute
func treedb_execute(handle C.int, query *C.char) *C.char {
	h, ok := lookup(handle)
	if !ok {
		return makeResponse(wire.Failure(fmt.Errorf("%w: invalid handle %d", core.ErrInvalidArgument, int(handle))))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	result, err := h.engine.Execute(context.Background(), C.GoString(query))
	if err != nil {
		return makeResponse(wire.Failure(err))
	}
	return makeResponse(wire.Encode(result))
}

//export treedb_free
func treedb_free(ptr *C.char) {
	C.free(unsafe.Pointer(ptr))
}

func makeResponse(resp wire.Response) *C.char {
	jsonData, err := json.Marshal(resp)
	if err != nil {
		jsonData, _ = json.Marshal(wire.Failure(err))
	}
	return C.CString(string(jsonData))
}

func main() {}
