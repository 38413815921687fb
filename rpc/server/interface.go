package server

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/gridRPC/lib/grid"
	"github.com/ValentinKolb/gridRPC/rpc/common"
)

// IServant is the interface for all servants
// A servant handles the calls of one name, the method is part of the request.
type IServant interface {
	// Name returns the name the servant is registered under
	Name() string
	// Handle handles a request and returns the response payload.
	// An error, a panic or a nil payload is answered with an invalid response;
	// methods without result return an empty, non-nil payload.
	Handle(req *common.Message) (payload []byte, err error)
}

// MethodFunc handles one method of a servant
type MethodFunc func(payload []byte) ([]byte, error)

// ServantFunc adapts a function to IServant
type ServantFunc func(req *common.Message) ([]byte, error)

// NewServant creates a servant from a handle function
func NewServant(name string, handle ServantFunc) IServant {
	return &funcServant{name: name, handle: handle}
}

type funcServant struct {
	name   string
	handle ServantFunc
}

func (s *funcServant) Name() string { return s.name }

func (s *funcServant) Handle(req *common.Message) ([]byte, error) {
	return s.handle(req)
}

// NewMethodServant creates a servant dispatching on the (case-insensitive) method name
func NewMethodServant(name string, methods map[string]MethodFunc) IServant {
	table := make(map[string]MethodFunc, len(methods))
	for m, fn := range methods {
		table[strings.ToLower(m)] = fn
	}
	return NewServant(name, func(req *common.Message) ([]byte, error) {
		fn, ok := table[strings.ToLower(req.Method)]
		if !ok {
			return nil, grid.Errorf(grid.CodeServantNotFound, "servant %s has no method %s", name, req.Method)
		}
		return fn(req.Payload)
	})
}

// TypedMethod creates a MethodFunc decoding JSON arguments of type A and
// encoding the result of type R. It is the counterpart of client.Invoke.
func TypedMethod[A any, R any](fn func(args A) (R, error)) MethodFunc {
	return func(payload []byte) ([]byte, error) {
		var args A
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &args); err != nil {
				return nil, grid.Errorf(grid.CodeDecodeFailed, "invalid arguments: %v", err)
			}
		}
		result, err := fn(args)
		if err != nil {
			return nil, err
		}
		out, err := json.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}
		return out, nil
	}
}
