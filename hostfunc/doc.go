// Package hostfunc provides the host function registry for sandboxed WASM code.
//
// Host functions are Go functions that guest code reaches through the
// executor's stderr call protocol. Sandboxed code has no implicit access to
// host resources; each capability is a named entry in a [Registry]:
//
//	registry := hostfunc.NewRegistry()
//	registry.Register("my_func", func(ctx context.Context, args map[string]any) (any, error) {
//	    name, err := hostfunc.StringArg(args, "name")
//	    if err != nil {
//	        return nil, err
//	    }
//	    return "hello " + name, nil
//	})
//
// The executor clones the registry for every run and session, then adds its
// built-ins (currently time_now), so registrations made on a clone never
// leak back into the shared registry.
package hostfunc
