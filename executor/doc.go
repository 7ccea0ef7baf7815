// Package executor runs WASI interpreter builds on wazero.
//
// # Overview
//
// The executor manages WASM module compilation, caching, and execution.
// It supports both stateless execution (single Run call) and stateful
// sessions (multiple Run calls with persistent state).
//
// # Basic Usage
//
//	exec, err := executor.New(hostfunc.NewRegistry())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	lang, _ := python.Load("libs/python.wasm")
//	result := exec.Run(ctx, lang, `print("hello")`)
//	fmt.Println(result.Output)
//
// Interpreters that read source from disk or talk on stdin use the stream
// options instead of the host-call pipe:
//
//	exec.Run(ctx, picocLang, src,
//	    executor.WithDirMount(dir, "/src", true),
//	    executor.WithStdin(reader),
//	    executor.WithStdout(writer),
//	)
//
// # Sessions
//
// Sessions maintain state across multiple executions:
//
//	session, err := exec.NewSession(lang)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	session.Run(ctx, `x = 42`)
//	session.Run(ctx, `print(x)`)  // Output: 42
//
// # Host Calls
//
// Guests reach host functions by writing \x00RUNSHEET:{json}\x00 to stderr; the
// response is written back on stdin as one JSON line. Every run and session
// gets a clone of the executor's registry plus the time_now built-in.
//
// # Language Interface
//
// To add support for a new language, implement the [Language] interface.
// See [github.com/caffeineduck/runsheet/language/python] for an example.
package executor
