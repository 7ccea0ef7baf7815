// Package runsheet runs batches of source files through the engine that
// matches their language and records each file's output and status.
//
// # Overview
//
// A batch is an ordered list of [batch.SourceFile] values sharing one
// language. The [dispatch.Dispatcher] looks the language up in the
// [catalog], picks the adapter for its engine kind and runs every file that
// has not already succeeded:
//
//   - direct: JavaScript evaluated in-process by goja
//   - native: C/C++ through the picoc interpreter compiled to WASI
//   - vm: Java through BeanShell on a JVM, started locally or in Docker
//   - embedded: Python in a long-lived RustPython session
//
// Engines whose runtime is missing leave a readable error on each file
// instead of failing the whole batch.
//
// # Basic Usage
//
//	cfg, _ := config.Load("")
//	set, _ := runtimes.Build(ctx, cfg, logger)
//	defer set.Close()
//
//	d := dispatch.New(dispatch.WithLogger(logger))
//	files := batch.New([]batch.Draft{{Name: "a.js", Content: `console.log("hi")`}})
//	out := d.Dispatch(ctx, files, catalog.JavaScript, set.Runtimes)
//
// A finished batch can be rendered as a Markdown or HTML submission with the
// [export] package.
//
// The runsheet command wraps all of this in a CLI and an HTTP API.
package runsheet
