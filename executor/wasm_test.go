package executor

// Hand-assembled WASI modules for exercising the executor without a real
// interpreter binary.

// emptyWasm exports a _start that returns immediately.
var emptyWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type: () -> ()
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,
	// function
	0x03, 0x02, 0x01, 0x00,
	// export "_start"
	0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,
	// code
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b,
}

// exit3Wasm calls proc_exit(3).
var exit3Wasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32) -> (), () -> ()
	0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00,
	// import wasi_snapshot_preview1.proc_exit
	0x02, 0x24, 0x01,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x09, 'p', 'r', 'o', 'c', '_', 'e', 'x', 'i', 't',
	0x00, 0x00,
	// function
	0x03, 0x02, 0x01, 0x01,
	// export "_start"
	0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
	// code: i32.const 3; call 0
	0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, 0x03, 0x10, 0x00, 0x0b,
}

// hiWasm writes "hi\n" to stdout with fd_write.
var hiWasm = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32 i32 i32 i32) -> i32, () -> ()
	0x01, 0x0c, 0x02, 0x60, 0x04, 0x7f, 0x7f, 0x7f, 0x7f, 0x01, 0x7f, 0x60, 0x00, 0x00,
	// import wasi_snapshot_preview1.fd_write
	0x02, 0x23, 0x01,
	0x16, 'w', 'a', 's', 'i', '_', 's', 'n', 'a', 'p', 's', 'h', 'o', 't', '_', 'p', 'r', 'e', 'v', 'i', 'e', 'w', '1',
	0x08, 'f', 'd', '_', 'w', 'r', 'i', 't', 'e',
	0x00, 0x00,
	// function
	0x03, 0x02, 0x01, 0x01,
	// memory: 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,
	// export "_start", "memory"
	0x07, 0x13, 0x02,
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x01,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	// code: fd_write(1, 0, 1, 20); drop
	0x0a, 0x0f, 0x01, 0x0d, 0x00,
	0x41, 0x01, 0x41, 0x00, 0x41, 0x01, 0x41, 0x14, 0x10, 0x00, 0x1a, 0x0b,
	// data at 0: iovec{buf: 8, len: 3} then "hi\n"
	0x0b, 0x11, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x0b,
	0x08, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 'h', 'i', '\n',
}

type rawLanguage struct {
	name   string
	module []byte
}

func (l *rawLanguage) Name() string { return l.name }
func (l *rawLanguage) Module() []byte { return l.module }
func (l *rawLanguage) WrapCode(code string) string { return code }
func (l *rawLanguage) Args(string) []string { return []string{l.name} }
func (l *rawLanguage) SessionInit() string { return "" }
func (l *rawLanguage) InputOverride(string) string { return "" }
