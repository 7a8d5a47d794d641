// Package iox provides small I/O cleanup helpers.
package iox

import "io"

// DiscardClose closes c, dropping the error. For defer sites where a
// failed close has no useful handling:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// DrainClose reads rc to EOF and closes it, dropping both errors. An
// HTTP response body must be drained before close or the transport
// cannot reuse the connection:
//
//	defer iox.DrainClose(resp.Body)
func DrainClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}

// CloseFunc wraps c.Close for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn, dropping the error. For deferred non-Close
// cleanup such as Flush:
//
//	defer iox.DiscardErr(w.Flush)
func DiscardErr(fn func() error) { _ = fn() }
