//go:build !unix

package chunkstore

// flockExclusive is a no-op on platforms without advisory file locks;
// the node is not expected to run multi-process on such hosts.
func flockExclusive(fd uintptr) error { return nil }

func flockUnlock(fd uintptr) error { return nil }
