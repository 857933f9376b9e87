// Package lifecycle manages the files a node owns outside its main
// configuration: the credentials side config and the client certificate pair.
//
// File locations are either configured explicitly or derived from the node
// name under a configuration directory. [Layout] derives them, and both the
// poll path and [Teardown] use it, so a file is always deleted from the same
// place it was read from.
package lifecycle
