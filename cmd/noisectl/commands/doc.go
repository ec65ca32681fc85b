// Package commands implements the noisectl command line tool: static key
// management backed by the encrypted key store, a loopback channel demo and
// a decoder for serialized replay windows.
package commands
