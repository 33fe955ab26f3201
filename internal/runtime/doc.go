// Package runtime provides the execution context for sitevc commands.
//
// It opens the configured store backend and wires it into an engine together
// with the on-disk merge sessions and the console logger.
package runtime
