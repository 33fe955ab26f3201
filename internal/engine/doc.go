// Package engine is the branch and version API of sitevc.
//
// It is responsible for:
//   - Creating, listing and deleting branch pointers
//   - Committing new versions of the site graph onto a branch
//   - Picking merge bases from the commit graph
//   - Running merge attempts and suspending them as sessions until every
//     conflict has a pick
//   - Committing merges with optimistic concurrency on the target branch
//
// The engine owns no storage itself; versions and branches live in a
// store.Store and sessions in a SessionStore.
package engine
