// Package panel serves the browser status page as an embedded asset.
//
// The page is plain HTML, CSS and JavaScript embedded with go:embed. It
// polls /api/status, streams /ws and posts to /api/commands, so it needs
// nothing but the hub's own HTTP API. Unknown paths fall back to
// index.html.
package panel
