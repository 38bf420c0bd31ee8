// Package shell is the hub's desktop status window.
//
// Model holds everything the window shows and is updated from the event
// bus; it has no fyne dependency so its behaviour is tested directly.
// Shell renders a Model with fyne and applies each event on the fyne
// goroutine via fyne.Do.
package shell
