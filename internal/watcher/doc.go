// Package watcher turns filesystem creation events into ready image paths.
//
// A Subscription forwards fsnotify Create events for one directory into a
// Debouncer. The Debouncer holds each candidate for a batch interval, then
// confirms with IsStable that its size stopped changing before PollReady hands
// it out. Paths the pipeline itself renames into place can be suppressed so
// they are not picked up again.
package watcher
