// Package persistence stores console preferences across restarts.
//
// Preferences are local choices that the backend does not know about, such
// as the selected slot and the MQTT provider. Device and DMS state is never
// persisted here; it is always taken from the backend's snapshots.
package persistence
