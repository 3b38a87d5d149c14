// Package discovery finds console backends on the local network with
// mDNS/DNS-SD.
//
// # Service (_vconsole._tcp)
//
// A virtual device or virtual DMS backend advertises one instance of this
// service. Instance names are free-form; the TXT records carry:
//
//	role  device or dms (required)
//	path  WebSocket path, "/" when absent
//	tls   "1" when the endpoint expects wss://
//
// Browse reports services as they appear; Find returns the first service of
// a role, which the console turns into its endpoint URL.
package discovery
