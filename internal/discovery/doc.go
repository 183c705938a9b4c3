// Package discovery announces the bridge's REST API over mDNS so panels and
// tools on the LAN can find it without configuration.
//
// The service type defaults to _graylogic-fastcon._tcp. TXT records carry
// the version, the API path and whether TLS is on.
package discovery
