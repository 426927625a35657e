// Package tsvrpc implements the Kyoto Tycoon TSV-RPC protocol: tab separated
// records carried in HTTP/1.1 POST requests to /rpc/<procedure>.
//
// Each field name and value is transformed by a column encoding (Base64, URL
// or Raw) announced in the Content-Type header. Responses declare their own
// encoding, which ParseResponse honours regardless of what the request used.
package tsvrpc
